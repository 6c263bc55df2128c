/*
Copyright © 2025 Dmitry Mozzherin <dmozzherin@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gnames/gn"
	"github.com/gnames/gncity/internal/iodb"
	"github.com/gnames/gncity/internal/ioexport"
	"github.com/spf13/cobra"
)

// getExportCmd returns the export command.
func getExportCmd() *cobra.Command {
	var flags exportFlags

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export city features into JSON Lines",
		Long: `Export top-level features of the city database.

Every feature is written as one JSON document together with its
geometries. References to other features or geometries are written
inline when their target is already exported, the rest are written as
separate link documents at the end of each tile. References whose
target was never exported are kept as unresolved links.

With --bbox only features whose envelope centre falls into the box are
exported. Together with --rows and --cols the box is split into tiles,
each tile is exported into its own file.

Ctrl-C stops the export: features in progress are finished, queued
features are dropped and temporary cache tables are removed.

Examples:
  gncity export -o city.jsonl
  gncity export -t Building,Bridge -j 16 -c
  gncity export -b 0,0,1000,1000 --rows 2 --cols 2 -o tiles/city.jsonl
  gncity export -b 0,0,1000,1000 --rows 4 --cols 4 --suffix xmin_ymin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runExport(cmd, &flags)
			if err != nil {
				gn.PrintErrorMessage(err)
			}
			return err
		},
	}

	flags.register(exportCmd)
	return exportCmd
}

func runExport(cmd *cobra.Command, flags *exportFlags) error {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	cfg.Update(flags.options(cmd))

	op, err := iodb.New(cfg, ioexport.ConnectionsNeeded(cfg))
	if err != nil {
		return err
	}
	if err = op.Connect(ctx, &cfg.Database); err != nil {
		return err
	}
	defer op.Close()

	res, err := ioexport.New(cfg, op).Export(ctx)
	if err != nil {
		if res != nil && res.Message != "" {
			return ioexport.InterruptedError(res.Message, err)
		}
		return err
	}
	return nil
}
