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
	"github.com/gnames/gncity/pkg/config"
	"github.com/spf13/cobra"
)

// exportFlags keeps values of runtime-only export flags.
type exportFlags struct {
	output      string
	types       []string
	bbox        []float64
	rows        int
	cols        int
	suffix      string
	count       bool
	jobs        int
	policy      string
	failOnError bool
}

func (f *exportFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.output, "output", "o", "",
		"output file, tiles get a suffix before the extension")
	fs.StringSliceVarP(&f.types, "types", "t", nil,
		"feature types to export, e.g. Building,Road (empty = all)")
	fs.Float64SliceVarP(&f.bbox, "bbox", "b", nil,
		"export extent as minx,miny,maxx,maxy")
	fs.IntVar(&f.rows, "rows", 1, "rows of the tile grid (needs --bbox)")
	fs.IntVar(&f.cols, "cols", 1, "columns of the tile grid (needs --bbox)")
	fs.StringVar(&f.suffix, "suffix", "index",
		"tile file suffix: index, xmin_ymin, xmax_ymin, xmin_ymax, "+
			"xmax_ymax, xmin_ymin_xmax_ymax")
	fs.BoolVarP(&f.count, "count", "c", false,
		"count features first to show progress")
	fs.IntVarP(&f.jobs, "jobs", "j", 0,
		"maximum number of export workers")
	fs.StringVar(&f.policy, "xlink-policy", "",
		"inline or deferred resolution of references")
	fs.BoolVar(&f.failOnError, "fail-on-error", false,
		"stop the export on the first failed feature")
}

// options converts flags set by the user into config options. Flags left
// at their defaults do not override config.yaml or env vars.
func (f *exportFlags) options(cmd *cobra.Command) []config.Option {
	var res []config.Option
	fs := cmd.Flags()

	if fs.Changed("output") {
		res = append(res, config.OptExportOutput(f.output))
	}
	if fs.Changed("types") {
		res = append(res, config.OptExportFeatureTypes(f.types))
	}
	if fs.Changed("bbox") {
		res = append(res, config.OptExportBBox(f.bbox))
	}
	if fs.Changed("rows") || fs.Changed("cols") {
		res = append(res, config.OptExportTiling(f.rows, f.cols))
	}
	if fs.Changed("suffix") {
		res = append(res, config.OptExportTilingSuffix(f.suffix))
	}
	if fs.Changed("count") {
		res = append(res, config.OptExportCountFeatures(f.count))
	}
	if fs.Changed("jobs") {
		res = append(res, config.OptExportMaxThreads(f.jobs))
	}
	if fs.Changed("xlink-policy") {
		res = append(res, config.OptExportXlinkPolicy(f.policy))
	}
	if fs.Changed("fail-on-error") {
		res = append(res, config.OptExportFailOnFeatureError(f.failOnError))
	}
	return res
}
