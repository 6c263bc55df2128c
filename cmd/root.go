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
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gnames/gn"
	"github.com/gnames/gncity/internal/iofs"
	"github.com/gnames/gncity/internal/iologger"
	"github.com/gnames/gncity/pkg/config"
	"github.com/gnames/gncity/pkg/gncity"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	homeDir string
	opts    []config.Option
	cfg     *config.Config
)

// getRootCmd returns the root command with all subcommands attached.
func getRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Version: fmt.Sprintf("version: %s\nbuild:   %s", gncity.Version, gncity.Build),
		Use:     "gncity",
		Short:   "GNcity exports features of a 3D city database",
		Long: `GNcity exports top-level features of a 3D city database into
JSON Lines documents.

Features are read from PostgreSQL or SQLite by a pool of export
workers. References between features (XLinks) that cannot be resolved
right away are staged in temporary cache tables and completed after all
features of a tile are written. Large exports can be split into a grid
of tiles, every tile goes to its own file.

Configuration precedence (highest to lowest):
  1. CLI flags
  2. Environment variables (GNCITY_*)
  3. Config file (~/.config/gncity/config.yaml)
  4. Built-in defaults

Run without a subcommand to print the effective configuration.`,
		PersistentPreRunE: bootstrap,
		RunE:              runRoot,
		SilenceErrors:     true,
		SilenceUsage:      true,
	}

	// Remove the automatic "gncity version" prefix
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	// Override version flag to use -V (consistent with other gn projects)
	rootCmd.Flags().BoolP("version", "V", false, "version for gncity")

	rootCmd.AddCommand(getCreateCmd(), getExportCmd())
	return rootCmd
}

func bootstrap(cmd *cobra.Command, args []string) error {
	var err error
	homeDir, err = os.UserHomeDir()
	if err != nil {
		gn.PrintErrorMessage(err)
		return err
	}

	if err = iofs.EnsureDirs(homeDir); err != nil {
		gn.PrintErrorMessage(err)
		return err
	}

	// Initialize logging with hardcoded defaults
	// Will be reconfigured later with user's config settings
	defaultLog := config.LogConfig{
		Format:      "json",
		Level:       "info",
		Destination: "file",
	}
	if err = iologger.Init(config.LogDir(homeDir), defaultLog, false); err != nil {
		gn.PrintErrorMessage(err)
		return err
	}

	if err = iofs.EnsureConfigFile(homeDir); err != nil {
		gn.PrintErrorMessage(err)
		return err
	}

	var cfgViper *config.Config
	if cfgViper, err = initConfig(homeDir); err != nil {
		gn.PrintErrorMessage(err)
		return err
	}

	cfg = config.New()
	opts = cfgViper.ToOptions()
	cfg.Update(opts)

	// Set HomeDir after config is loaded
	cfg.Update([]config.Option{config.OptHomeDir(homeDir)})

	// Reconfigure logging with user's settings, keep bootstrap records
	if err = iologger.Init(config.LogDir(cfg.HomeDir), cfg.Log, true); err != nil {
		gn.PrintErrorMessage(err)
		return err
	}

	slog.Info("Configuration loaded",
		"config_file", config.ConfigFilePath(homeDir),
		"command", cmd.Name(),
	)
	return nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	s, err := iofs.ConfigToYAML(cfg)
	if err != nil {
		return err
	}
	gn.Info(
		"Configuration file is available at <em>%s</em>",
		config.ConfigFilePath(homeDir),
	)
	fmt.Fprint(cmd.OutOrStdout(), s)
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := getRootCmd().Execute()
	iologger.Close()
	if err != nil {
		os.Exit(1)
	}
}

func initConfig(home string) (*config.Config, error) {
	var err error
	cfgPath := config.ConfigFilePath(home)
	v := viper.New()
	v.SetConfigFile(cfgPath)

	initEnvVars(v)

	if err = v.ReadInConfig(); err != nil {
		return nil, iofs.ReadFileError(cfgPath, err)
	}

	var res config.Config
	if err = v.Unmarshal(&res); err != nil {
		return nil, iofs.ReadFileError(cfgPath, err)
	}

	return &res, nil
}

func initEnvVars(v *viper.Viper) {
	// Set environment variables we want.
	// We set them manually so we can see clearly which env variables are allowed.
	// These match the fields included in config.ToOptions() - i.e., persistent
	// configuration that can be stored in config.yaml.
	v.SetEnvPrefix("GNCITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Database configuration
	v.BindEnv("database.driver", "GNCITY_DATABASE_DRIVER")
	v.BindEnv("database.host", "GNCITY_DATABASE_HOST")
	v.BindEnv("database.port", "GNCITY_DATABASE_PORT")
	v.BindEnv("database.user", "GNCITY_DATABASE_USER")
	v.BindEnv("database.password", "GNCITY_DATABASE_PASSWORD")
	v.BindEnv("database.database", "GNCITY_DATABASE_DATABASE")
	v.BindEnv("database.ssl_mode", "GNCITY_DATABASE_SSL_MODE")
	v.BindEnv("database.path", "GNCITY_DATABASE_PATH")
	v.BindEnv("database.batch_size", "GNCITY_DATABASE_BATCH_SIZE")

	// Export configuration
	v.BindEnv("export.min_threads", "GNCITY_EXPORT_MIN_THREADS")
	v.BindEnv("export.max_threads", "GNCITY_EXPORT_MAX_THREADS")
	v.BindEnv("export.queue_size", "GNCITY_EXPORT_QUEUE_SIZE")
	v.BindEnv("export.strategy", "GNCITY_EXPORT_STRATEGY")
	v.BindEnv("export.xlink_fraction", "GNCITY_EXPORT_XLINK_FRACTION")
	v.BindEnv("export.object_cache.partitions", "GNCITY_EXPORT_OBJECT_CACHE_PARTITIONS")
	v.BindEnv("export.object_cache.page_size", "GNCITY_EXPORT_OBJECT_CACHE_PAGE_SIZE")
	v.BindEnv("export.geometry_cache.partitions", "GNCITY_EXPORT_GEOMETRY_CACHE_PARTITIONS")
	v.BindEnv("export.geometry_cache.page_size", "GNCITY_EXPORT_GEOMETRY_CACHE_PAGE_SIZE")
	v.BindEnv("export.cache_backend", "GNCITY_EXPORT_CACHE_BACKEND")
	v.BindEnv("export.xlink_policy", "GNCITY_EXPORT_XLINK_POLICY")
	v.BindEnv("export.fail_on_feature_error", "GNCITY_EXPORT_FAIL_ON_FEATURE_ERROR")

	// Log configuration
	v.BindEnv("log.level", "GNCITY_LOG_LEVEL")
	v.BindEnv("log.format", "GNCITY_LOG_FORMAT")
	v.BindEnv("log.destination", "GNCITY_LOG_DESTINATION")

	v.AutomaticEnv()
}
