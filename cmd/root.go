// Package cmd builds the partsimg command tree.
package cmd

import (
	"github.com/partscatalog/imagecache/cmd/preload"
	"github.com/partscatalog/imagecache/cmd/resolve"
	"github.com/partscatalog/imagecache/cmd/serve"
	"github.com/partscatalog/imagecache/cmd/version"
	"github.com/partscatalog/imagecache/internal/buildinfo"
	"github.com/partscatalog/imagecache/internal/conf"
	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/logger"
	"github.com/partscatalog/imagecache/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagKeys maps persistent flags to their configuration keys.
var flagKeys = map[string]string{
	"debug":       "debug",
	"backend":     "oci.backend",
	"oci-url":     "oci.base_url",
	"catalog-url": "catalog.base_url",
	"log-level":   "logging.default_level",
}

// RootCommand creates and returns the root command. settings is filled in before
// any subcommand runs.
func RootCommand(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var configFile string
	var flushTelemetry func()

	rootCmd := &cobra.Command{
		Use:           "partsimg",
		Short:         "Catalog image resolver and cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flagErr := setupFlags(rootCmd, &configFile)

	versionCmd := version.Command(info)
	rootCmd.AddCommand(
		resolve.Command(settings),
		preload.Command(settings),
		serve.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if flagErr != nil {
			return flagErr
		}
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		if configFile != "" {
			viper.SetConfigFile(configFile)
		}

		loaded, err := conf.Load()
		if err != nil {
			return err
		}
		*settings = *loaded

		if err := initLogging(settings); err != nil {
			return err
		}

		flushTelemetry, err = telemetry.InitSentry(&settings.Telemetry, info.GetVersion())
		return err
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if flushTelemetry != nil {
			flushTelemetry()
		}
		if err := logger.Global().Flush(); err != nil {
			cmd.PrintErrln("flushing logs:", err)
		}
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config file (default: search ., ~/.config/partsimg, /etc/partsimg)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("backend", conf.BackendHTTP, "Object store backend: http or s3")
	flags.String("oci-url", "", "Base URL of the object read endpoint")
	flags.String("catalog-url", "", "Base URL of the catalog model lookup service")
	flags.String("log-level", logger.DefaultLogLevel, "Default log level")

	for name, key := range flagKeys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return errors.Newf("error binding flag %s: %w", name, err).
				Component("cmd").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}
	return nil
}

// initLogging replaces the fallback logger with one built from settings.
func initLogging(settings *conf.Settings) error {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = string(logger.LogLevelDebug)
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = cfg.DefaultLevel
			cfg.Console = &console
		}
	}

	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return errors.New(err).
			Component("cmd").
			Category(errors.CategoryConfiguration).
			Context("operation", "logger_init").
			Build()
	}
	logger.SetGlobal(central)
	return nil
}
