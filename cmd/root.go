package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pagd-project/pagd-go/cmd/devices"
	"github.com/pagd-project/pagd-go/cmd/file"
	"github.com/pagd-project/pagd-go/cmd/labels"
	"github.com/pagd-project/pagd-go/cmd/realtime"
	"github.com/pagd-project/pagd-go/internal/buildinfo"
	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/logger"
)

// RootCommand creates and returns the root command. settings is filled
// from the config file, environment and flags before any subcommand runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "pagd",
		Short:         "Real-time gunshot detection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: search ./, ~/.config/pagd, /etc/pagd)")
	if err := setupFlags(rootCmd); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		realtime.Command(settings, build),
		file.Command(settings),
		labels.Command(settings),
		devices.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			conf.SetConfigFile(configPath)
		}
		loaded, err := conf.Load()
		if err != nil {
			return err
		}
		*settings = *loaded
		build.NodeName = settings.Main.Name
		return initLogging(settings)
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return logger.Global().Close()
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
// Flag values take precedence over the config file through viper.
func setupFlags(rootCmd *cobra.Command) error {
	flags := rootCmd.PersistentFlags()
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("node", "", "Detector node name included in reports")
	flags.String("log-level", "", "Default log level (trace, debug, info, warn, error)")

	bindings := map[string]string{
		"debug":     "debug",
		"node":      "main.name",
		"log-level": "main.log.default_level",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// initLogging installs the central logger described by the settings.
func initLogging(settings *conf.Settings) error {
	cfg := settings.Main.Log
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}

	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return err
	}
	logger.SetGlobal(central)
	return nil
}
