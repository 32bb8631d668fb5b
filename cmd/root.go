// Package cmd defines and implements the CLI commands for the redirect-chains
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/redirect-chains/internal/app"
	"github.com/JakeFAU/redirect-chains/internal/config"
	"github.com/JakeFAU/redirect-chains/internal/dispatcher"
	"github.com/JakeFAU/redirect-chains/internal/logging"
)

// App is what the probe command needs from the application. Tests swap the
// factory below for a fake.
type App interface {
	Run(ctx context.Context) (dispatcher.Result, error)
	Close(ctx context.Context) error
}

var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.Build(ctx, cfg, logger)
}

type rootOptions struct {
	cfgFile string
	v       *viper.Viper
}

// newRootCmd creates the root command and its subcommands around a fresh
// Viper instance.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.NewViper()}
	cmd := &cobra.Command{
		Use:   "redirect-chains",
		Short: "Discover the redirect chains behind a URL by probing it repeatedly.",
		Long: `redirect-chains loads a seed URL over and over with a pool of browser
workers, records every distinct redirect chain it lands on, and stops once
no new chain has been seen for a configurable number of probes.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().String("log-level", "off", "log level: debug, info, warn, error or off")
	cmd.PersistentFlags().String("log-file", "", "also write JSON logs to this rotating file")
	mustBind(opts.v, "logging.level", cmd.PersistentFlags().Lookup("log-level"))
	mustBind(opts.v, "logging.file", cmd.PersistentFlags().Lookup("log-file"))

	cmd.AddCommand(newProbeCmd(opts), newExtractCmd(opts))
	return cmd
}

// newLogger builds the process logger from the logging section and installs
// it as the zap global.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Level,
		Development: cfg.Development,
		File:        cfg.File,
		MaxSizeMB:   cfg.MaxSizeMB,
		MaxBackups:  cfg.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
