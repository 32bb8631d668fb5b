package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/redirect-chains/internal/config"
	"github.com/JakeFAU/redirect-chains/internal/extract"
	"github.com/JakeFAU/redirect-chains/internal/logging"
)

type extractOptions struct {
	input      string
	output     string
	fang       bool
	ignoreList string
}

// newExtractCmd creates the 'extract' subcommand, which lists every distinct
// URL in a chain table.
func newExtractCmd(root *rootOptions) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Write the unique URLs found in a chain table, one per line",
		Example: `  redirect-chains extract --input redirect_chains.csv
  redirect-chains extract -i chains.csv -o iocs.txt --fang --ignore-list benign.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExtract(cmd, root, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "chain table CSV written by probe (required)")
	f.StringVarP(&opts.output, "output", "o", extract.DefaultOutput, "file to write URLs to")
	f.BoolVar(&opts.fang, "fang", false, `defang URLs by replacing "." with "[.]"`)
	f.StringVar(&opts.ignoreList, "ignore-list", "", "file of domains to leave out, one per line")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runExtract(cmd *cobra.Command, root *rootOptions, opts *extractOptions) error {
	if root.cfgFile != "" {
		root.v.SetConfigFile(root.cfgFile)
		if err := root.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	v := root.v
	logger, err := newLogger(config.LoggingConfig{
		Level:       v.GetString("logging.level"),
		Development: v.GetBool("logging.development"),
		File:        v.GetString("logging.file"),
		MaxSizeMB:   v.GetInt("logging.max_size_mb"),
		MaxBackups:  v.GetInt("logging.max_backups"),
	})
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ignore, err := extract.LoadIgnoreList(opts.ignoreList)
	if err != nil {
		return err
	}
	n, err := extract.File(opts.input, opts.output, extract.Options{Fang: opts.fang, Ignore: ignore})
	if err != nil {
		return fmt.Errorf("extract %s: %w", opts.input, err)
	}
	logger.Info("extracted urls", zap.String("input", opts.input), zap.String("output", opts.output), zap.Int("urls", n))
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d unique URLs to %s\n", n, opts.output)
	return nil
}
