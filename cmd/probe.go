package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/redirect-chains/internal/app"
	"github.com/JakeFAU/redirect-chains/internal/config"
	"github.com/JakeFAU/redirect-chains/internal/logging"
)

// newProbeCmd creates the 'probe' subcommand, which runs one discovery run
// against a seed URL.
func newProbeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe a seed URL until no new redirect chains appear",
		Long: `Starts a pool of workers that each load the seed URL in a fresh browser
session and follow it to wherever it settles. Every distinct chain is counted
and the table is rewritten to --output after each probe. The run ends after
--threshold consecutive probes without a new chain, or on Ctrl-C.`,
		Example: `  redirect-chains probe --url https://example.com/go --threads 8
  redirect-chains probe -u https://example.com/go --driver rod --stealth --capture`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProbe(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringP("url", "u", "", "seed URL to probe (required)")
	f.IntP("threads", "t", 10, "number of parallel workers")
	f.StringP("output", "o", "redirect_chains.csv", "chain table CSV, also read on resume")
	f.Int("threshold", 100, "stop after this many consecutive probes without a new chain")
	f.Duration("wait", 5*time.Second, "how long a URL must stay unchanged to count as settled")
	f.Int("max-hops", 50, "longest chain recorded before a probe is cut off")
	f.Bool("resume", false, "load the existing output table before probing")
	f.String("driver", config.DriverChromedp, "navigation driver: chromedp, rod or http")
	f.String("browser-path", "", "browser executable (default: auto-detect)")
	f.Bool("headless", true, "run the browser without a window")
	f.String("user-agent", "", "fixed user agent for every probe")
	f.Bool("random-user-agent", false, "pick a random user agent per probe")
	f.Bool("stealth", false, "inject anti-detection scripts (rod only)")
	f.Bool("capture", false, "save the landing page the first time a chain is seen")
	f.String("capture-mode", config.CaptureChain, "capture once per chain or once per final domain")
	f.String("output-dir", "html_collection", "directory for captured pages")
	f.Float64("rate", 0, "maximum probes per second across all workers (0 = unlimited)")
	f.String("addr", "", "serve status and metrics on this address, e.g. :8080")

	bindAll(opts.v, f, map[string]string{
		"url":               "probe.url",
		"threads":           "probe.workers",
		"output":            "probe.output",
		"threshold":         "probe.threshold",
		"wait":              "probe.wait",
		"max-hops":          "probe.max_hops",
		"resume":            "probe.resume",
		"driver":            "browser.driver",
		"browser-path":      "browser.path",
		"headless":          "browser.headless",
		"user-agent":        "browser.user_agent",
		"random-user-agent": "browser.random_user_agent",
		"stealth":           "browser.stealth",
		"capture":           "capture.enabled",
		"capture-mode":      "capture.mode",
		"output-dir":        "capture.dir",
		"rate":              "probe.rate_per_second",
		"addr":              "server.addr",
	})
	return cmd
}

func runProbe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := config.Load(opts.v, opts.cfgFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("close failed", zap.Error(cerr))
		}
	}()

	res, err := a.Run(ctx)
	if app.ExitError(err, res) {
		return err
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("probe run finished with errors", zap.Error(err))
	}
	app.Fprint(cmd.OutOrStdout(), res, cfg.Probe.Output)
	return nil
}
