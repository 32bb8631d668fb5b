// Package tracer follows the redirect chain of a single probe.
package tracer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

const (
	defaultStabilizationTimeout = 5 * time.Second
	defaultMaxHops              = 50
)

// Config controls how long the tracer waits for each hop.
type Config struct {
	// StabilizationTimeout bounds each wait for the URL to change.
	StabilizationTimeout time.Duration
	// MaxHops caps chain length so redirect loops terminate.
	MaxHops int
	// Stopped reports whether the run has ended. Once it returns true the
	// chain can no longer be recorded, so capture is skipped. Nil never stops.
	Stopped func() bool
}

// Tracer drives a navigation session until its URL stops changing.
type Tracer struct {
	cfg      Config
	capturer *Capturer
	logger   *zap.Logger
}

// New builds a Tracer. capturer may be nil.
func New(cfg Config, capturer *Capturer, logger *zap.Logger) *Tracer {
	if cfg.StabilizationTimeout <= 0 {
		cfg.StabilizationTimeout = defaultStabilizationTimeout
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = defaultMaxHops
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{cfg: cfg, capturer: capturer, logger: logger}
}

func (t *Tracer) stopped() bool {
	return t.cfg.Stopped != nil && t.cfg.Stopped()
}

// Trace loads seed and records every URL transition until the session is
// stable for StabilizationTimeout. The seed is validated before the session
// is touched.
func (t *Tracer) Trace(ctx context.Context, session redirect.Session, seed string) (redirect.TraceResult, error) {
	if err := redirect.ValidateSeed(seed); err != nil {
		return redirect.TraceResult{}, err
	}
	if session == nil {
		return redirect.TraceResult{}, fmt.Errorf("%w: no session", redirect.ErrNavigationFailure)
	}

	start := time.Now()
	chain := redirect.Chain{seed}
	t.logger.Debug("visiting", zap.String("url", seed))
	if err := session.Navigate(ctx, seed); err != nil {
		return redirect.TraceResult{}, fmt.Errorf("%w: navigate %s: %w", redirect.ErrNavigationFailure, seed, err)
	}

	for len(chain) < t.cfg.MaxHops {
		last := chain.Final()
		next, err := session.WaitForChange(ctx, last, t.cfg.StabilizationTimeout)
		if errors.Is(err, redirect.ErrStable) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return redirect.TraceResult{}, fmt.Errorf("%w: %w", redirect.ErrNavigationFailure, ctxErr)
			}
			t.logger.Debug("url poll failed; treating chain as settled", zap.String("url", last), zap.Error(err))
			break
		}
		if next == "" || next == last {
			break
		}
		t.logger.Debug("redirected", zap.String("from", last), zap.String("to", next))
		chain = append(chain, next)
		// Some redirects only fire on a fresh load of the target.
		if err := session.Navigate(ctx, next); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return redirect.TraceResult{}, fmt.Errorf("%w: %w", redirect.ErrNavigationFailure, ctxErr)
			}
			t.logger.Debug("reload failed; ending chain", zap.String("url", next), zap.Error(err))
			break
		}
	}
	if len(chain) >= t.cfg.MaxHops {
		t.logger.Warn("chain hit hop limit", zap.Int("max_hops", t.cfg.MaxHops), zap.String("seed", seed))
	}

	result := redirect.TraceResult{
		Chain:    chain,
		Duration: time.Since(start),
	}
	if t.capturer != nil && !t.stopped() {
		result.Captured = t.capturer.Capture(ctx, session, chain)
	}
	return result, nil
}
