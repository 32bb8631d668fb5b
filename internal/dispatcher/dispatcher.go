// Package dispatcher runs a pool of probe workers against one seed and
// returns once every worker has exited.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

// Runner is one worker loop.
type Runner interface {
	Run(ctx context.Context) error
}

// Factory builds the worker with the given 1-based index.
type Factory func(id int) (Runner, error)

// Snapshotter exposes the final chain table.
type Snapshotter interface {
	Snapshot() []redirect.Entry
}

// Config describes one run.
type Config struct {
	Seed    string
	Workers int
}

// Result summarizes a finished run.
type Result struct {
	Reason  redirect.StopReason
	Entries []redirect.Entry
	Elapsed time.Duration
}

// Dispatcher fans a run out to Workers goroutines sharing one stop signal.
type Dispatcher struct {
	cfg     Config
	signal  *redirect.Signal
	factory Factory
	table   Snapshotter
	logger  *zap.Logger
}

// New creates a Dispatcher. table may be nil, in which case Result.Entries is
// empty.
func New(cfg Config, signal *redirect.Signal, factory Factory, table Snapshotter, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, signal: signal, factory: factory, table: table, logger: logger}
}

// Run validates the seed, starts the workers and blocks until all of them
// return. Canceling ctx sets the stop signal with StopInterrupt; workers
// finish their in-flight probe first. An invalid seed or worker count fails
// before any worker starts.
func (d *Dispatcher) Run(ctx context.Context) (Result, error) {
	if err := redirect.ValidateSeed(d.cfg.Seed); err != nil {
		return Result{}, err
	}
	if d.cfg.Workers < 1 {
		return Result{}, fmt.Errorf("%w: worker count must be at least 1, got %d", redirect.ErrInvalidInput, d.cfg.Workers)
	}
	if d.signal == nil || d.factory == nil {
		return Result{}, fmt.Errorf("dispatcher requires a signal and a worker factory")
	}

	runners := make([]Runner, 0, d.cfg.Workers)
	for id := 1; id <= d.cfg.Workers; id++ {
		r, err := d.factory(id)
		if err != nil {
			return Result{}, fmt.Errorf("build worker %d: %w", id, err)
		}
		runners = append(runners, r)
	}

	start := time.Now()
	go func() {
		select {
		case <-ctx.Done():
			if d.signal.Stop(redirect.StopInterrupt) {
				d.logger.Info("interrupt received; waiting for in-flight probes")
			}
		case <-d.signal.Done():
		}
	}()

	d.logger.Info("starting workers", zap.Int("workers", len(runners)), zap.String("seed", d.cfg.Seed))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, r := range runners {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				d.signal.Stop(redirect.StopFailures)
			}
		}(r)
	}
	wg.Wait()

	res := Result{Reason: d.signal.Reason(), Elapsed: time.Since(start)}
	if d.table != nil {
		res.Entries = d.table.Snapshot()
	}
	d.logger.Info("all workers stopped",
		zap.String("reason", string(res.Reason)),
		zap.Int("unique", len(res.Entries)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, errors.Join(errs...)
}
