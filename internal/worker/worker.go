// Package worker runs one probe loop: open a session, trace the seed, record
// the chain, repeat until the shared stop signal is set.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/redirect-chains/internal/clock/system"
	"github.com/JakeFAU/redirect-chains/internal/progress"
	"github.com/JakeFAU/redirect-chains/internal/publisher"
	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

// Tracer follows one seed through a session.
type Tracer interface {
	Trace(ctx context.Context, session redirect.Session, seed string) (redirect.TraceResult, error)
}

// Recorder records a traced chain and reports the termination decision.
type Recorder interface {
	Observe(ctx context.Context, chain redirect.Chain) (redirect.Observation, error)
}

// Config controls a Worker.
type Config struct {
	// ID is the 1-based worker index used in logs and events.
	ID    int
	Seed  string
	RunID uuid.UUID
	// Topic receives new-chain notifications when a publisher is set.
	Topic string
	// Limiter paces probes across all workers sharing it. Nil disables pacing.
	Limiter *rate.Limiter
	Backoff Backoff
	// MaxConsecutiveFailures stops the run after this many failed probes in
	// a row on one worker. Zero means unlimited.
	MaxConsecutiveFailures int
}

// Deps are the collaborators shared by all workers of a run.
type Deps struct {
	Driver     redirect.Driver
	Tracer     Tracer
	Recorder   Recorder
	Identities redirect.IdentitySource
	Publisher  redirect.Publisher
	Emitter    progress.Emitter
	Clock      redirect.Clock
	Signal     *redirect.Signal
	Logger     *zap.Logger
}

// Worker repeatedly probes the seed.
type Worker struct {
	cfg        Config
	driver     redirect.Driver
	tracer     Tracer
	recorder   Recorder
	identities redirect.IdentitySource
	publisher  redirect.Publisher
	emitter    progress.Emitter
	clock      redirect.Clock
	signal     *redirect.Signal
	logger     *zap.Logger
}

// New constructs a Worker.
func New(cfg Config, deps Deps) (*Worker, error) {
	if deps.Driver == nil || deps.Tracer == nil || deps.Recorder == nil || deps.Signal == nil {
		return nil, fmt.Errorf("worker %d: driver, tracer, recorder and signal are required", cfg.ID)
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Discard
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Topic == "" {
		cfg.Topic = publisher.DefaultTopic
	}
	return &Worker{
		cfg:        cfg,
		driver:     deps.Driver,
		tracer:     deps.Tracer,
		recorder:   deps.Recorder,
		identities: deps.Identities,
		publisher:  deps.Publisher,
		emitter:    deps.Emitter,
		clock:      deps.Clock,
		signal:     deps.Signal,
		logger:     deps.Logger.With(zap.Int("worker", cfg.ID)),
	}, nil
}

// ID returns the worker index.
func (w *Worker) ID() int {
	return w.cfg.ID
}

// Run probes until the stop signal is set. The signal is only checked between
// probes: a probe that has started runs to completion and its chain is still
// recorded, even if ctx is canceled meanwhile. Run returns an error only for
// an invalid seed.
func (w *Worker) Run(ctx context.Context) error {
	// waitCtx ends with the signal so pacing and backoff sleeps stop promptly.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.signal.Done():
			cancel()
		case <-waitCtx.Done():
		}
	}()
	probeCtx := context.WithoutCancel(ctx)

	w.logger.Debug("worker started")
	defer w.logger.Debug("worker stopped")
	failures := 0
	for {
		if ctx.Err() != nil {
			w.signal.Stop(redirect.StopInterrupt)
		}
		if w.signal.Stopped() {
			return nil
		}
		if w.cfg.Limiter != nil {
			if err := w.cfg.Limiter.Wait(waitCtx); err != nil {
				continue
			}
		}
		err := w.probe(probeCtx)
		switch {
		case err == nil:
			failures = 0
		case errors.Is(err, redirect.ErrInvalidInput):
			return err
		default:
			failures++
			if w.cfg.MaxConsecutiveFailures > 0 && failures >= w.cfg.MaxConsecutiveFailures {
				if w.signal.Stop(redirect.StopFailures) {
					w.logger.Error("giving up after consecutive failures", zap.Int("failures", failures))
				}
				return nil
			}
			w.cfg.Backoff.Wait(waitCtx, failures)
		}
	}
}

// probe runs one trace and records its outcome. A non-nil error means the
// probe produced no chain.
func (w *Worker) probe(ctx context.Context) error {
	start := w.clock.Now()
	identity := redirect.Identity{}
	if w.identities != nil {
		identity = w.identities.Next()
	}

	result, err := w.trace(ctx, identity)
	if err != nil {
		dur := w.clock.Now().Sub(start)
		w.logger.Warn("probe failed", zap.String("seed", w.cfg.Seed), zap.Duration("dur", dur), zap.Error(err))
		w.emit(progress.Event{Stage: progress.StageProbeError, Result: progress.ResultError, Dur: dur, Note: err.Error()})
		return err
	}

	obs, err := w.recorder.Observe(ctx, result.Chain)
	if errors.Is(err, redirect.ErrStoreClosed) {
		w.logger.Debug("run already stopped; discarding chain", zap.Stringer("chain", result.Chain))
		return nil
	}
	if err != nil {
		return fmt.Errorf("record chain: %w", err)
	}

	if obs.IsNew {
		w.notify(ctx, result, obs)
	}
	w.emit(progress.Event{
		Stage:  progress.StageProbeDone,
		Chain:  result.Chain.Key(),
		Hops:   len(result.Chain),
		Count:  obs.Count,
		Streak: obs.Streak,
		Unique: obs.Unique,
		Result: progress.ResultFor(obs.IsNew),
		Dur:    w.clock.Now().Sub(start),
	})
	if obs.ShouldStop && w.signal.Stop(redirect.StopThreshold) {
		w.logger.Info("no new chains within threshold; stopping",
			zap.Int("streak", obs.Streak),
			zap.Int("unique", obs.Unique),
		)
	}
	return nil
}

func (w *Worker) trace(ctx context.Context, identity redirect.Identity) (redirect.TraceResult, error) {
	if err := redirect.ValidateSeed(w.cfg.Seed); err != nil {
		return redirect.TraceResult{}, err
	}
	session, err := w.driver.Open(ctx, identity)
	if err != nil {
		return redirect.TraceResult{}, fmt.Errorf("%w: open session: %w", redirect.ErrNavigationFailure, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			w.logger.Debug("session close failed", zap.Error(cerr))
		}
	}()
	return w.tracer.Trace(ctx, session, w.cfg.Seed)
}

func (w *Worker) notify(ctx context.Context, result redirect.TraceResult, obs redirect.Observation) {
	if w.publisher == nil {
		return
	}
	event := publisher.NewChainDiscovered(w.cfg.RunID.String(), result.Chain, obs.Unique, result.Captured, w.clock.Now())
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
		w.logger.Warn("publish new chain failed", zap.Stringer("chain", result.Chain), zap.Error(err))
	}
}

func (w *Worker) emit(evt progress.Event) {
	evt.RunID = w.cfg.RunID
	evt.TS = w.clock.Now()
	evt.Worker = w.cfg.ID
	evt.Seed = w.cfg.Seed
	w.emitter.Emit(evt)
}
