// Package app builds the long-lived services of one probe run from
// configuration and tears them down afterwards.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/redirect-chains/internal/api"
	collydriver "github.com/JakeFAU/redirect-chains/internal/browser/colly"
	"github.com/JakeFAU/redirect-chains/internal/browser/headless"
	roddriver "github.com/JakeFAU/redirect-chains/internal/browser/rod"
	"github.com/JakeFAU/redirect-chains/internal/chainstore"
	"github.com/JakeFAU/redirect-chains/internal/clock/system"
	"github.com/JakeFAU/redirect-chains/internal/config"
	"github.com/JakeFAU/redirect-chains/internal/dispatcher"
	uuidgen "github.com/JakeFAU/redirect-chains/internal/id/uuid"
	"github.com/JakeFAU/redirect-chains/internal/progress"
	progresssinks "github.com/JakeFAU/redirect-chains/internal/progress/sinks"
	"github.com/JakeFAU/redirect-chains/internal/publisher"
	memorypublisher "github.com/JakeFAU/redirect-chains/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/redirect-chains/internal/publisher/pubsub"
	"github.com/JakeFAU/redirect-chains/internal/redirect"
	"github.com/JakeFAU/redirect-chains/internal/snapshot"
	capturestore "github.com/JakeFAU/redirect-chains/internal/storage"
	gcsstorage "github.com/JakeFAU/redirect-chains/internal/storage/gcs"
	localstorage "github.com/JakeFAU/redirect-chains/internal/storage/local"
	memorystorage "github.com/JakeFAU/redirect-chains/internal/storage/memory"
	"github.com/JakeFAU/redirect-chains/internal/tracer"
	"github.com/JakeFAU/redirect-chains/internal/worker"
)

// Option overrides a dependency Build would otherwise construct.
type Option func(*options)

type options struct {
	driver    redirect.Driver
	publisher redirect.Publisher
	artifacts redirect.ArtifactStore
	registry  *prometheus.Registry
}

// WithDriver supplies the navigation driver instead of building one from
// browser.driver. The App still closes it.
func WithDriver(d redirect.Driver) Option {
	return func(o *options) { o.driver = d }
}

// WithPublisher supplies the new-chain publisher.
func WithPublisher(p redirect.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithArtifactStore supplies the capture store used when capture is enabled.
func WithArtifactStore(s redirect.ArtifactStore) Option {
	return func(o *options) { o.artifacts = s }
}

// WithRegistry registers metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// App contains the dependencies of one probe run.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	runID      uuid.UUID
	clock      redirect.Clock
	signal     *redirect.Signal
	store      *chainstore.Store
	resumed    int
	driver     redirect.Driver
	tracer     *tracer.Tracer
	identities redirect.IdentitySource
	publisher  redirect.Publisher
	limiter    *rate.Limiter
	registry   *prometheus.Registry
	hub        *progress.Hub
	summary    *progresssinks.SummarySink
	apiServer  *api.Server

	storageClient *storage.Client
	pubsub        *gcppublisher.Publisher
	postgres      *snapshot.PostgresWriter
}

// Build creates the application's dependencies. On error everything built
// so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		clock:    system.New(),
		signal:   redirect.NewSignal(),
		registry: o.registry,
	}
	defer func() {
		if err != nil {
			a.closeInfrastructure(context.WithoutCancel(ctx))
		}
	}()

	a.runID, err = uuidgen.NewGenerator().NewRunID()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	a.logger = logger.With(zap.String("run_id", a.runID.String()))
	a.logger.Info("building probe",
		zap.String("seed", cfg.Probe.URL),
		zap.Int("workers", cfg.Probe.Workers),
		zap.Int("threshold", cfg.Probe.Threshold),
		zap.String("driver", cfg.Browser.Driver),
	)

	if err = a.setupStore(ctx); err != nil {
		return nil, err
	}
	if err = a.setupTracer(ctx, o.artifacts); err != nil {
		return nil, err
	}
	if err = a.setupDriver(o.driver); err != nil {
		return nil, err
	}
	if err = a.setupPublisher(ctx, o.publisher); err != nil {
		return nil, err
	}
	if err = a.setupProgress(); err != nil {
		return nil, err
	}
	if err = a.setupServer(); err != nil {
		return nil, err
	}

	a.identities = redirect.NewUserAgentPool(cfg.Browser.UserAgent, cfg.Browser.RandomUserAgent, nil)
	if cfg.Probe.RatePerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.Probe.RatePerSecond), max(1, cfg.Probe.RateBurst))
	}
	return a, nil
}

// RunID identifies this run in logs, events and notifications.
func (a *App) RunID() uuid.UUID {
	return a.runID
}

// Signal is the run's cooperative stop flag.
func (a *App) Signal() *redirect.Signal {
	return a.signal
}

// Store exposes the chain table.
func (a *App) Store() *chainstore.Store {
	return a.store
}

// Summary returns the folded progress of the run.
func (a *App) Summary() progresssinks.Summary {
	return a.summary.Snapshot()
}

func (a *App) gcsClient(ctx context.Context) (*storage.Client, error) {
	if a.storageClient != nil {
		return a.storageClient, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	a.storageClient = client
	return client, nil
}

func (a *App) setupStore(ctx context.Context) error {
	cfg := a.cfg
	file, err := snapshot.NewFileWriter(cfg.Probe.Output)
	if err != nil {
		return fmt.Errorf("snapshot file: %w", err)
	}
	persisters := snapshot.Multi{file}

	var gcsCfg snapshot.GCSConfig
	if cfg.Snapshot.GCSBucket != "" {
		client, err := a.gcsClient(ctx)
		if err != nil {
			return err
		}
		gcsCfg = snapshot.GCSConfig{Bucket: cfg.Snapshot.GCSBucket, Object: cfg.Snapshot.GCSObject}
		w, err := snapshot.NewGCSWriter(client, gcsCfg)
		if err != nil {
			return fmt.Errorf("snapshot gcs: %w", err)
		}
		persisters = append(persisters, w)
		a.logger.Info("mirroring chain table to gcs", zap.String("uri", w.URI()))
	}
	if cfg.Snapshot.PostgresDSN != "" {
		a.postgres, err = snapshot.NewPostgresWriter(ctx, snapshot.PostgresConfig{
			DSN:   cfg.Snapshot.PostgresDSN,
			Table: cfg.Snapshot.PostgresTable,
		})
		if err != nil {
			return fmt.Errorf("snapshot postgres: %w", err)
		}
		persisters = append(persisters, a.postgres)
		a.logger.Info("mirroring chain table to postgres", zap.String("table", cfg.Snapshot.PostgresTable))
	}

	a.store = chainstore.New(cfg.Probe.Threshold, persisters, a.logger.Named("store"))
	if !cfg.Probe.Resume {
		// A fresh run owns the output: start it as a header-only table.
		if err := file.Persist(ctx, nil); err != nil {
			return fmt.Errorf("reset %s: %w", cfg.Probe.Output, err)
		}
		return nil
	}

	entries, err := snapshot.LoadFile(cfg.Probe.Output)
	if err != nil {
		return fmt.Errorf("resume from %s: %w", cfg.Probe.Output, err)
	}
	if len(entries) == 0 && a.storageClient != nil && gcsCfg.Bucket != "" {
		entries, err = snapshot.LoadGCS(ctx, a.storageClient, gcsCfg)
		if err != nil {
			return fmt.Errorf("resume from gcs: %w", err)
		}
	}
	if err := a.store.Load(entries); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	a.resumed = len(entries)
	if a.resumed > 0 {
		a.logger.Info("resumed chain table", zap.Int("unique_chains", a.store.Len()))
	}
	return nil
}

func (a *App) setupTracer(ctx context.Context, artifacts redirect.ArtifactStore) error {
	cfg := a.cfg
	var capturer *tracer.Capturer
	if cfg.Capture.Enabled {
		if artifacts == nil {
			var err error
			artifacts, err = a.newArtifactStore(ctx)
			if err != nil {
				return err
			}
		}
		var err error
		capturer, err = tracer.NewCapturer(artifacts, tracer.CaptureMode(cfg.Capture.Mode), a.store.Contains, a.logger.Named("capture"))
		if err != nil {
			return fmt.Errorf("capture init failed: %w", err)
		}
		a.logger.Info("page capture enabled",
			zap.String("mode", cfg.Capture.Mode),
			zap.String("backend", cfg.Capture.Backend),
		)
	}
	a.tracer = tracer.New(tracer.Config{
		StabilizationTimeout: cfg.Probe.Wait,
		MaxHops:              cfg.Probe.MaxHops,
		Stopped:              a.signal.Stopped,
	}, capturer, a.logger.Named("tracer"))
	return nil
}

func (a *App) newArtifactStore(ctx context.Context) (redirect.ArtifactStore, error) {
	cfg := a.cfg.Capture
	switch cfg.Backend {
	case capturestore.BackendGCS:
		client, err := a.gcsClient(ctx)
		if err != nil {
			return nil, err
		}
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.GCSBucket, Prefix: cfg.GCSPrefix})
		if err != nil {
			return nil, fmt.Errorf("gcs capture store init failed: %w", err)
		}
		return store, nil
	case capturestore.BackendMemory:
		return memorystorage.NewBlobStore(), nil
	default:
		store, err := localstorage.New(localstorage.Config{Dir: cfg.Dir})
		if err != nil {
			return nil, fmt.Errorf("local capture store init failed: %w", err)
		}
		return store, nil
	}
}

func (a *App) setupDriver(driver redirect.Driver) error {
	if driver != nil {
		a.driver = driver
		return nil
	}
	cfg := a.cfg.Browser
	switch cfg.Driver {
	case config.DriverRod:
		d, err := roddriver.NewDriver(roddriver.Config{
			ExecPath:          cfg.Path,
			Headless:          cfg.Headless,
			Stealth:           cfg.Stealth,
			NavigationTimeout: cfg.NavTimeout,
			PollInterval:      cfg.PollInterval,
		})
		if err != nil {
			return fmt.Errorf("rod driver init failed: %w", err)
		}
		a.driver = d
	case config.DriverHTTP:
		a.driver = collydriver.NewDriver(collydriver.Config{NavigationTimeout: cfg.NavTimeout})
	default:
		d, err := headless.NewDriver(headless.Config{
			ExecPath:          cfg.Path,
			Headless:          cfg.Headless,
			NavigationTimeout: cfg.NavTimeout,
			PollInterval:      cfg.PollInterval,
			MaxParallel:       cfg.MaxParallel,
		})
		if err != nil {
			return fmt.Errorf("chromedp driver init failed: %w", err)
		}
		a.driver = d
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context, pub redirect.Publisher) error {
	if pub != nil {
		a.publisher = pub
		return nil
	}
	cfg := a.cfg.Notify
	if cfg.ProjectID == "" || cfg.Topic == "" {
		a.logger.Debug("no Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	p, err := gcppublisher.Dial(ctx, cfg.ProjectID, cfg.Topic)
	if err != nil {
		return fmt.Errorf("pubsub init failed: %w", err)
	}
	a.pubsub = p
	a.publisher = p
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.ProjectID),
		zap.String("topic", cfg.Topic),
	)
	return nil
}

func (a *App) setupProgress() error {
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	a.summary = progresssinks.NewSummarySink()
	cfg := a.cfg.Progress
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.BatchEvents,
		MaxBatchWait:   cfg.BatchWait,
		SinkTimeout:    cfg.SinkTimeout,
		Logger:         a.logger.Named("progress_hub"),
	},
		progresssinks.NewLogSink(a.logger.Named("progress")),
		promSink,
		a.summary,
	)
	return nil
}

func (a *App) setupServer() error {
	if a.cfg.Server.Addr == "" {
		return nil
	}
	var err error
	a.apiServer, err = api.NewServer(api.Options{
		Chains:     a.store,
		Signal:     a.signal,
		Summary:    a.summary,
		Gatherer:   a.registry,
		Registerer: a.registry,
		Logger:     a.logger.Named("api"),
	})
	if err != nil {
		return fmt.Errorf("status server init failed: %w", err)
	}
	return nil
}

func (a *App) newWorker(id int) (dispatcher.Runner, error) {
	cfg := a.cfg.Probe
	return worker.New(worker.Config{
		ID:    id,
		Seed:  cfg.URL,
		RunID: a.runID,
		Topic: a.cfg.Notify.Topic,
		// One limiter for all workers: rate_per_second is a global budget.
		Limiter:                a.limiter,
		Backoff:                worker.Backoff{Base: cfg.FailureBackoff, Max: cfg.FailureBackoffMax},
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
	}, worker.Deps{
		Driver:     a.driver,
		Tracer:     a.tracer,
		Recorder:   a.store,
		Identities: a.identities,
		Publisher:  a.publisher,
		Emitter:    a.hub,
		Clock:      a.clock,
		Signal:     a.signal,
		Logger:     a.logger.Named("worker").With(zap.Int("worker", id)),
	})
}

// Run probes until the threshold, an interrupt (ctx canceled) or a POST to
// /v1/stop. The final table has been persisted when Run returns.
func (a *App) Run(ctx context.Context) (dispatcher.Result, error) {
	a.hub.Emit(progress.Event{
		RunID:  a.runID,
		TS:     a.clock.Now(),
		Stage:  progress.StageRunStart,
		Seed:   a.cfg.Probe.URL,
		Unique: a.store.Len(),
	})

	serverCtx, stopServer := context.WithCancel(context.WithoutCancel(ctx))
	serverDone := make(chan struct{})
	if a.apiServer != nil {
		go func() {
			defer close(serverDone)
			if err := a.apiServer.Serve(serverCtx, a.cfg.Server.Addr); err != nil {
				a.logger.Error("status server error", zap.Error(err))
			}
		}()
	} else {
		close(serverDone)
	}
	defer func() {
		stopServer()
		<-serverDone
	}()

	d := dispatcher.New(
		dispatcher.Config{Seed: a.cfg.Probe.URL, Workers: a.cfg.Probe.Workers},
		a.signal,
		a.newWorker,
		a.store,
		a.logger.Named("dispatcher"),
	)
	res, err := d.Run(ctx)
	a.store.Flush(context.WithoutCancel(ctx))

	a.hub.Emit(progress.Event{
		RunID:  a.runID,
		TS:     a.clock.Now(),
		Stage:  progress.StageRunDone,
		Seed:   a.cfg.Probe.URL,
		Unique: len(res.Entries),
		Dur:    res.Elapsed,
		Note:   string(res.Reason),
	})
	if err != nil {
		return res, fmt.Errorf("probe run: %w", err)
	}
	return res, nil
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.driver != nil {
		if err := a.driver.Close(); err != nil {
			a.logger.Warn("driver close failed", zap.Error(err))
		}
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub close failed", zap.Error(err))
		}
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}

// Discovered returns the notifications held by the in-memory publisher, if
// that is the publisher in use.
func (a *App) Discovered() []publisher.ChainDiscovered {
	if mem, ok := a.publisher.(*memorypublisher.Publisher); ok {
		return mem.Discovered()
	}
	return nil
}

// ExitError reports whether err should end the command with a non-zero
// status: invalid input always does; other run errors only when no chain was
// recorded.
func ExitError(err error, res dispatcher.Result) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redirect.ErrInvalidInput) {
		return true
	}
	return len(res.Entries) == 0
}

// Fprint writes the end-of-run summary line.
func Fprint(w io.Writer, res dispatcher.Result, output string) {
	_, _ = fmt.Fprintf(w, "Collected %d unique redirect chains (stopped: %s) in %s; table written to %s\n",
		len(res.Entries), res.Reason, res.Elapsed.Round(time.Millisecond), output)
}
