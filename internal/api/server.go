package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/redirect-chains/internal/progress/sinks"
	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

const (
	defaultChainLimit = 100
	maxChainLimit     = 10000
	requestTimeout    = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// ChainReader is the read side of the chain store.
type ChainReader interface {
	Snapshot() []redirect.Entry
	Len() int
	Streak() int
	Threshold() int
	Closed() bool
}

// SummaryReader exposes the folded progress summary.
type SummaryReader interface {
	Snapshot() sinks.Summary
}

// Options wires the server to the running probe.
type Options struct {
	Chains  ChainReader
	Signal  *redirect.Signal
	Summary SummaryReader
	// Gatherer backs /metrics; nil uses the default gatherer.
	Gatherer prometheus.Gatherer
	// Registerer receives the HTTP request collectors; nil uses the default.
	Registerer prometheus.Registerer
	Logger     *zap.Logger
}

// Server wires HTTP handlers to the chain store and the stop signal.
type Server struct {
	router  chi.Router
	chains  ChainReader
	signal  *redirect.Signal
	summary SummaryReader
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) (*Server, error) {
	if opts.Chains == nil || opts.Signal == nil {
		return nil, errors.New("api: chain reader and stop signal are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	metrics, err := newHTTPMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}
	s := &Server{
		chains:  opts.Chains,
		signal:  opts.Signal,
		summary: opts.Summary,
		logger:  opts.Logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(opts.Logger))
	r.Use(recoverMiddleware(opts.Logger))
	r.Use(metrics.middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/chains", s.listChains)
		r.Get("/summary", s.getSummary)
		r.Post("/stop", s.stop)
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server started", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listChains handles GET /v1/chains?limit=. Chains come back in first-seen
// order; 400 for an invalid limit.
func (s *Server) listChains(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultChainLimit, maxChainLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries := s.chains.Snapshot()
	total := len(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	writeJSON(w, http.StatusOK, chainsResponse{
		Unique:     total,
		Streak:     s.chains.Streak(),
		Threshold:  s.chains.Threshold(),
		Stopped:    s.signal.Stopped(),
		StopReason: string(s.signal.Reason()),
		Chains:     toChainDTOs(entries),
	})
}

func (s *Server) getSummary(w http.ResponseWriter, _ *http.Request) {
	if s.summary == nil {
		writeError(w, http.StatusServiceUnavailable, "progress summary unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": s.summary.Snapshot()})
}

// stop handles POST /v1/stop. It is idempotent; 202 when this call set the
// signal, 200 when it was already set.
func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	if s.signal.Stop(redirect.StopInterrupt) {
		s.logger.Info("stop requested over http")
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]string{"stop_reason": string(s.signal.Reason())})
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}

type chainsResponse struct {
	Unique     int        `json:"unique"`
	Streak     int        `json:"streak"`
	Threshold  int        `json:"threshold"`
	Stopped    bool       `json:"stopped"`
	StopReason string     `json:"stop_reason,omitempty"`
	Chains     []chainDTO `json:"chains"`
}

type chainDTO struct {
	Chain string   `json:"chain"`
	Hops  []string `json:"hops"`
	Count int      `json:"count"`
}

func toChainDTOs(in []redirect.Entry) []chainDTO {
	out := make([]chainDTO, 0, len(in))
	for _, e := range in {
		out = append(out, chainDTO{
			Chain: e.Chain.Key(),
			Hops:  e.Chain,
			Count: e.Count,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
