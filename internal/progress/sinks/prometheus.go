package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/redirect-chains/internal/progress"
)

// PrometheusSink exports probe progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	probes        *prometheus.CounterVec
	uniqueChains  prometheus.Gauge
	streak        prometheus.Gauge
	probeDuration *prometheus.HistogramVec
	chainHops     prometheus.Histogram
}

// NewPrometheusSink registers the collectors against reg (the default
// registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redirect_runs_started_total",
			Help: "Probe runs started by this process.",
		}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redirect_probes_total",
			Help: "Completed probes partitioned by result (new, duplicate, error).",
		}, []string{"result"}),
		uniqueChains: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redirect_unique_chains",
			Help: "Distinct redirect chains recorded so far.",
		}),
		streak: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redirect_duplicate_streak",
			Help: "Consecutive duplicate observations since the last new chain.",
		}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redirect_probe_duration_seconds",
			Help:    "Wall time per probe, including stabilization waits.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"result"}),
		chainHops: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "redirect_chain_hops",
			Help:    "Number of URLs per observed chain.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.probes,
		s.uniqueChains,
		s.streak,
		s.probeDuration,
		s.chainHops,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			s.uniqueChains.Set(float64(evt.Unique))
			s.streak.Set(0)
		case progress.StageProbeDone:
			result := string(evt.Result)
			s.probes.WithLabelValues(result).Inc()
			s.uniqueChains.Set(float64(evt.Unique))
			s.streak.Set(float64(evt.Streak))
			s.chainHops.Observe(float64(evt.Hops))
			if evt.Dur > 0 {
				s.probeDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
			}
		case progress.StageProbeError:
			s.probes.WithLabelValues(string(progress.ResultError)).Inc()
			if evt.Dur > 0 {
				s.probeDuration.WithLabelValues(string(progress.ResultError)).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
