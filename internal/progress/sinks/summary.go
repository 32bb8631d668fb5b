package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/redirect-chains/internal/progress"
)

// Summary is a point-in-time view of the current run.
type Summary struct {
	RunID      string    `json:"run_id,omitempty"`
	Seed       string    `json:"seed,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	StopReason string    `json:"stop_reason,omitempty"`
	Probes     int       `json:"probes"`
	NewChains  int       `json:"new_chains"`
	Duplicates int       `json:"duplicates"`
	Failures   int       `json:"failures"`
	Unique     int       `json:"unique"`
	Streak     int       `json:"streak"`
	LastChain  string    `json:"last_chain,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// SummarySink folds events into a Summary readable at any time.
type SummarySink struct {
	mu      sync.RWMutex
	summary Summary
}

// NewSummarySink returns an empty summary.
func NewSummarySink() *SummarySink {
	return &SummarySink{}
}

// Consume folds batch into the summary.
func (s *SummarySink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		sum := &s.summary
		switch evt.Stage {
		case progress.StageRunStart:
			*sum = Summary{
				RunID:     evt.RunID.String(),
				Seed:      evt.Seed,
				StartedAt: evt.TS,
				Unique:    evt.Unique,
			}
		case progress.StageProbeDone:
			sum.Probes++
			if evt.Result == progress.ResultNew {
				sum.NewChains++
			} else {
				sum.Duplicates++
			}
			sum.Unique = evt.Unique
			sum.Streak = evt.Streak
			sum.LastChain = evt.Chain
		case progress.StageProbeError:
			sum.Probes++
			sum.Failures++
			sum.LastError = evt.Note
		case progress.StageRunDone:
			sum.FinishedAt = evt.TS
			sum.StopReason = evt.Note
			sum.Unique = evt.Unique
		}
	}
	return nil
}

// Snapshot returns a copy of the current summary.
func (s *SummarySink) Snapshot() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// Close implements progress.Sink.
func (s *SummarySink) Close(context.Context) error {
	return nil
}
