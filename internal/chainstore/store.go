// Package chainstore holds the shared chain table and the duplicate-streak
// controller behind a single mutex.
package chainstore

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

type record struct {
	chain redirect.Chain
	count int
}

// Store maps chains to occurrence counts. Observe, the streak update, the
// threshold test and the snapshot rewrite happen under one lock.
type Store struct {
	mu         sync.Mutex
	index      map[string]int
	records    []record
	controller *Controller
	persister  redirect.Persister
	closed     bool
	logger     *zap.Logger
}

// New creates an empty store. persister may be nil.
func New(threshold int, persister redirect.Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		index:      make(map[string]int),
		controller: NewController(threshold),
		persister:  persister,
		logger:     logger,
	}
}

// Load seeds the store from a persisted snapshot. Counts for chains already
// present are added together. Load must run before any worker starts.
func (s *Store) Load(entries []redirect.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range entries {
		if len(entry.Chain) == 0 {
			return fmt.Errorf("entry %d: empty chain", i)
		}
		if entry.Count <= 0 {
			return fmt.Errorf("entry %d: count must be > 0, got %d", i, entry.Count)
		}
		key := entry.Chain.Key()
		if idx, ok := s.index[key]; ok {
			s.records[idx].count += entry.Count
			continue
		}
		s.index[key] = len(s.records)
		s.records = append(s.records, record{chain: entry.Chain.Clone(), count: entry.Count})
	}
	return nil
}

// Observe records one traced chain. Persistence failures are logged and do
// not fail the observation; the next observation rewrites the full table.
func (s *Store) Observe(ctx context.Context, chain redirect.Chain) (redirect.Observation, error) {
	if len(chain) == 0 {
		return redirect.Observation{}, fmt.Errorf("%w: empty chain", redirect.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return redirect.Observation{}, redirect.ErrStoreClosed
	}

	key := chain.Key()
	obs := redirect.Observation{}
	if idx, ok := s.index[key]; ok {
		s.records[idx].count++
		obs.Count = s.records[idx].count
	} else {
		s.index[key] = len(s.records)
		s.records = append(s.records, record{chain: chain.Clone(), count: 1})
		obs.IsNew = true
		obs.Count = 1
	}
	obs.ShouldStop = s.controller.Register(obs.IsNew)
	obs.Streak = s.controller.Streak()
	obs.Unique = len(s.records)
	if obs.ShouldStop {
		s.closed = true
	}

	s.persistLocked(ctx)
	return obs, nil
}

func (s *Store) persistLocked(ctx context.Context) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Persist(ctx, s.snapshotLocked()); err != nil {
		s.logger.Error("snapshot write failed",
			zap.Error(fmt.Errorf("%w: %w", redirect.ErrPersistenceFailure, err)),
			zap.Int("unique_chains", len(s.records)),
		)
	}
}

// Flush rewrites the snapshot outside of an observation, e.g. after resume.
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistLocked(ctx)
}

// Snapshot returns the table in first-seen order.
func (s *Store) Snapshot() []redirect.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []redirect.Entry {
	out := make([]redirect.Entry, len(s.records))
	for i, rec := range s.records {
		out[i] = redirect.Entry{Chain: rec.chain.Clone(), Count: rec.count}
	}
	return out
}

// Contains reports whether chain has been observed.
func (s *Store) Contains(chain redirect.Chain) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[chain.Key()]
	return ok
}

// Len returns the number of unique chains.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Streak returns the current duplicate streak.
func (s *Store) Streak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.Streak()
}

// Threshold returns the configured stop threshold.
func (s *Store) Threshold() int {
	return s.controller.Threshold()
}

// Closed reports whether the stop threshold has fired.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
