package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event reports.
type Stage string

// Supported stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageProbeDone  Stage = "PROBE_DONE"
	StageProbeError Stage = "PROBE_ERROR"
	StageRunDone    Stage = "RUN_DONE"
)

// Result labels the outcome of a probe.
type Result string

// Probe results.
const (
	ResultNew       Result = "new"
	ResultDuplicate Result = "duplicate"
	ResultError     Result = "error"
)

// Event describes one probe or run milestone.
type Event struct {
	RunID uuid.UUID
	TS    time.Time
	Stage Stage
	// Worker is the 1-based worker index; zero for run-level events.
	Worker int
	Seed   string
	// Chain is the rendered chain for PROBE_DONE.
	Chain string
	Hops  int
	// Count is the chain's occurrence count after the observation.
	Count  int
	Streak int
	Unique int
	Result Result
	Dur    time.Duration
	// Note carries error text or the stop reason.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageProbeError:
	case StageProbeDone:
		if e.Chain == "" {
			return errors.New("probe done requires chain")
		}
		if e.Result != ResultNew && e.Result != ResultDuplicate {
			return fmt.Errorf("probe done result %q", e.Result)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ResultFor maps an observation flag to a probe result.
func ResultFor(isNew bool) Result {
	if isNew {
		return ResultNew
	}
	return ResultDuplicate
}
