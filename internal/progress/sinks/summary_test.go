package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/redirect-chains/internal/progress"
)

func runEvents(runID uuid.UUID, start time.Time) []progress.Event {
	return []progress.Event{
		{RunID: runID, TS: start, Stage: progress.StageRunStart, Seed: "https://seed", Unique: 1},
		{RunID: runID, TS: start, Stage: progress.StageProbeDone, Worker: 1, Chain: "https://seed -> https://x", Result: progress.ResultNew, Unique: 2},
		{RunID: runID, TS: start, Stage: progress.StageProbeDone, Worker: 2, Chain: "https://seed", Result: progress.ResultDuplicate, Unique: 2, Streak: 1},
		{RunID: runID, TS: start, Stage: progress.StageProbeError, Worker: 1, Note: "navigation failure"},
		{RunID: runID, TS: start.Add(time.Minute), Stage: progress.StageRunDone, Unique: 2, Note: "threshold"},
	}
}

func TestSummarySinkFoldsRun(t *testing.T) {
	t.Parallel()

	sink := NewSummarySink()
	runID := uuid.New()
	start := time.Unix(1700000000, 0)
	require.NoError(t, sink.Consume(context.Background(), runEvents(runID, start)))

	got := sink.Snapshot()
	require.Equal(t, Summary{
		RunID:      runID.String(),
		Seed:       "https://seed",
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		StopReason: "threshold",
		Probes:     3,
		NewChains:  1,
		Duplicates: 1,
		Failures:   1,
		Unique:     2,
		Streak:     1,
		LastChain:  "https://seed",
		LastError:  "navigation failure",
	}, got)
	require.NoError(t, sink.Close(context.Background()))
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), runEvents(uuid.New(), time.Now())))

	require.Equal(t, 1, logs.FilterMessage("new redirect chain").Len())
	require.Equal(t, 1, logs.FilterMessage("duplicate redirect chain").Len())
	require.Equal(t, 1, logs.FilterMessage("probe failed").Len())
	require.Equal(t, 1, logs.FilterMessage("run finished").Len())
	entry := logs.FilterMessage("new redirect chain").All()[0]
	require.Equal(t, "https://seed -> https://x", entry.ContextMap()["chain"])
}
