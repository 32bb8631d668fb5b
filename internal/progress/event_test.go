package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	now := time.Now()
	tests := []struct {
		name    string
		evt     Event
		wantErr string
	}{
		{name: "run start", evt: Event{RunID: id, TS: now, Stage: StageRunStart}},
		{name: "probe done", evt: Event{RunID: id, TS: now, Stage: StageProbeDone, Chain: "x", Result: ResultDuplicate}},
		{name: "probe error", evt: Event{RunID: id, TS: now, Stage: StageProbeError, Note: "timeout"}},
		{name: "missing run", evt: Event{TS: now, Stage: StageRunStart}, wantErr: "run id"},
		{name: "missing ts", evt: Event{RunID: id, Stage: StageRunStart}, wantErr: "timestamp"},
		{name: "done without chain", evt: Event{RunID: id, TS: now, Stage: StageProbeDone, Result: ResultNew}, wantErr: "requires chain"},
		{name: "done bad result", evt: Event{RunID: id, TS: now, Stage: StageProbeDone, Chain: "x", Result: ResultError}, wantErr: "result"},
		{name: "unknown stage", evt: Event{RunID: id, TS: now, Stage: "NOPE"}, wantErr: "unknown stage"},
		{name: "negative dur", evt: Event{RunID: id, TS: now, Stage: StageRunDone, Dur: -1}, wantErr: "duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.evt.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestResultFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, ResultNew, ResultFor(true))
	require.Equal(t, ResultDuplicate, ResultFor(false))
}
