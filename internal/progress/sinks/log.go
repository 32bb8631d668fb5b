package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/redirect-chains/internal/progress"
)

// LogSink writes one structured line per event. New chains and run
// milestones log at info; duplicates at debug; probe errors at warn.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageRunStart:
			s.logger.Info("run started", append(fields, zap.String("seed", evt.Seed), zap.Int("unique", evt.Unique))...)
		case progress.StageRunDone:
			s.logger.Info("run finished", append(fields,
				zap.Int("unique", evt.Unique),
				zap.Duration("dur", evt.Dur),
				zap.String("reason", evt.Note),
			)...)
		case progress.StageProbeError:
			s.logger.Warn("probe failed", append(fields,
				zap.Int("worker", evt.Worker),
				zap.Duration("dur", evt.Dur),
				zap.String("error", evt.Note),
			)...)
		case progress.StageProbeDone:
			fields = append(fields,
				zap.Int("worker", evt.Worker),
				zap.String("chain", evt.Chain),
				zap.Int("count", evt.Count),
				zap.Int("streak", evt.Streak),
				zap.Duration("dur", evt.Dur),
			)
			if evt.Result == progress.ResultNew {
				s.logger.Info("new redirect chain", fields...)
			} else {
				s.logger.Debug("duplicate redirect chain", fields...)
			}
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
