// internal/common/audit/sink.go
package audit

import (
	"context"
	stderrors "errors"

	"commitment-reaper/internal/common/logger"
	"commitment-reaper/internal/models"
)

// Sink persists run reports.
type Sink interface {
	Name() string
	Record(ctx context.Context, report *models.RunReport) error
}

// MultiSink writes to every sink and reports all failures together.
type MultiSink struct {
	sinks  []Sink
	logger logger.Logger
}

func NewMultiSink(log logger.Logger, sinks ...Sink) *MultiSink {
	return &MultiSink{
		sinks:  sinks,
		logger: log.WithFields(map[string]interface{}{"component": "audit"}),
	}
}

func (m *MultiSink) Len() int { return len(m.sinks) }

func (m *MultiSink) Record(ctx context.Context, report *models.RunReport) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, report); err != nil {
			m.logger.WithError(err).Warn("audit sink write failed", map[string]interface{}{
				"sink":  s.Name(),
				"runId": report.RunID,
			})
			errs = append(errs, err)
			continue
		}
		m.logger.Debug("run report recorded", map[string]interface{}{"sink": s.Name(), "runId": report.RunID})
	}
	return stderrors.Join(errs...)
}
