package telemetry

import (
	"context"

	"github.com/charmbracelet/log"
)

// LogSink exports telemetry events through a structured logger. It is the
// default server sink; heavier backends can replace it behind the same
// interface.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink constructs a sink writing at debug level.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Export(_ context.Context, event Event) error {
	switch {
	case event.Kind == EventKindMetric && event.Metric != nil:
		s.logger.Debug("metric",
			"name", event.Metric.Name,
			"value", event.Metric.Value,
			"unit", event.Metric.Unit,
			"session", event.Correlation.SessionID,
			"task", event.Correlation.TaskID,
			"stage", event.Correlation.Stage)
	case event.Kind == EventKindLog && event.Log != nil:
		s.logger.Debug(event.Log.Message,
			"severity", event.Log.Severity,
			"session", event.Correlation.SessionID,
			"task", event.Correlation.TaskID,
			"stage", event.Correlation.Stage)
	}
	return nil
}
