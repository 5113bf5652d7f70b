package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestLogSinkWritesMetricFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	sink := NewLogSink(logger)

	err := sink.Export(context.Background(), Event{
		Kind:        EventKindMetric,
		Correlation: Correlation{SessionID: "s-1", Stage: "translate"},
		Metric:      &MetricEvent{Name: MetricStageRTTMS, Value: 42, Unit: "ms"},
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	out := buf.String()
	for _, want := range []string{MetricStageRTTMS, "42", "s-1", "translate"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q: %s", want, out)
		}
	}
}

func TestLogSinkWritesLogMessage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	sink := NewLogSink(logger)

	err := sink.Export(context.Background(), Event{
		Kind:        EventKindLog,
		Correlation: Correlation{SessionID: "s-2"},
		Log:         &LogEvent{Severity: "warn", Message: "task dropped"},
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(buf.String(), "task dropped") {
		t.Fatalf("log output missing message: %s", buf.String())
	}
}

func TestLogSinkIgnoresMalformedEvents(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	sink := NewLogSink(logger)

	if err := sink.Export(context.Background(), Event{Kind: EventKindMetric}); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := sink.Export(context.Background(), Event{Kind: EventKindLog}); err != nil {
		t.Fatalf("export: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output for payload-less events: %s", buf.String())
	}
}
