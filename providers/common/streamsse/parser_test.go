package streamsse

import (
	"errors"
	"strings"
	"testing"
)

func TestParseCollectsEvents(t *testing.T) {
	t.Parallel()

	input := "event: delta\ndata: one\n\n: comment line\ndata: two\ndata: three\n\n"
	var events []Event
	err := Parse(strings.NewReader(input), func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Event != "delta" || events[0].Data != "one" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].Data != "two\nthree" {
		t.Fatalf("expected multi-line data join, got %q", events[1].Data)
	}
}

func TestParseFlushesTrailingEvent(t *testing.T) {
	t.Parallel()

	var events []Event
	err := Parse(strings.NewReader("data: tail"), func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 1 || events[0].Data != "tail" {
		t.Fatalf("expected trailing event, got %+v", events)
	}
}

func TestParseHandlesCRLFStreams(t *testing.T) {
	t.Parallel()

	input := "event: delta\r\ndata: payload\r\n\r\n"
	var events []Event
	err := Parse(strings.NewReader(input), func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 1 || events[0].Event != "delta" || events[0].Data != "payload" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestParseFieldValueEdgeCases(t *testing.T) {
	t.Parallel()

	// Only the single space after the colon is delimiter; deeper whitespace
	// belongs to the value. A bare field name is a field with empty value.
	input := "data:no-space\n\ndata:  indented\n\ndata\ndata: second\n\n"
	var events []Event
	err := Parse(strings.NewReader(input), func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Data != "no-space" {
		t.Fatalf("unexpected data %q", events[0].Data)
	}
	if events[1].Data != " indented" {
		t.Fatalf("expected one preserved space, got %q", events[1].Data)
	}
	if events[2].Data != "\nsecond" {
		t.Fatalf("expected empty first data line, got %q", events[2].Data)
	}
}

func TestParseSkipsEventsWithoutData(t *testing.T) {
	t.Parallel()

	input := "event: ping\n\ndata: real\n\n"
	var events []Event
	err := Parse(strings.NewReader(input), func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 1 || events[0].Data != "real" {
		t.Fatalf("expected only the data-bearing event, got %+v", events)
	}
	if events[0].Event != "" {
		t.Fatalf("event name must reset between events, got %q", events[0].Event)
	}
}

func TestParseStopsOnCallbackError(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("stop")
	err := Parse(strings.NewReader("data: a\n\ndata: b\n\n"), func(Event) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected callback error, got %v", err)
	}
}
