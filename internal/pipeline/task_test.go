package pipeline

import (
	"testing"
	"time"

	"github.com/tiger/realtime-translator/providers/contracts"
)

func testSegment(sequence uint64) Segment {
	return Segment{
		SessionID: "session-1",
		Sequence:  sequence,
		StartMS:   0,
		EndMS:     900,
		Samples:   []byte{1, 2, 3, 4},
	}
}

func TestSegmentValidate(t *testing.T) {
	t.Parallel()

	if err := testSegment(0).Validate(); err != nil {
		t.Fatalf("valid segment rejected: %v", err)
	}

	missing := testSegment(0)
	missing.SessionID = ""
	if err := missing.Validate(); err == nil {
		t.Fatalf("expected error for missing session id")
	}

	empty := testSegment(0)
	empty.Samples = nil
	if err := empty.Validate(); err == nil {
		t.Fatalf("expected error for empty samples")
	}

	inverted := testSegment(0)
	inverted.StartMS, inverted.EndMS = 900, 0
	if err := inverted.Validate(); err == nil {
		t.Fatalf("expected error for inverted bounds")
	}
}

func TestTaskAdvancesThroughStages(t *testing.T) {
	t.Parallel()

	task := newTask(testSegment(4), Settings{TargetLanguage: "de"}, time.Now())
	if task.ID() != "session-1/4" {
		t.Fatalf("unexpected task id %q", task.ID())
	}
	if task.State() != StateQueued {
		t.Fatalf("expected queued, got %s", task.State())
	}

	want := []State{StateRecognizing, StateTranslating, StateSynthesizing, StateComplete}
	for _, expected := range want {
		state, err := task.advance()
		if err != nil {
			t.Fatalf("advance to %s: %v", expected, err)
		}
		if state != expected {
			t.Fatalf("expected %s, got %s", expected, state)
		}
	}
	if _, err := task.advance(); err == nil {
		t.Fatalf("expected error advancing a terminal task")
	}
}

func TestTerminalTaskCannotBeResurrected(t *testing.T) {
	t.Parallel()

	task := newTask(testSegment(1), Settings{}, time.Now())
	if !task.markDropped(DropTimeout) {
		t.Fatalf("expected drop to apply")
	}
	if task.markFailed(nil) {
		t.Fatalf("failed must not overwrite dropped")
	}
	if _, err := task.advance(); err == nil {
		t.Fatalf("expected error advancing a dropped task")
	}
	if task.State() != StateDropped {
		t.Fatalf("expected dropped, got %s", task.State())
	}
}

func TestRequestDropRecordsFirstReasonOnly(t *testing.T) {
	t.Parallel()

	task := newTask(testSegment(2), Settings{}, time.Now())
	task.requestDrop(DropTeardown)
	task.requestDrop(DropTimeout)
	if reason := task.pendingDropReason(); reason != DropTeardown {
		t.Fatalf("expected teardown, got %s", reason)
	}
}

func TestPendingDropReasonDefaultsToTimeout(t *testing.T) {
	t.Parallel()

	task := newTask(testSegment(3), Settings{}, time.Now())
	if reason := task.pendingDropReason(); reason != DropTimeout {
		t.Fatalf("expected timeout default, got %s", reason)
	}
}

func TestRecordCarriesPayloadOnlyWhenComplete(t *testing.T) {
	t.Parallel()

	task := newTask(testSegment(5), Settings{TargetLanguage: "fr"}, time.Now())
	task.mu.Lock()
	task.transcript = contracts.Transcript{Text: "hello", Language: "en"}
	task.translated = "bonjour"
	task.audio = contracts.Audio{Chunks: [][]byte{[]byte("mp3")}, Format: "mp3"}
	task.mu.Unlock()

	dropped := task.record(OutcomeDropped, contracts.StageTranslate)
	if dropped.TranslatedText != "" || !dropped.Audio.Empty() {
		t.Fatalf("dropped record must not carry payloads: %+v", dropped)
	}

	complete := task.record(OutcomeComplete, "")
	if complete.TranslatedText != "bonjour" || complete.TargetLanguage != "fr" {
		t.Fatalf("complete record missing payload: %+v", complete)
	}
	if complete.Transcript.Text != "hello" {
		t.Fatalf("complete record missing transcript: %+v", complete)
	}
}
