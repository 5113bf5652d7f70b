package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tiger/realtime-translator/providers/contracts"
)

// State is one task lifecycle position.
type State string

const (
	StateQueued       State = "queued"
	StateRecognizing  State = "recognizing"
	StateTranslating  State = "translating"
	StateSynthesizing State = "synthesizing"
	StateComplete     State = "complete"
	StateDropped      State = "dropped"
	StateFailed       State = "failed"
)

// Terminal reports whether the state ends the task lifecycle.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateDropped, StateFailed:
		return true
	default:
		return false
	}
}

var nextState = map[State]State{
	StateQueued:       StateRecognizing,
	StateRecognizing:  StateTranslating,
	StateTranslating:  StateSynthesizing,
	StateSynthesizing: StateComplete,
}

// DropReason records why a task was dropped.
type DropReason string

const (
	DropQueueFull DropReason = "queue-full"
	DropTimeout   DropReason = "timeout"
	DropTeardown  DropReason = "teardown"
)

// Segment is one silence-bounded utterance extracted from the sample stream.
// Immutable after creation; sequence numbers are monotonic and gap-free per
// session at creation time.
type Segment struct {
	SessionID string
	Sequence  uint64
	StartMS   int64
	EndMS     int64
	Samples   []byte
}

// Validate enforces segment invariants.
func (s Segment) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if len(s.Samples) == 0 {
		return fmt.Errorf("segment samples must not be empty")
	}
	if s.EndMS < s.StartMS {
		return fmt.Errorf("segment end_ms %d precedes start_ms %d", s.EndMS, s.StartMS)
	}
	return nil
}

// Settings is the per-task configuration snapshot captured at creation.
// Mid-session configuration updates never touch tasks already in flight.
type Settings struct {
	SourceLanguage string
	TargetLanguage string
	Style          string
	HotWords       []string
	VoiceID        string
}

// Task tracks one segment through the three external stages.
type Task struct {
	mu sync.Mutex

	id        string
	segment   Segment
	settings  Settings
	state     State
	createdAt time.Time

	transcript contracts.Transcript
	translated string
	audio      contracts.Audio
	lastErr    error

	dropReason DropReason
	cancel     context.CancelFunc
}

func newTask(segment Segment, settings Settings, createdAt time.Time) *Task {
	return &Task{
		id:        fmt.Sprintf("%s/%d", segment.SessionID, segment.Sequence),
		segment:   segment,
		settings:  settings,
		state:     StateQueued,
		createdAt: createdAt,
	}
}

// ID returns the session-scoped task identifier.
func (t *Task) ID() string {
	return t.id
}

// Sequence returns the segment's spoken-order position.
func (t *Task) Sequence() uint64 {
	return t.segment.Sequence
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// CreatedAt returns the admission timestamp the timeout budget is measured
// from.
func (t *Task) CreatedAt() time.Time {
	return t.createdAt
}

// Settings returns the creation-time configuration snapshot.
func (t *Task) Settings() Settings {
	return t.settings
}

// advance moves the task to the next pipeline state. Terminal states never
// regress; advancing a terminal task returns an error so late stage
// completions cannot resurrect it.
func (t *Task) advance() (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return t.state, fmt.Errorf("task %s is terminal in state %s", t.id, t.state)
	}
	next, ok := nextState[t.state]
	if !ok {
		return t.state, fmt.Errorf("task %s has no transition from state %s", t.id, t.state)
	}
	t.state = next
	return next, nil
}

// markDropped transitions to Dropped unless already terminal.
func (t *Task) markDropped(reason DropReason) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return false
	}
	t.state = StateDropped
	t.dropReason = reason
	return true
}

// markFailed transitions to Failed unless already terminal.
func (t *Task) markFailed(err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return false
	}
	t.state = StateFailed
	t.lastErr = err
	return true
}

// requestDrop records the pending drop reason before cancelling the in-flight
// stage call, so the task goroutine can classify the cancellation.
func (t *Task) requestDrop(reason DropReason) {
	t.mu.Lock()
	if t.dropReason == "" {
		t.dropReason = reason
	}
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (t *Task) pendingDropReason() DropReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dropReason == "" {
		return DropTimeout
	}
	return t.dropReason
}

// Outcome classifies a terminal record.
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomeDropped  Outcome = "dropped"
	OutcomeFailed   Outcome = "failed"
)

// Record is the terminal result handed to the sequencer. For non-complete
// outcomes the payload fields are empty and delivery emits nothing, but the
// record still advances the delivery cursor past the sequence gap.
type Record struct {
	TaskID     string
	Sequence   uint64
	Outcome    Outcome
	DropReason DropReason
	Stage      contracts.Stage
	Err        error

	Transcript     contracts.Transcript
	TranslatedText string
	TargetLanguage string
	Audio          contracts.Audio

	CreatedAt time.Time
}

func (t *Task) record(outcome Outcome, stage contracts.Stage) Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := Record{
		TaskID:     t.id,
		Sequence:   t.segment.Sequence,
		Outcome:    outcome,
		DropReason: t.dropReason,
		Stage:      stage,
		Err:        t.lastErr,
		CreatedAt:  t.createdAt,
	}
	if outcome == OutcomeComplete {
		rec.Transcript = t.transcript
		rec.TranslatedText = t.translated
		rec.TargetLanguage = t.settings.TargetLanguage
		rec.Audio = t.audio
	}
	return rec
}
