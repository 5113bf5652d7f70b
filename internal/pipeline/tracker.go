package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tiger/realtime-translator/internal/telemetry"
	"github.com/tiger/realtime-translator/providers/contracts"
)

var (
	// ErrQueueFull indicates admission was rejected because the session
	// already holds maxQueueDepth non-terminal tasks.
	ErrQueueFull = errors.New("task queue is full")
	// ErrTrackerClosed indicates the tracker no longer admits segments.
	ErrTrackerClosed = errors.New("task tracker is closed")
)

// TrackerConfig bounds per-session in-flight work.
type TrackerConfig struct {
	// MaxQueueDepth caps non-terminal tasks per session. A new segment
	// arriving at the cap is rejected; in-flight work is never evicted.
	MaxQueueDepth int
	// TaskTimeout is the total per-task budget measured from creation.
	TaskTimeout time.Duration
	// SweepInterval controls how often the background sweep evaluates task
	// age.
	SweepInterval time.Duration
	// Now is injectable for tests.
	Now func() time.Time
}

func (c TrackerConfig) withDefaults() TrackerConfig {
	if c.MaxQueueDepth < 1 {
		c.MaxQueueDepth = 3
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 8 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 100 * time.Millisecond
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Tracker owns the per-session bounded set of in-flight tasks and their
// state machines. Terminal records are handed to the sequencer; every
// admitted sequence eventually produces exactly one record, so the delivery
// cursor never waits on a gap forever.
type Tracker struct {
	cfg       TrackerConfig
	sessionID string
	exec      *Executor
	seq       *Sequencer
	logger    *log.Logger
	emitter   telemetry.Emitter

	mu     sync.Mutex
	tasks  map[uint64]*Task
	closed bool

	dropsTotal uint64

	wg   sync.WaitGroup
	stop chan struct{}
}

// NewTracker constructs a tracker bound to one session's sequencer.
func NewTracker(cfg TrackerConfig, sessionID string, exec *Executor, seq *Sequencer, logger *log.Logger) (*Tracker, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if exec == nil || seq == nil {
		return nil, fmt.Errorf("executor and sequencer are required")
	}
	if logger == nil {
		logger = log.Default()
	}
	t := &Tracker{
		cfg:       cfg.withDefaults(),
		sessionID: sessionID,
		exec:      exec,
		seq:       seq,
		logger:    logger.With("session", sessionID),
		emitter:   telemetry.DefaultEmitter(),
		tasks:     make(map[uint64]*Task),
		stop:      make(chan struct{}),
	}
	t.wg.Add(1)
	go t.sweep()
	return t, nil
}

// Admit decides whether a new segment enters the in-flight set. Rejection
// still produces a Dropped(queue-full) record so the sequencer can advance
// past the gap.
func (t *Tracker) Admit(segment Segment, settings Settings) error {
	if err := segment.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTrackerClosed
	}
	if len(t.tasks) >= t.cfg.MaxQueueDepth {
		t.dropsTotal++
		t.mu.Unlock()

		rec := Record{
			TaskID:     fmt.Sprintf("%s/%d", segment.SessionID, segment.Sequence),
			Sequence:   segment.Sequence,
			Outcome:    OutcomeDropped,
			DropReason: DropQueueFull,
			CreatedAt:  t.cfg.Now(),
		}
		t.logDrop(rec)
		t.offer(rec)
		return fmt.Errorf("%w: segment %d rejected", ErrQueueFull, segment.Sequence)
	}

	task := newTask(segment, settings, t.cfg.Now())
	ctx, cancel := context.WithDeadline(context.Background(), task.createdAt.Add(t.cfg.TaskTimeout))
	task.cancel = cancel
	t.tasks[segment.Sequence] = task
	depth := len(t.tasks)
	t.wg.Add(1)
	t.mu.Unlock()

	t.emitter.EmitMetric(telemetry.MetricQueueDepth, float64(depth), "", telemetry.Correlation{SessionID: t.sessionID})
	go t.run(ctx, cancel, task)
	return nil
}

// InFlight returns the count of non-terminal tasks.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// DropsTotal returns the number of tasks that reached Dropped.
func (t *Tracker) DropsTotal() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropsTotal
}

// DropAll cancels every non-terminal task with the given reason. The tracker
// stays open; new segments are admitted as slots free up.
func (t *Tracker) DropAll(reason DropReason) int {
	t.mu.Lock()
	pending := make([]*Task, 0, len(t.tasks))
	for _, task := range t.tasks {
		pending = append(pending, task)
	}
	t.mu.Unlock()

	for _, task := range pending {
		task.requestDrop(reason)
	}
	return len(pending)
}

// Close cancels all non-terminal tasks with teardown semantics and waits for
// their goroutines. Further admission is rejected.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.wg.Wait()
		return
	}
	t.closed = true
	pending := make([]*Task, 0, len(t.tasks))
	for _, task := range t.tasks {
		pending = append(pending, task)
	}
	t.mu.Unlock()

	close(t.stop)
	for _, task := range pending {
		task.requestDrop(DropTeardown)
	}
	t.wg.Wait()
}

func (t *Tracker) run(ctx context.Context, cancel context.CancelFunc, task *Task) {
	defer t.wg.Done()
	defer cancel()

	if _, err := task.advance(); err != nil {
		t.finish(task, task.record(OutcomeDropped, contracts.StageRecognize))
		return
	}
	transcript, err := t.exec.Recognize(ctx, task)
	if err != nil {
		t.resolveFailure(task, contracts.StageRecognize, err)
		return
	}
	task.mu.Lock()
	task.transcript = transcript
	task.mu.Unlock()

	// Silence that slipped past the segmenter recognizes to empty text. The
	// task completes with no payload so the sequence gap still resolves.
	if transcript.Text == "" {
		t.complete(task)
		return
	}

	if _, err := task.advance(); err != nil {
		t.finish(task, task.record(OutcomeDropped, contracts.StageTranslate))
		return
	}
	translated, err := t.exec.Translate(ctx, task, transcript.Text, transcript.Language)
	if err != nil {
		t.resolveFailure(task, contracts.StageTranslate, err)
		return
	}
	task.mu.Lock()
	task.translated = translated
	task.mu.Unlock()

	if _, err := task.advance(); err != nil {
		t.finish(task, task.record(OutcomeDropped, contracts.StageSynthesize))
		return
	}
	audio, err := t.exec.Synthesize(ctx, task, translated)
	if err != nil {
		t.resolveFailure(task, contracts.StageSynthesize, err)
		return
	}
	task.mu.Lock()
	task.audio = audio
	task.mu.Unlock()

	t.complete(task)
}

func (t *Tracker) complete(task *Task) {
	task.mu.Lock()
	if !task.state.Terminal() {
		task.state = StateComplete
	}
	task.mu.Unlock()
	t.finish(task, task.record(OutcomeComplete, ""))
}

// resolveFailure classifies a stage error: cancellation and deadline expiry
// drop the task (timeout or teardown), everything else fails it. Failures are
// never retried.
func (t *Tracker) resolveFailure(task *Task, stage contracts.Stage, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, ErrStageTimeout) {
		reason := task.pendingDropReason()
		if task.markDropped(reason) {
			t.mu.Lock()
			t.dropsTotal++
			t.mu.Unlock()
		}
		rec := task.record(OutcomeDropped, stage)
		t.logDrop(rec)
		t.finish(task, rec)
		return
	}

	task.markFailed(err)
	rec := task.record(OutcomeFailed, stage)
	t.logger.Error("stage failed",
		"task", rec.TaskID,
		"sequence", rec.Sequence,
		"stage", string(stage),
		"class", string(contracts.Classify(err)),
		"err", err)
	t.finish(task, rec)
}

// finish releases the queue slot and hands the terminal record to the
// sequencer. The slot frees before delivery so the next segment can be
// admitted immediately.
func (t *Tracker) finish(task *Task, rec Record) {
	t.mu.Lock()
	delete(t.tasks, task.Sequence())
	depth := len(t.tasks)
	t.mu.Unlock()

	t.emitter.EmitMetric(telemetry.MetricQueueDepth, float64(depth), "", telemetry.Correlation{SessionID: t.sessionID})
	t.offer(rec)
}

func (t *Tracker) offer(rec Record) {
	if err := t.seq.Offer(rec); err != nil {
		// A stale or duplicate record means the sequence was already resolved;
		// discard rather than deliver out of order.
		t.logger.Warn("terminal record discarded",
			"task", rec.TaskID,
			"sequence", rec.Sequence,
			"outcome", string(rec.Outcome),
			"err", err)
	}
}

func (t *Tracker) logDrop(rec Record) {
	t.emitter.EmitMetric(telemetry.MetricDropsTotal, 1, "", telemetry.Correlation{
		SessionID: t.sessionID,
		TaskID:    rec.TaskID,
		Sequence:  rec.Sequence,
		Stage:     string(rec.Stage),
	})
	t.logger.Warn("task dropped",
		"task", rec.TaskID,
		"sequence", rec.Sequence,
		"stage", string(rec.Stage),
		"reason", string(rec.DropReason))
}

// sweep evicts tasks whose total elapsed time exceeds the task budget. The
// per-task context deadline backstops this; the sweep exists so a slot is
// observed free within one tick of expiry even if the stage goroutine is slow
// to notice.
func (t *Tracker) sweep() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			now := t.cfg.Now()
			t.mu.Lock()
			var expired []*Task
			for _, task := range t.tasks {
				if now.Sub(task.createdAt) >= t.cfg.TaskTimeout {
					expired = append(expired, task)
				}
			}
			t.mu.Unlock()
			for _, task := range expired {
				task.requestDrop(DropTimeout)
			}
		}
	}
}
