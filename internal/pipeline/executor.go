package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tiger/realtime-translator/internal/telemetry"
	"github.com/tiger/realtime-translator/providers/contracts"
)

// ErrStageTimeout marks a stage call that exceeded its time budget.
var ErrStageTimeout = errors.New("stage call timed out")

// StageError wraps a provider failure with the stage it occurred in.
type StageError struct {
	Stage contracts.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ExecutorConfig bounds stage concurrency and per-stage latency.
type ExecutorConfig struct {
	// MaxConcurrent limits concurrently running stage calls across the
	// executor. Saturation blocks submission until a slot frees; dropping is
	// an admission decision, never an executor decision.
	MaxConcurrent int
	// StageTimeout is the hard per-stage call budget.
	StageTimeout time.Duration
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 3
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = 6 * time.Second
	}
	return c
}

// Executor runs one external call per stage under bounded concurrency and a
// hard timeout. Provider calls run detached so a hung collaborator cannot
// block the timeout path; a late result is discarded.
type Executor struct {
	cfg         ExecutorConfig
	recognizer  contracts.Recognizer
	translator  contracts.Translator
	synthesizer contracts.Synthesizer
	slots       chan struct{}
	emitter     telemetry.Emitter
}

// NewExecutor constructs a stage executor over the three providers.
func NewExecutor(cfg ExecutorConfig, recognizer contracts.Recognizer, translator contracts.Translator, synthesizer contracts.Synthesizer) (*Executor, error) {
	if recognizer == nil || translator == nil || synthesizer == nil {
		return nil, fmt.Errorf("recognizer, translator, and synthesizer are required")
	}
	cfg = cfg.withDefaults()
	return &Executor{
		cfg:         cfg,
		recognizer:  recognizer,
		translator:  translator,
		synthesizer: synthesizer,
		slots:       make(chan struct{}, cfg.MaxConcurrent),
		emitter:     telemetry.DefaultEmitter(),
	}, nil
}

// Recognize runs the recognition stage for one task.
func (e *Executor) Recognize(ctx context.Context, task *Task) (contracts.Transcript, error) {
	var transcript contracts.Transcript
	err := e.runStage(ctx, task, contracts.StageRecognize, func(stageCtx context.Context) error {
		out, err := e.recognizer.Recognize(stageCtx, task.segment.Samples)
		if err != nil {
			return err
		}
		transcript = out
		return nil
	})
	if err != nil {
		return contracts.Transcript{}, err
	}
	return transcript, nil
}

// Translate runs the translation stage for one task.
func (e *Executor) Translate(ctx context.Context, task *Task, text, sourceLanguage string) (string, error) {
	settings := task.Settings()
	req := contracts.TranslationRequest{
		Text:           text,
		SourceLanguage: sourceLanguage,
		TargetLanguage: settings.TargetLanguage,
		Style:          settings.Style,
		HotWords:       settings.HotWords,
	}
	var translated string
	err := e.runStage(ctx, task, contracts.StageTranslate, func(stageCtx context.Context) error {
		out, err := e.translator.Translate(stageCtx, req)
		if err != nil {
			return err
		}
		if out == "" {
			return &contracts.ProviderError{Class: contracts.OutcomeInfrastructureFailure, Reason: "empty_translation"}
		}
		translated = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return translated, nil
}

// Synthesize runs the synthesis stage for one task.
func (e *Executor) Synthesize(ctx context.Context, task *Task, text string) (contracts.Audio, error) {
	req := contracts.SpeechRequest{Text: text, VoiceID: task.Settings().VoiceID}
	var audio contracts.Audio
	err := e.runStage(ctx, task, contracts.StageSynthesize, func(stageCtx context.Context) error {
		out, err := e.synthesizer.Synthesize(stageCtx, req)
		if err != nil {
			return err
		}
		audio = out
		return nil
	})
	if err != nil {
		return contracts.Audio{}, err
	}
	return audio, nil
}

func (e *Executor) runStage(ctx context.Context, task *Task, stage contracts.Stage, fn func(context.Context) error) error {
	if err := e.acquire(ctx); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	defer e.release()

	stageCtx, cancel := context.WithTimeout(ctx, e.cfg.StageTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- fn(stageCtx)
	}()

	correlation := telemetry.Correlation{
		SessionID: task.segment.SessionID,
		TaskID:    task.id,
		Sequence:  task.segment.Sequence,
		Stage:     string(stage),
	}

	select {
	case err := <-done:
		e.emitter.EmitMetric(telemetry.MetricStageRTTMS, float64(time.Since(start).Milliseconds()), "ms", correlation)
		if err != nil {
			return &StageError{Stage: stage, Err: err}
		}
		return nil
	case <-stageCtx.Done():
		// The provider goroutine may still be running; its eventual result is
		// discarded rather than allowed to block the timeout path.
		e.emitter.EmitLog("warn", "stage call abandoned", map[string]string{"cause": stageCtx.Err().Error()}, correlation)
		if ctx.Err() != nil {
			return &StageError{Stage: stage, Err: ctx.Err()}
		}
		return &StageError{Stage: stage, Err: fmt.Errorf("%w after %s", ErrStageTimeout, e.cfg.StageTimeout)}
	}
}

func (e *Executor) acquire(ctx context.Context) error {
	select {
	case e.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) release() {
	<-e.slots
}

// InFlight returns the number of currently held concurrency slots.
func (e *Executor) InFlight() int {
	return len(e.slots)
}
