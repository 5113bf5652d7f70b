package contracts

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Stage identifies one external pipeline stage.
type Stage string

const (
	StageRecognize  Stage = "recognize"
	StageTranslate  Stage = "translate"
	StageSynthesize Stage = "synthesize"
)

// Validate enforces supported stage values.
func (s Stage) Validate() error {
	switch s {
	case StageRecognize, StageTranslate, StageSynthesize:
		return nil
	default:
		return fmt.Errorf("unsupported stage: %q", s)
	}
}

// Transcript is the normalized recognition result.
type Transcript struct {
	Text       string
	Language   string
	Confidence float64
}

// TranslationRequest carries one utterance into the translation stage.
type TranslationRequest struct {
	Text           string
	SourceLanguage string
	TargetLanguage string
	Style          string
	HotWords       []string
}

// Validate enforces required translation inputs.
func (r TranslationRequest) Validate() error {
	if r.Text == "" {
		return fmt.Errorf("text is required")
	}
	if r.TargetLanguage == "" {
		return fmt.Errorf("target_language is required")
	}
	return nil
}

// SpeechRequest carries translated text into the synthesis stage.
type SpeechRequest struct {
	Text    string
	VoiceID string
}

// Validate enforces required synthesis inputs.
func (r SpeechRequest) Validate() error {
	if r.Text == "" {
		return fmt.Errorf("text is required")
	}
	if r.VoiceID == "" {
		return fmt.Errorf("voice_id is required")
	}
	return nil
}

// Audio is a synthesized utterance as an ordered chunk sequence. Providers
// that return a single buffer produce one chunk.
type Audio struct {
	Chunks [][]byte
	Format string
}

// Bytes returns the concatenated audio payload.
func (a Audio) Bytes() []byte {
	switch len(a.Chunks) {
	case 0:
		return nil
	case 1:
		return a.Chunks[0]
	}
	total := 0
	for _, chunk := range a.Chunks {
		total += len(chunk)
	}
	out := make([]byte, 0, total)
	for _, chunk := range a.Chunks {
		out = append(out, chunk...)
	}
	return out
}

// Empty reports whether the audio carries no payload bytes.
func (a Audio) Empty() bool {
	for _, chunk := range a.Chunks {
		if len(chunk) > 0 {
			return false
		}
	}
	return true
}

// Recognizer converts utterance samples into text. Implementations must honor
// context cancellation; the shared recognizer handle carries no per-session
// mutable state.
type Recognizer interface {
	Recognize(ctx context.Context, samples []byte) (Transcript, error)
}

// Translator converts recognized text into the target language.
type Translator interface {
	Translate(ctx context.Context, req TranslationRequest) (string, error)
}

// Synthesizer converts translated text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (Audio, error)
}

// OutcomeClass is the normalized stage-outcome taxonomy used for logging and
// telemetry.
type OutcomeClass string

const (
	OutcomeSuccess               OutcomeClass = "success"
	OutcomeTimeout               OutcomeClass = "timeout"
	OutcomeOverload              OutcomeClass = "overload"
	OutcomeBlocked               OutcomeClass = "blocked"
	OutcomeInfrastructureFailure OutcomeClass = "infrastructure_failure"
	OutcomeCancelled             OutcomeClass = "cancelled"
)

// ProviderError attaches a normalized outcome class to a stage failure.
type ProviderError struct {
	Class  OutcomeClass
	Reason string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Reason, e.Class, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Reason, e.Class)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Classify maps an error to its normalized outcome class.
func Classify(err error) OutcomeClass {
	if err == nil {
		return OutcomeSuccess
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Class
	}
	if errors.Is(err, context.Canceled) {
		return OutcomeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeInfrastructureFailure
}

// StaticRecognizer is a function-backed recognizer for tests and the local
// runner.
type StaticRecognizer struct {
	Fn func(ctx context.Context, samples []byte) (Transcript, error)
}

func (r StaticRecognizer) Recognize(ctx context.Context, samples []byte) (Transcript, error) {
	if r.Fn != nil {
		return r.Fn(ctx, samples)
	}
	return Transcript{Text: fmt.Sprintf("utterance-%d-bytes", len(samples)), Language: "en", Confidence: 1}, nil
}

// StaticTranslator is a function-backed translator for tests and the local
// runner.
type StaticTranslator struct {
	Fn func(ctx context.Context, req TranslationRequest) (string, error)
}

func (t StaticTranslator) Translate(ctx context.Context, req TranslationRequest) (string, error) {
	if t.Fn != nil {
		return t.Fn(ctx, req)
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("[%s] %s", req.TargetLanguage, req.Text), nil
}

// StaticSynthesizer is a function-backed synthesizer for tests and the local
// runner.
type StaticSynthesizer struct {
	Fn func(ctx context.Context, req SpeechRequest) (Audio, error)
}

func (s StaticSynthesizer) Synthesize(ctx context.Context, req SpeechRequest) (Audio, error) {
	if s.Fn != nil {
		return s.Fn(ctx, req)
	}
	if err := req.Validate(); err != nil {
		return Audio{}, err
	}
	return Audio{Chunks: [][]byte{[]byte(req.Text)}, Format: "pcm"}, nil
}
