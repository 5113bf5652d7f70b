// Package session binds one client connection to its segmenter, task
// tracker, and delivery sequencer, and dispatches the control-channel
// protocol.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tiger/realtime-translator/api/wire"
	"github.com/tiger/realtime-translator/internal/pipeline"
	"github.com/tiger/realtime-translator/internal/segmenter"
	"github.com/tiger/realtime-translator/internal/telemetry"
	"github.com/tiger/realtime-translator/providers/contracts"
)

// Providers supplies the stage collaborators. The recognizer is a shared
// process-wide handle; translator and synthesizer are built per session from
// the client's configure credentials.
type Providers struct {
	Recognizer     contracts.Recognizer
	NewTranslator  func(apiKey string) contracts.Translator
	NewSynthesizer func(apiKey string) contracts.Synthesizer
}

func (p Providers) validate() error {
	if p.Recognizer == nil {
		return fmt.Errorf("recognizer is required")
	}
	if p.NewTranslator == nil || p.NewSynthesizer == nil {
		return fmt.Errorf("translator and synthesizer factories are required")
	}
	return nil
}

// Config aggregates the per-session pipeline tuning.
type Config struct {
	Segmenter segmenter.Config
	Tracker   pipeline.TrackerConfig
	Executor  pipeline.ExecutorConfig
}

// SendFunc delivers one outbound envelope to the client. It is called from
// pipeline goroutines and must be safe for concurrent use; it should never
// block on the peer.
type SendFunc func(wire.Envelope)

// Session owns the full per-connection pipeline. Inbound messages are
// dispatched serially by the transport read loop; outbound events flow from
// the sequencer in strict spoken order.
type Session struct {
	id        string
	cfg       Config
	providers Providers
	send      SendFunc
	logger    *log.Logger
	emitter   telemetry.Emitter

	translator  *swappableTranslator
	synthesizer *swappableSynthesizer

	mu         sync.Mutex
	life       *lifecycle
	settings   pipeline.Settings
	seg        *segmenter.Segmenter
	tracker    *pipeline.Tracker
	sequencer  *pipeline.Sequencer
	rejected   uint64
	seqCounter atomic.Uint64
}

// New constructs an unconfigured session for one connection.
func New(id string, cfg Config, providers Providers, send SendFunc, logger *log.Logger) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if send == nil {
		return nil, fmt.Errorf("send func is required")
	}
	if err := providers.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		id:          id,
		cfg:         cfg,
		providers:   providers,
		send:        send,
		logger:      logger.With("session", id),
		emitter:     telemetry.DefaultEmitter(),
		translator:  &swappableTranslator{},
		synthesizer: &swappableSynthesizer{},
		life:        newLifecycle(),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Dispatch handles one inbound envelope. Protocol violations and payload
// errors are reported to the client as error events; the connection stays up.
func (s *Session) Dispatch(env wire.Envelope) {
	var err error
	switch env.Type {
	case wire.TypeConfigure:
		err = s.handleConfigure(env)
	case wire.TypeStartRecording:
		err = s.handleStartRecording()
	case wire.TypeStopRecording:
		err = s.handleStopRecording()
	case wire.TypeAudioData:
		err = s.handleAudio(env)
	case wire.TypeGetStatus:
		s.sendEvent(wire.TypeStatus, s.Status())
	case wire.TypeClearAllTasks:
		s.handleClearAllTasks()
	default:
		err = fmt.Errorf("unsupported message type %q", env.Type)
	}
	if err != nil {
		s.logger.Warn("message rejected", "kind", string(env.Type), "err", err)
		s.sendEvent(wire.TypeError, wire.ErrorData{Error: err.Error()})
	}
}

func (s *Session) handleConfigure(env wire.Envelope) error {
	var data wire.ConfigureData
	if err := env.DecodeData(&data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}

	style := data.TranslationStyle
	if style == "" {
		style = wire.StyleDefault
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.life.configure(); err != nil {
		return err
	}

	// Credentials and style apply to tasks admitted from now on; tasks already
	// in flight keep their creation-time snapshot.
	s.settings = pipeline.Settings{
		SourceLanguage: data.SourceLanguage,
		TargetLanguage: data.TargetLanguage,
		Style:          string(style),
		HotWords:       append([]string(nil), data.HotWords...),
		VoiceID:        data.VoiceID,
	}
	s.translator.swap(s.providers.NewTranslator(data.TranslateAPIKey))
	s.synthesizer.swap(s.providers.NewSynthesizer(data.SpeechAPIKey))

	if s.tracker == nil {
		if err := s.buildPipeline(); err != nil {
			return err
		}
	}

	s.logger.Info("session configured",
		"target_language", data.TargetLanguage,
		"style", string(style),
		"hot_words", len(data.HotWords))
	s.sendEvent(wire.TypeConfigured, nil)
	return nil
}

// buildPipeline wires segmenter -> tracker -> sequencer once, on first
// configure. Caller holds s.mu.
func (s *Session) buildPipeline() error {
	seq, err := pipeline.NewSequencer(s.deliverRecord)
	if err != nil {
		return err
	}
	exec, err := pipeline.NewExecutor(s.cfg.Executor, s.providers.Recognizer, s.translator, s.synthesizer)
	if err != nil {
		return err
	}
	tracker, err := pipeline.NewTracker(s.cfg.Tracker, s.id, exec, seq, s.logger)
	if err != nil {
		return err
	}
	seg, err := segmenter.New(s.cfg.Segmenter, s.id, func() uint64 {
		return s.seqCounter.Add(1) - 1
	})
	if err != nil {
		tracker.Close()
		return err
	}
	s.sequencer = seq
	s.tracker = tracker
	s.seg = seg
	return nil
}

func (s *Session) handleStartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.life.startRecording(); err != nil {
		return err
	}
	s.logger.Info("recording started")
	s.sendEvent(wire.TypeRecordingStarted, nil)
	return nil
}

func (s *Session) handleStopRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.life.stopRecording(); err != nil {
		return err
	}
	// A trailing utterance that never hit the silence threshold is flushed so
	// the last words of a recording are not lost.
	if segment, ok := s.seg.Flush(); ok {
		s.admitLocked(segment)
	}
	s.logger.Info("recording stopped")
	s.sendEvent(wire.TypeRecordingStopped, nil)
	return nil
}

func (s *Session) handleAudio(env wire.Envelope) error {
	var data wire.AudioData
	if err := env.DecodeData(&data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}
	samples, err := data.Decode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.life.recording() {
		return fmt.Errorf("session is not recording")
	}
	for _, segment := range s.seg.Push(samples) {
		s.admitLocked(segment)
	}
	return nil
}

// admitLocked offers one segment to the tracker. Queue-full rejection is an
// expected overload outcome, not a protocol error; the tracker has already
// recorded the gap for the sequencer.
func (s *Session) admitLocked(segment pipeline.Segment) {
	s.emitter.EmitMetric(telemetry.MetricSegmentsEmitted, 1, "", telemetry.Correlation{
		SessionID: s.id,
		Sequence:  segment.Sequence,
	})
	if err := s.tracker.Admit(segment, s.settings); err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			s.rejected++
			return
		}
		s.logger.Error("segment admission failed", "sequence", segment.Sequence, "err", err)
	}
}

func (s *Session) handleClearAllTasks() {
	s.mu.Lock()
	tracker := s.tracker
	s.mu.Unlock()

	cleared := 0
	if tracker != nil {
		cleared = tracker.DropAll(pipeline.DropTeardown)
	}
	s.logger.Info("all tasks cleared", "count", cleared)
	s.sendEvent(wire.TypeAllTasksCleared, nil)
}

// Status reports the live pipeline counters.
func (s *Session) Status() wire.StatusData {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := wire.StatusData{
		Configured:       s.life.configured(),
		Recording:        s.life.recording(),
		SegmentsRejected: s.rejected,
	}
	if s.seg != nil {
		status.SegmentsEmitted = s.seg.Emitted()
	}
	if s.tracker != nil {
		status.InFlightTasks = s.tracker.InFlight()
	}
	if s.sequencer != nil {
		status.BufferedResults = s.sequencer.PendingCount()
		status.NextDeliverable = s.sequencer.NextDeliverable()
	}
	return status
}

// Close tears the session down. In-flight tasks are cancelled with teardown
// semantics and buffered results are discarded; nothing survives a reconnect.
func (s *Session) Close() {
	s.mu.Lock()
	s.life.end()
	tracker := s.tracker
	seq := s.sequencer
	s.mu.Unlock()

	if tracker != nil {
		tracker.Close()
	}
	if seq != nil {
		seq.Close()
	}
	s.logger.Info("session closed")
}

// deliverRecord converts one in-order terminal record into outbound events.
// Invoked with the sequencer lock held; it must not call back into the
// sequencer or take s.mu.
func (s *Session) deliverRecord(rec pipeline.Record) {
	if rec.Outcome != pipeline.OutcomeComplete {
		return
	}
	s.emitter.EmitMetric(telemetry.MetricDeliveryLagMS,
		float64(time.Since(rec.CreatedAt).Milliseconds()), "ms",
		telemetry.Correlation{SessionID: s.id, TaskID: rec.TaskID, Sequence: rec.Sequence})

	if rec.Transcript.Text == "" {
		// Silence recognized to empty text: the cursor advanced, nothing to say.
		return
	}
	s.sendEvent(wire.TypeTranscription, wire.TranscriptionData{
		Text:       rec.Transcript.Text,
		Language:   rec.Transcript.Language,
		Confidence: rec.Transcript.Confidence,
	})
	s.sendEvent(wire.TypeTranslation, wire.TranslationData{
		TaskID:         rec.TaskID,
		OriginalText:   rec.Transcript.Text,
		TranslatedText: rec.TranslatedText,
		TargetLanguage: rec.TargetLanguage,
	})

	chunks := rec.Audio.Chunks
	for i, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		s.sendEvent(wire.TypeAudioChunk, wire.AudioChunkData{
			TaskID:  rec.TaskID,
			Audio:   base64.StdEncoding.EncodeToString(chunk),
			Format:  rec.Audio.Format,
			Size:    len(chunk),
			IsFinal: i == len(chunks)-1,
		})
	}
}

func (s *Session) sendEvent(kind wire.MessageType, payload any) {
	env, err := wire.NewEvent(kind, payload)
	if err != nil {
		s.logger.Error("event marshal failed", "kind", string(kind), "err", err)
		return
	}
	s.send(env)
}

// swappableTranslator lets reconfigure replace the credentialed translator
// without rebuilding the tracker that holds in-flight tasks.
type swappableTranslator struct {
	v atomic.Value
}

func (s *swappableTranslator) swap(t contracts.Translator) {
	s.v.Store(&t)
}

func (s *swappableTranslator) Translate(ctx context.Context, req contracts.TranslationRequest) (string, error) {
	t, _ := s.v.Load().(*contracts.Translator)
	if t == nil || *t == nil {
		return "", &contracts.ProviderError{Class: contracts.OutcomeBlocked, Reason: "translator_not_configured"}
	}
	return (*t).Translate(ctx, req)
}

type swappableSynthesizer struct {
	v atomic.Value
}

func (s *swappableSynthesizer) swap(sy contracts.Synthesizer) {
	s.v.Store(&sy)
}

func (s *swappableSynthesizer) Synthesize(ctx context.Context, req contracts.SpeechRequest) (contracts.Audio, error) {
	sy, _ := s.v.Load().(*contracts.Synthesizer)
	if sy == nil || *sy == nil {
		return contracts.Audio{}, &contracts.ProviderError{Class: contracts.OutcomeBlocked, Reason: "synthesizer_not_configured"}
	}
	return (*sy).Synthesize(ctx, req)
}
