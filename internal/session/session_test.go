package session

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/tiger/realtime-translator/api/wire"
	"github.com/tiger/realtime-translator/providers/contracts"
)

type eventLog struct {
	mu     sync.Mutex
	events []wire.Envelope
}

func (l *eventLog) send(env wire.Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, env)
}

func (l *eventLog) ofType(kind wire.MessageType) []wire.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []wire.Envelope
	for _, env := range l.events {
		if env.Type == kind {
			out = append(out, env)
		}
	}
	return out
}

func (l *eventLog) count(kind wire.MessageType) int {
	return len(l.ofType(kind))
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %s", timeout)
}

func testProviders() Providers {
	return Providers{
		Recognizer: contracts.StaticRecognizer{Fn: func(context.Context, []byte) (contracts.Transcript, error) {
			return contracts.Transcript{Text: "hello world", Language: "en", Confidence: 0.9}, nil
		}},
		NewTranslator: func(string) contracts.Translator {
			return contracts.StaticTranslator{}
		},
		NewSynthesizer: func(string) contracts.Synthesizer {
			return contracts.StaticSynthesizer{}
		},
	}
}

func newTestSession(t *testing.T) (*Session, *eventLog) {
	t.Helper()

	log := &eventLog{}
	sess, err := New("session-1", Config{}, testProviders(), log.send, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(sess.Close)
	return sess, log
}

func configureData() wire.ConfigureData {
	return wire.ConfigureData{
		TranslateAPIKey: "tk",
		SpeechAPIKey:    "sk",
		VoiceID:         "voice-1",
		TargetLanguage:  "de",
	}
}

func dispatch(t *testing.T, sess *Session, kind wire.MessageType, payload any) {
	t.Helper()

	env, err := wire.NewEvent(kind, payload)
	if err != nil {
		t.Fatalf("build %s message: %v", kind, err)
	}
	sess.Dispatch(env)
}

// pcmChunk builds 30ms frames of alternating-sign samples at the given
// amplitude, mimicking the segmenter test corpus.
func pcmChunk(amplitude int16, frameCount int) []byte {
	const samplesPerFrame = 480
	chunk := make([]byte, frameCount*samplesPerFrame*2)
	for i := 0; i < frameCount*samplesPerFrame; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(chunk[2*i:], uint16(v))
	}
	return chunk
}

func pushAudio(t *testing.T, sess *Session, chunk []byte) {
	t.Helper()
	dispatch(t, sess, wire.TypeAudioData, wire.AudioData{Audio: base64.StdEncoding.EncodeToString(chunk)})
}

func TestSessionRejectsRecordingBeforeConfigure(t *testing.T) {
	t.Parallel()

	sess, log := newTestSession(t)
	dispatch(t, sess, wire.TypeStartRecording, nil)

	if log.count(wire.TypeError) != 1 {
		t.Fatalf("expected one error event, got %d", log.count(wire.TypeError))
	}
	if log.count(wire.TypeRecordingStarted) != 0 {
		t.Fatalf("recording must not start unconfigured")
	}
}

func TestSessionFullUtteranceFlow(t *testing.T) {
	t.Parallel()

	sess, log := newTestSession(t)

	dispatch(t, sess, wire.TypeConfigure, configureData())
	if log.count(wire.TypeConfigured) != 1 {
		t.Fatalf("expected configured event")
	}
	dispatch(t, sess, wire.TypeStartRecording, nil)
	if log.count(wire.TypeRecordingStarted) != 1 {
		t.Fatalf("expected recording_started event")
	}

	pushAudio(t, sess, pcmChunk(40, 10))
	pushAudio(t, sess, pcmChunk(5000, 30))
	pushAudio(t, sess, pcmChunk(40, 20))

	waitUntil(t, 3*time.Second, func() bool { return log.count(wire.TypeAudioChunk) >= 1 })

	transcriptions := log.ofType(wire.TypeTranscription)
	if len(transcriptions) != 1 {
		t.Fatalf("expected one transcription, got %d", len(transcriptions))
	}
	var transcription wire.TranscriptionData
	if err := transcriptions[0].DecodeData(&transcription); err != nil {
		t.Fatalf("decode transcription: %v", err)
	}
	if transcription.Text != "hello world" || transcription.Language != "en" {
		t.Fatalf("unexpected transcription %+v", transcription)
	}

	var translation wire.TranslationData
	if err := log.ofType(wire.TypeTranslation)[0].DecodeData(&translation); err != nil {
		t.Fatalf("decode translation: %v", err)
	}
	if translation.OriginalText != "hello world" || translation.TargetLanguage != "de" {
		t.Fatalf("unexpected translation %+v", translation)
	}
	if translation.TranslatedText == "" {
		t.Fatalf("expected translated text")
	}

	var chunk wire.AudioChunkData
	if err := log.ofType(wire.TypeAudioChunk)[0].DecodeData(&chunk); err != nil {
		t.Fatalf("decode audio chunk: %v", err)
	}
	if !chunk.IsFinal {
		t.Fatalf("single-chunk audio must be final")
	}
	if chunk.Size == 0 || chunk.Audio == "" {
		t.Fatalf("audio chunk missing payload: %+v", chunk)
	}

	dispatch(t, sess, wire.TypeStopRecording, nil)
	if log.count(wire.TypeRecordingStopped) != 1 {
		t.Fatalf("expected recording_stopped event")
	}
}

func TestSessionStopFlushesTrailingUtterance(t *testing.T) {
	t.Parallel()

	sess, log := newTestSession(t)
	dispatch(t, sess, wire.TypeConfigure, configureData())
	dispatch(t, sess, wire.TypeStartRecording, nil)

	// Speech with no trailing silence; only the stop flush can emit it.
	pushAudio(t, sess, pcmChunk(40, 10))
	pushAudio(t, sess, pcmChunk(5000, 30))
	dispatch(t, sess, wire.TypeStopRecording, nil)

	waitUntil(t, 3*time.Second, func() bool { return log.count(wire.TypeTranscription) == 1 })
}

func TestSessionRejectsAudioWhileNotRecording(t *testing.T) {
	t.Parallel()

	sess, log := newTestSession(t)
	dispatch(t, sess, wire.TypeConfigure, configureData())

	pushAudio(t, sess, pcmChunk(5000, 5))
	if log.count(wire.TypeError) != 1 {
		t.Fatalf("expected error event for audio outside recording")
	}
}

func TestSessionStatusReflectsLifecycle(t *testing.T) {
	t.Parallel()

	sess, log := newTestSession(t)

	status := sess.Status()
	if status.Configured || status.Recording {
		t.Fatalf("fresh session must be unconfigured: %+v", status)
	}

	dispatch(t, sess, wire.TypeConfigure, configureData())
	dispatch(t, sess, wire.TypeStartRecording, nil)
	status = sess.Status()
	if !status.Configured || !status.Recording {
		t.Fatalf("expected configured and recording: %+v", status)
	}

	dispatch(t, sess, wire.TypeGetStatus, nil)
	if log.count(wire.TypeStatus) != 1 {
		t.Fatalf("expected status event")
	}
}

func TestSessionClearAllTasks(t *testing.T) {
	t.Parallel()

	sess, log := newTestSession(t)
	dispatch(t, sess, wire.TypeConfigure, configureData())
	dispatch(t, sess, wire.TypeClearAllTasks, nil)

	if log.count(wire.TypeAllTasksCleared) != 1 {
		t.Fatalf("expected all_tasks_cleared event")
	}
}

func TestSessionReconfigureAppliesToFutureTasks(t *testing.T) {
	t.Parallel()

	log := &eventLog{}
	var keysSeen []string
	var mu sync.Mutex
	providers := testProviders()
	providers.NewTranslator = func(apiKey string) contracts.Translator {
		mu.Lock()
		keysSeen = append(keysSeen, apiKey)
		mu.Unlock()
		return contracts.StaticTranslator{}
	}

	sess, err := New("session-1", Config{}, providers, log.send, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(sess.Close)

	dispatch(t, sess, wire.TypeConfigure, configureData())
	updated := configureData()
	updated.TranslateAPIKey = "tk-2"
	updated.TargetLanguage = "fr"
	dispatch(t, sess, wire.TypeConfigure, updated)

	if log.count(wire.TypeConfigured) != 2 {
		t.Fatalf("expected two configured events, got %d", log.count(wire.TypeConfigured))
	}
	mu.Lock()
	defer mu.Unlock()
	if len(keysSeen) != 2 || keysSeen[0] != "tk" || keysSeen[1] != "tk-2" {
		t.Fatalf("expected translator rebuilt per configure, got %v", keysSeen)
	}
}

func TestSessionInvalidConfigurePayload(t *testing.T) {
	t.Parallel()

	sess, log := newTestSession(t)
	data := configureData()
	data.TargetLanguage = ""
	dispatch(t, sess, wire.TypeConfigure, data)

	if log.count(wire.TypeError) != 1 {
		t.Fatalf("expected error event for invalid configure")
	}
	if log.count(wire.TypeConfigured) != 0 {
		t.Fatalf("invalid configure must not acknowledge")
	}
}

func TestSessionCloseIsTerminal(t *testing.T) {
	t.Parallel()

	sess, log := newTestSession(t)
	dispatch(t, sess, wire.TypeConfigure, configureData())
	sess.Close()

	dispatch(t, sess, wire.TypeStartRecording, nil)
	if log.count(wire.TypeRecordingStarted) != 0 {
		t.Fatalf("closed session must reject recording")
	}
	if log.count(wire.TypeError) == 0 {
		t.Fatalf("expected error event after close")
	}
}
