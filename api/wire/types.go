package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// MessageType identifies one control-channel message kind.
type MessageType string

// Inbound message types.
const (
	TypeConfigure      MessageType = "configure"
	TypeStartRecording MessageType = "start_recording"
	TypeStopRecording  MessageType = "stop_recording"
	TypeAudioData      MessageType = "audio_data"
	TypeGetStatus      MessageType = "get_status"
	TypeClearAllTasks  MessageType = "clear_all_tasks"
)

// Outbound message types.
const (
	TypeConfigured       MessageType = "configured"
	TypeRecordingStarted MessageType = "recording_started"
	TypeRecordingStopped MessageType = "recording_stopped"
	TypeTranscription    MessageType = "transcription"
	TypeTranslation      MessageType = "translation"
	TypeAudioChunk       MessageType = "audio_chunk"
	TypeStatus           MessageType = "status"
	TypeAllTasksCleared  MessageType = "all_tasks_cleared"
	TypeError            MessageType = "error"
)

// Envelope is the transport-neutral control-channel frame.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// TranslationStyle constrains the supported translation register hints.
type TranslationStyle string

const (
	StyleDefault    TranslationStyle = "default"
	StyleColloquial TranslationStyle = "colloquial"
	StyleBusiness   TranslationStyle = "business"
	StyleAcademic   TranslationStyle = "academic"
)

// Validate enforces the supported style set.
func (s TranslationStyle) Validate() error {
	switch s {
	case StyleDefault, StyleColloquial, StyleBusiness, StyleAcademic:
		return nil
	default:
		return fmt.Errorf("unsupported translation_style: %q", s)
	}
}

// ConfigureData carries per-session configuration from the client.
type ConfigureData struct {
	TranslateAPIKey  string           `json:"translate_api_key"`
	SpeechAPIKey     string           `json:"speech_api_key"`
	VoiceID          string           `json:"voice_id"`
	SourceLanguage   string           `json:"source_language,omitempty"`
	TargetLanguage   string           `json:"target_language"`
	TranslationStyle TranslationStyle `json:"translation_style,omitempty"`
	HotWords         []string         `json:"hot_words,omitempty"`
}

// Validate enforces required configuration fields.
func (c ConfigureData) Validate() error {
	if c.TranslateAPIKey == "" || c.SpeechAPIKey == "" {
		return fmt.Errorf("translate_api_key and speech_api_key are required")
	}
	if c.VoiceID == "" {
		return fmt.Errorf("voice_id is required")
	}
	if c.TargetLanguage == "" {
		return fmt.Errorf("target_language is required")
	}
	if c.TranslationStyle != "" {
		if err := c.TranslationStyle.Validate(); err != nil {
			return err
		}
	}
	for i, word := range c.HotWords {
		if word == "" {
			return fmt.Errorf("hot_words[%d] must not be empty", i)
		}
	}
	return nil
}

// AudioData carries one base64-encoded chunk of raw PCM samples.
type AudioData struct {
	Audio string `json:"audio"`
}

// Validate enforces presence of audio payload.
func (a AudioData) Validate() error {
	if a.Audio == "" {
		return fmt.Errorf("audio is required")
	}
	return nil
}

// Decode returns the raw sample bytes from the base64 payload.
func (a AudioData) Decode() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(a.Audio)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	return raw, nil
}

// TranscriptionData is the recognized-text outbound event payload.
type TranscriptionData struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// TranslationData is the translated-text outbound event payload.
type TranslationData struct {
	TaskID         string `json:"task_id"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	TargetLanguage string `json:"target_language"`
}

// AudioChunkData is one synthesized-audio outbound event payload.
// Audio bytes are base64-encoded; chunks of one task are contiguous and
// terminated by is_final.
type AudioChunkData struct {
	TaskID  string `json:"task_id"`
	Audio   string `json:"audio"`
	Format  string `json:"format"`
	Size    int    `json:"size"`
	IsFinal bool   `json:"is_final"`
}

// StatusData reports session-level pipeline counters.
type StatusData struct {
	Configured       bool   `json:"configured"`
	Recording        bool   `json:"recording"`
	InFlightTasks    int    `json:"in_flight_tasks"`
	BufferedResults  int    `json:"buffered_results"`
	NextDeliverable  uint64 `json:"next_deliverable"`
	SegmentsEmitted  uint64 `json:"segments_emitted"`
	SegmentsRejected uint64 `json:"segments_rejected"`
}

// ErrorData carries a session-scoped error report.
type ErrorData struct {
	Error string `json:"error"`
}

// NewEvent marshals a payload into an outbound envelope.
func NewEvent(kind MessageType, payload any) (Envelope, error) {
	if kind == "" {
		return Envelope{}, fmt.Errorf("message type is required")
	}
	if payload == nil {
		return Envelope{Type: kind}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Envelope{Type: kind, Data: raw}, nil
}

// DecodeData unmarshals the envelope payload into out.
func (e Envelope) DecodeData(out any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s message has no data payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

func isInboundType(t MessageType) bool {
	switch t {
	case TypeConfigure, TypeStartRecording, TypeStopRecording, TypeAudioData, TypeGetStatus, TypeClearAllTasks:
		return true
	default:
		return false
	}
}
