// Package whisper recognizes utterance audio against a Whisper-compatible
// HTTP transcription endpoint.
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tiger/realtime-translator/providers/common/httpadapter"
	"github.com/tiger/realtime-translator/providers/contracts"
)

const ProviderID = "stt-whisper-http"

// Config configures the recognition endpoint.
type Config struct {
	Endpoint   string
	APIKey     string
	Language   string
	SampleRate int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ConfigFromEnv reads adapter settings from the environment.
func ConfigFromEnv() Config {
	return Config{
		Endpoint: defaultString(os.Getenv("RTT_STT_WHISPER_ENDPOINT"), "http://127.0.0.1:9000/asr"),
		APIKey:   os.Getenv("RTT_STT_WHISPER_API_KEY"),
		Language: os.Getenv("RTT_STT_WHISPER_LANGUAGE"),
		Timeout:  15 * time.Second,
	}
}

// Adapter implements contracts.Recognizer over HTTP. The handle is shared
// across sessions and carries no per-call mutable state.
type Adapter struct {
	cfg    Config
	client *httpadapter.Client
}

// NewAdapter constructs a recognizer adapter.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client, err := httpadapter.New(httpadapter.Config{
		Endpoint:     cfg.Endpoint,
		APIKey:       cfg.APIKey,
		APIKeyHeader: "Authorization",
		APIKeyPrefix: "Bearer ",
		Timeout:      cfg.Timeout,
		HTTPClient:   cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, client: client}, nil
}

type transcriptionResponse struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Recognize posts the utterance as a WAV body and decodes the transcription.
// An empty transcript is a valid result, not an error; silence that reached
// recognition resolves upstream as a no-payload completion.
func (a *Adapter) Recognize(ctx context.Context, samples []byte) (contracts.Transcript, error) {
	wav := wrapWAV(samples, a.cfg.SampleRate)
	body, err := a.client.Do(ctx, "audio/wav", bytes.NewReader(wav))
	if err != nil {
		return contracts.Transcript{}, err
	}

	var resp transcriptionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return contracts.Transcript{}, &contracts.ProviderError{
			Class:  contracts.OutcomeInfrastructureFailure,
			Reason: "provider_bad_response",
			Err:    err,
		}
	}
	transcript := contracts.Transcript{
		Text:       strings.TrimSpace(resp.Text),
		Language:   resp.Language,
		Confidence: resp.Confidence,
	}
	if transcript.Language == "" {
		transcript.Language = a.cfg.Language
	}
	return transcript, nil
}

// wrapWAV prepends a canonical 44-byte RIFF header for 16-bit mono PCM.
func wrapWAV(samples []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, 44+len(samples))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(samples)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(samples)))
	copy(buf[44:], samples)
	return buf
}

func defaultString(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
