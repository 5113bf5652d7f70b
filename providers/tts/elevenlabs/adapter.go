// Package elevenlabs synthesizes speech through the ElevenLabs streaming
// text-to-speech API. The voice comes from the request, so one adapter serves
// every session.
package elevenlabs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tiger/realtime-translator/providers/common/httpadapter"
	"github.com/tiger/realtime-translator/providers/contracts"
)

const ProviderID = "tts-elevenlabs"

const defaultBaseURL = "https://api.elevenlabs.io/v1/text-to-speech"

// streamChunkSize is the read granularity for the audio body. ElevenLabs
// returns raw MP3 bytes, so chunk boundaries are arbitrary.
const streamChunkSize = 4096

// Config configures the synthesis endpoint.
type Config struct {
	// BaseURL is the text-to-speech endpoint prefix; the voice id and the
	// stream suffix are appended per request.
	BaseURL    string
	APIKey     string
	ModelID    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ConfigFromEnv reads adapter settings from the environment. The API key
// normally arrives per session from the client's configure message.
func ConfigFromEnv() Config {
	return Config{
		BaseURL: defaultString(os.Getenv("RTT_TTS_ELEVENLABS_BASE_URL"), defaultBaseURL),
		APIKey:  os.Getenv("RTT_TTS_ELEVENLABS_API_KEY"),
		ModelID: defaultString(os.Getenv("RTT_TTS_ELEVENLABS_MODEL"), "eleven_multilingual_v2"),
	}
}

// Adapter implements contracts.Synthesizer over the streaming endpoint.
type Adapter struct {
	cfg Config
}

// NewAdapter constructs a synthesizer adapter.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg}, nil
}

type synthesisRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize streams one utterance and returns the audio as ordered chunks.
func (a *Adapter) Synthesize(ctx context.Context, req contracts.SpeechRequest) (contracts.Audio, error) {
	if err := req.Validate(); err != nil {
		return contracts.Audio{}, err
	}

	// The voice id is a path segment, so the client is built per call.
	endpoint := strings.TrimRight(a.cfg.BaseURL, "/") + "/" + url.PathEscape(req.VoiceID) + "/stream"
	client, err := httpadapter.New(httpadapter.Config{
		Endpoint:      endpoint,
		APIKey:        a.cfg.APIKey,
		APIKeyHeader:  "xi-api-key",
		Timeout:       a.cfg.Timeout,
		HTTPClient:    a.cfg.HTTPClient,
		StaticHeaders: map[string]string{"Accept": "audio/mpeg"},
	})
	if err != nil {
		return contracts.Audio{}, err
	}

	body, err := client.Stream(ctx, synthesisRequest{
		Text:    req.Text,
		ModelID: a.cfg.ModelID,
	})
	if err != nil {
		return contracts.Audio{}, err
	}
	defer body.Close()

	audio := contracts.Audio{Format: "mp3"}
	buf := make([]byte, streamChunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			audio.Chunks = append(audio.Chunks, chunk)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return contracts.Audio{}, &contracts.ProviderError{
				Class:  contracts.OutcomeInfrastructureFailure,
				Reason: "provider_audio_stream_read_error",
				Err:    readErr,
			}
		}
	}
	if audio.Empty() {
		return contracts.Audio{}, &contracts.ProviderError{
			Class:  contracts.OutcomeInfrastructureFailure,
			Reason: "provider_empty_audio",
		}
	}
	return audio, nil
}

func defaultString(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
