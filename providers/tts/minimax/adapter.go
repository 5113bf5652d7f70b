// Package minimax synthesizes speech through the MiniMax streaming
// text-to-audio API. Audio arrives as hex-encoded SSE chunks.
package minimax

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tiger/realtime-translator/providers/common/httpadapter"
	"github.com/tiger/realtime-translator/providers/common/streamsse"
	"github.com/tiger/realtime-translator/providers/contracts"
)

const ProviderID = "tts-minimax"

const defaultEndpoint = "https://api.minimax.chat/v1/t2a_v2"

// Config configures the synthesis endpoint.
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	Format     string
	SampleRate int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ConfigFromEnv reads adapter settings from the environment.
func ConfigFromEnv() Config {
	return Config{
		Endpoint: defaultString(os.Getenv("RTT_TTS_MINIMAX_ENDPOINT"), defaultEndpoint),
		APIKey:   os.Getenv("RTT_TTS_MINIMAX_API_KEY"),
		Model:    defaultString(os.Getenv("RTT_TTS_MINIMAX_MODEL"), "speech-01-turbo"),
		Format:   defaultString(os.Getenv("RTT_TTS_MINIMAX_FORMAT"), "mp3"),
		Timeout:  15 * time.Second,
	}
}

// Adapter implements contracts.Synthesizer over the streaming T2A API.
type Adapter struct {
	cfg    Config
	client *httpadapter.Client
}

// NewAdapter constructs a synthesizer adapter.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "speech-01-turbo"
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 32000
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

type synthesisRequest struct {
	Model        string       `json:"model"`
	Text         string       `json:"text"`
	Stream       bool         `json:"stream"`
	VoiceSetting voiceSetting `json:"voice_setting"`
	AudioSetting audioSetting `json:"audio_setting"`
}

type voiceSetting struct {
	VoiceID string `json:"voice_id"`
}

type audioSetting struct {
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

type synthesisChunk struct {
	Data struct {
		Audio  string `json:"audio"`
		Status int    `json:"status"`
	} `json:"data"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

// Synthesize streams one utterance and collects the decoded audio chunks in
// arrival order.
func (a *Adapter) Synthesize(ctx context.Context, req contracts.SpeechRequest) (contracts.Audio, error) {
	if err := req.Validate(); err != nil {
		return contracts.Audio{}, err
	}

	body, err := a.client.Stream(ctx, synthesisRequest{
		Model:        a.cfg.Model,
		Text:         req.Text,
		Stream:       true,
		VoiceSetting: voiceSetting{VoiceID: req.VoiceID},
		AudioSetting: audioSetting{Format: a.cfg.Format, SampleRate: a.cfg.SampleRate},
	})
	if err != nil {
		return contracts.Audio{}, err
	}
	defer body.Close()

	var chunks [][]byte
	err = streamsse.Parse(body, func(ev streamsse.Event) error {
		if ev.Data == "[DONE]" {
			return nil
		}
		var chunk synthesisChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			return &contracts.ProviderError{
				Class:  contracts.OutcomeInfrastructureFailure,
				Reason: "provider_bad_response",
				Err:    err,
			}
		}
		if chunk.BaseResp.StatusCode != 0 {
			return &contracts.ProviderError{
				Class:  contracts.OutcomeInfrastructureFailure,
				Reason: "provider_synthesis_error",
				Err:    errors.New(chunk.BaseResp.StatusMsg),
			}
		}
		if chunk.Data.Audio == "" {
			return nil
		}
		raw, err := hex.DecodeString(chunk.Data.Audio)
		if err != nil {
			return &contracts.ProviderError{
				Class:  contracts.OutcomeInfrastructureFailure,
				Reason: "provider_bad_audio_encoding",
				Err:    err,
			}
		}
		chunks = append(chunks, raw)
		return nil
	})
	if err != nil {
		var provErr *contracts.ProviderError
		if errors.As(err, &provErr) {
			return contracts.Audio{}, err
		}
		return contracts.Audio{}, &contracts.ProviderError{
			Class:  contracts.OutcomeInfrastructureFailure,
			Reason: "provider_stream_error",
			Err:    err,
		}
	}

	audio := contracts.Audio{Chunks: chunks, Format: a.cfg.Format}
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
