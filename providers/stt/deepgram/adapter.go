// Package deepgram recognizes utterances through Deepgram's prerecorded
// transcription API. Raw linear16 samples go up as-is; no container framing
// is needed.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tiger/realtime-translator/providers/common/httpadapter"
	"github.com/tiger/realtime-translator/providers/contracts"
)

const ProviderID = "stt-deepgram"

// Config controls the Deepgram recognizer.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	// Language pins recognition; empty enables Deepgram's detection.
	Language   string
	SampleRate int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ConfigFromEnv reads the standard RTT_STT_DEEPGRAM_* variables.
func ConfigFromEnv() Config {
	return Config{
		Endpoint: defaultString(os.Getenv("RTT_STT_DEEPGRAM_ENDPOINT"), "https://api.deepgram.com/v1/listen"),
		APIKey:   os.Getenv("RTT_STT_DEEPGRAM_API_KEY"),
		Model:    defaultString(os.Getenv("RTT_STT_DEEPGRAM_MODEL"), "nova-2"),
		Language: os.Getenv("RTT_STT_DEEPGRAM_LANGUAGE"),
	}
}

// Adapter implements contracts.Recognizer over the Deepgram HTTP API.
type Adapter struct {
	cfg    Config
	client *httpadapter.Client
}

// NewAdapter constructs the recognizer.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	endpoint, err := listenEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	client, err := httpadapter.New(httpadapter.Config{
		Endpoint:     endpoint,
		APIKey:       cfg.APIKey,
		APIKeyHeader: "Authorization",
		APIKeyPrefix: "Token ",
		Timeout:      cfg.Timeout,
		HTTPClient:   cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, client: client}, nil
}

// listenEndpoint bakes the transcription parameters into the query string so
// the request body stays pure audio.
func listenEndpoint(cfg Config) (string, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", cfg.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	} else {
		q.Set("detect_language", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Recognize posts one utterance and returns the best alternative. An empty
// transcript is a valid result, not an error.
func (a *Adapter) Recognize(ctx context.Context, samples []byte) (contracts.Transcript, error) {
	payload, err := a.client.Do(ctx, "audio/raw", bytes.NewReader(samples))
	if err != nil {
		return contracts.Transcript{}, err
	}

	var decoded listenResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return contracts.Transcript{}, &contracts.ProviderError{
			Class:  contracts.OutcomeInfrastructureFailure,
			Reason: "provider_bad_response",
			Err:    err,
		}
	}
	if len(decoded.Results.Channels) == 0 || len(decoded.Results.Channels[0].Alternatives) == 0 {
		return contracts.Transcript{Language: a.cfg.Language}, nil
	}

	channel := decoded.Results.Channels[0]
	best := channel.Alternatives[0]
	language := channel.DetectedLanguage
	if language == "" {
		language = a.cfg.Language
	}
	return contracts.Transcript{
		Text:       strings.TrimSpace(best.Transcript),
		Language:   language,
		Confidence: best.Confidence,
	}, nil
}

func defaultString(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
