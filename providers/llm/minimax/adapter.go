// Package minimax translates recognized text through the MiniMax streaming
// chat-completion API.
package minimax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tiger/realtime-translator/providers/common/httpadapter"
	"github.com/tiger/realtime-translator/providers/common/streamsse"
	"github.com/tiger/realtime-translator/providers/contracts"
)

const ProviderID = "llm-minimax"

const defaultEndpoint = "https://api.minimax.chat/v1/text/chatcompletion_v2"

// Config configures the translation endpoint.
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ConfigFromEnv reads adapter settings from the environment. The API key
// normally arrives per session from the client's configure message; the env
// key is a fallback for the local runner.
func ConfigFromEnv() Config {
	return Config{
		Endpoint: defaultString(os.Getenv("RTT_LLM_MINIMAX_ENDPOINT"), defaultEndpoint),
		APIKey:   os.Getenv("RTT_LLM_MINIMAX_API_KEY"),
		Model:    defaultString(os.Getenv("RTT_LLM_MINIMAX_MODEL"), "abab6.5s-chat"),
		Timeout:  10 * time.Second,
	}
}

// Adapter implements contracts.Translator over the streaming completion API.
type Adapter struct {
	cfg    Config
	client *httpadapter.Client
}

// NewAdapter constructs a translator adapter.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "abab6.5s-chat"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
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

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Translate streams one completion and concatenates the deltas.
func (a *Adapter) Translate(ctx context.Context, req contracts.TranslationRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	body, err := a.client.Stream(ctx, chatRequest{
		Model:  a.cfg.Model,
		Stream: true,
		Messages: []chatMessage{
			{Role: "system", Content: buildSystemPrompt(req)},
			{Role: "user", Content: req.Text},
		},
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	var out strings.Builder
	err = streamsse.Parse(body, func(ev streamsse.Event) error {
		if ev.Data == "[DONE]" {
			return nil
		}
		var chunk chatChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			return &contracts.ProviderError{
				Class:  contracts.OutcomeInfrastructureFailure,
				Reason: "provider_bad_response",
				Err:    err,
			}
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				out.WriteString(choice.Delta.Content)
			} else if choice.Message.Content != "" {
				// Terminal chunks repeat the full message; only use it when no
				// deltas arrived.
				if out.Len() == 0 {
					out.WriteString(choice.Message.Content)
				}
			}
		}
		return nil
	})
	if err != nil {
		var provErr *contracts.ProviderError
		if errors.As(err, &provErr) {
			return "", err
		}
		return "", &contracts.ProviderError{
			Class:  contracts.OutcomeInfrastructureFailure,
			Reason: "provider_stream_error",
			Err:    err,
		}
	}
	return strings.TrimSpace(out.String()), nil
}

// buildSystemPrompt composes the translation instruction from the session's
// register hint and hot words.
func buildSystemPrompt(req contracts.TranslationRequest) string {
	var b strings.Builder
	b.WriteString("You are a professional simultaneous interpreter. ")
	switch req.Style {
	case "colloquial":
		b.WriteString("Translate in a natural, conversational register. ")
	case "business":
		b.WriteString("Translate in a formal business register. ")
	case "academic":
		b.WriteString("Translate in a precise academic register. ")
	}
	if req.SourceLanguage != "" {
		fmt.Fprintf(&b, "Translate the user's %s speech into %s. ", req.SourceLanguage, req.TargetLanguage)
	} else {
		fmt.Fprintf(&b, "Translate the user's speech into %s. ", req.TargetLanguage)
	}
	if len(req.HotWords) > 0 {
		fmt.Fprintf(&b, "Preserve these domain terms exactly: %s. ", strings.Join(req.HotWords, ", "))
	}
	b.WriteString("Reply with the translation only, no explanations.")
	return b.String()
}

func defaultString(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
