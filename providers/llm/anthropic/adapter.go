// Package anthropic translates recognized text through the Anthropic
// messages API. Utterances are short, so a single non-streaming completion
// keeps the adapter simple.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tiger/realtime-translator/providers/common/httpadapter"
	"github.com/tiger/realtime-translator/providers/contracts"
)

const ProviderID = "llm-anthropic"

const defaultEndpoint = "https://api.anthropic.com/v1/messages"

// Config configures the translation endpoint.
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	APIVersion string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ConfigFromEnv reads adapter settings from the environment. The API key
// normally arrives per session from the client's configure message.
func ConfigFromEnv() Config {
	return Config{
		Endpoint:   defaultString(os.Getenv("RTT_LLM_ANTHROPIC_ENDPOINT"), defaultEndpoint),
		APIKey:     os.Getenv("RTT_LLM_ANTHROPIC_API_KEY"),
		Model:      defaultString(os.Getenv("RTT_LLM_ANTHROPIC_MODEL"), "claude-3-5-haiku-latest"),
		APIVersion: defaultString(os.Getenv("RTT_LLM_ANTHROPIC_VERSION"), "2023-06-01"),
		Timeout:    10 * time.Second,
	}
}

// Adapter implements contracts.Translator over the messages API.
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
		cfg.Model = "claude-3-5-haiku-latest"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2023-06-01"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client, err := httpadapter.New(httpadapter.Config{
		Endpoint:     cfg.Endpoint,
		APIKey:       cfg.APIKey,
		APIKeyHeader: "x-api-key",
		Timeout:      cfg.Timeout,
		HTTPClient:   cfg.HTTPClient,
		StaticHeaders: map[string]string{
			"anthropic-version": cfg.APIVersion,
		},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, client: client}, nil
}

type messageRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Translate sends one completion and concatenates the text blocks.
func (a *Adapter) Translate(ctx context.Context, req contracts.TranslationRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	payload, err := a.client.DoJSON(ctx, messageRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System:    buildSystemPrompt(req),
		Messages: []chatMessage{
			{Role: "user", Content: req.Text},
		},
	})
	if err != nil {
		return "", err
	}

	var decoded messageResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", &contracts.ProviderError{
			Class:  contracts.OutcomeInfrastructureFailure,
			Reason: "provider_bad_response",
			Err:    err,
		}
	}

	var out strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	translated := strings.TrimSpace(out.String())
	if translated == "" {
		return "", &contracts.ProviderError{
			Class:  contracts.OutcomeInfrastructureFailure,
			Reason: "provider_empty_translation",
		}
	}
	return translated, nil
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
