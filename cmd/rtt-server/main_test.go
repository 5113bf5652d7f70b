package main

import (
	"testing"
)

func TestBuildLogger(t *testing.T) {
	t.Parallel()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		if _, err := buildLogger(level); err != nil {
			t.Fatalf("level %q rejected: %v", level, err)
		}
	}
	if _, err := buildLogger("shout"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestBuildProvidersSelectsBackends(t *testing.T) {
	cases := []struct {
		stt string
		llm string
		tts string
	}{
		{"whisper", "minimax", "minimax"},
		{"deepgram", "anthropic", "polly"},
		{"whisper", "anthropic", "elevenlabs"},
		{"Whisper", "MiniMax", "Polly"},
	}
	for _, tc := range cases {
		providers, err := buildProviders(tc.stt, tc.llm, tc.tts)
		if err != nil {
			t.Fatalf("%s/%s/%s rejected: %v", tc.stt, tc.llm, tc.tts, err)
		}
		if providers.Recognizer == nil || providers.NewTranslator == nil || providers.NewSynthesizer == nil {
			t.Fatalf("%s/%s/%s left a nil collaborator", tc.stt, tc.llm, tc.tts)
		}
		if providers.NewTranslator("key") == nil || providers.NewSynthesizer("key") == nil {
			t.Fatalf("%s/%s/%s factory returned nil", tc.stt, tc.llm, tc.tts)
		}
	}
}

func TestBuildProvidersRejectsUnknownBackends(t *testing.T) {
	if _, err := buildProviders("kaldi", "minimax", "minimax"); err == nil {
		t.Fatalf("expected error for unsupported stt backend")
	}
	if _, err := buildProviders("whisper", "markov", "minimax"); err == nil {
		t.Fatalf("expected error for unsupported translator backend")
	}
	if _, err := buildProviders("whisper", "minimax", "espeak"); err == nil {
		t.Fatalf("expected error for unsupported tts backend")
	}
}

func TestEnvDefault(t *testing.T) {
	t.Setenv("RTT_TEST_ENV_KEY", "  from-env  ")
	if got := envDefault("RTT_TEST_ENV_KEY", "fallback"); got != "from-env" {
		t.Fatalf("expected trimmed env value, got %q", got)
	}
	t.Setenv("RTT_TEST_ENV_KEY", "   ")
	if got := envDefault("RTT_TEST_ENV_KEY", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback for blank env, got %q", got)
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	t.Parallel()

	if err := run([]string{"-log-level", "shout", "-addr", "127.0.0.1:0"}); err == nil {
		t.Fatalf("expected error for invalid log level")
	}
	if err := run([]string{"-tts-provider", "espeak", "-addr", "127.0.0.1:0"}); err == nil {
		t.Fatalf("expected error for unsupported tts provider")
	}
}
