package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tiger/realtime-translator/providers/contracts"
)

func TestRecognizeWrapsSamplesAsWAV(t *testing.T) {
	t.Parallel()

	var gotBody []byte
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"text":" hello world ","language":"en","confidence":0.87}`))
	}))
	defer server.Close()

	adapter, err := NewAdapter(Config{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	samples := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	transcript, err := adapter.Recognize(context.Background(), samples)
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if transcript.Text != "hello world" {
		t.Fatalf("expected trimmed text, got %q", transcript.Text)
	}
	if transcript.Language != "en" || transcript.Confidence != 0.87 {
		t.Fatalf("unexpected transcript %+v", transcript)
	}

	if gotContentType != "audio/wav" {
		t.Fatalf("unexpected content type %q", gotContentType)
	}
	if len(gotBody) != 44+len(samples) {
		t.Fatalf("expected 44-byte header plus samples, got %d bytes", len(gotBody))
	}
	if string(gotBody[0:4]) != "RIFF" || string(gotBody[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE magic")
	}
	if rate := binary.LittleEndian.Uint32(gotBody[24:28]); rate != 16000 {
		t.Fatalf("expected 16kHz header, got %d", rate)
	}
	if size := binary.LittleEndian.Uint32(gotBody[40:44]); size != uint32(len(samples)) {
		t.Fatalf("expected data size %d, got %d", len(samples), size)
	}
}

func TestRecognizeEmptyTranscriptIsNotAnError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"text":"","language":"en"}`))
	}))
	defer server.Close()

	adapter, err := NewAdapter(Config{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	transcript, err := adapter.Recognize(context.Background(), []byte{0, 0})
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if transcript.Text != "" {
		t.Fatalf("expected empty transcript, got %q", transcript.Text)
	}
}

func TestRecognizeNormalizesServerFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter, err := NewAdapter(Config{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	_, err = adapter.Recognize(context.Background(), []byte{0, 0})
	if contracts.Classify(err) != contracts.OutcomeInfrastructureFailure {
		t.Fatalf("expected infrastructure failure, got %v", err)
	}
}

func TestRecognizeRejectsMalformedResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	adapter, err := NewAdapter(Config{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	_, err = adapter.Recognize(context.Background(), []byte{0, 0})
	var provErr *contracts.ProviderError
	if !errors.As(err, &provErr) || provErr.Reason != "provider_bad_response" {
		t.Fatalf("expected bad-response error, got %v", err)
	}
}

func TestRecognizeFallsBackToConfiguredLanguage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"text":"hola"}`))
	}))
	defer server.Close()

	adapter, err := NewAdapter(Config{Endpoint: server.URL, Language: "es"})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	transcript, err := adapter.Recognize(context.Background(), []byte{0, 0})
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if transcript.Language != "es" {
		t.Fatalf("expected configured language fallback, got %q", transcript.Language)
	}
}
