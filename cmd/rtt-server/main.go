// rtt-server is the realtime translation server: it accepts websocket
// control-channel connections and runs one translation pipeline per session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tiger/realtime-translator/internal/session"
	"github.com/tiger/realtime-translator/internal/telemetry"
	"github.com/tiger/realtime-translator/providers/contracts"
	"github.com/tiger/realtime-translator/providers/llm/anthropic"
	llmminimax "github.com/tiger/realtime-translator/providers/llm/minimax"
	"github.com/tiger/realtime-translator/providers/stt/deepgram"
	"github.com/tiger/realtime-translator/providers/stt/whisper"
	"github.com/tiger/realtime-translator/providers/tts/elevenlabs"
	ttsminimax "github.com/tiger/realtime-translator/providers/tts/minimax"
	"github.com/tiger/realtime-translator/providers/tts/polly"
	wstransport "github.com/tiger/realtime-translator/transports/websocket"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "rtt-server: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("rtt-server", flag.ContinueOnError)
	addr := flags.String("addr", envDefault("RTT_ADDR", ":8080"), "listen address")
	logLevel := flags.String("log-level", envDefault("RTT_LOG_LEVEL", "info"), "log level (debug|info|warn|error)")
	sttProvider := flags.String("stt-provider", envDefault("RTT_STT_PROVIDER", "whisper"), "recognition backend (whisper|deepgram)")
	llmProvider := flags.String("translator-provider", envDefault("RTT_TRANSLATOR_PROVIDER", "minimax"), "translation backend (minimax|anthropic)")
	ttsProvider := flags.String("tts-provider", envDefault("RTT_TTS_PROVIDER", "minimax"), "synthesis backend (minimax|polly|elevenlabs)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	logger, err := buildLogger(*logLevel)
	if err != nil {
		return err
	}

	pipeline := telemetry.NewPipeline(telemetry.NewLogSink(logger), telemetry.Config{})
	telemetry.SetDefaultEmitter(pipeline)
	defer func() {
		_ = pipeline.Close()
		telemetry.SetDefaultEmitter(nil)
	}()

	providers, err := buildProviders(*sttProvider, *llmProvider, *ttsProvider)
	if err != nil {
		return err
	}

	manager := session.NewManager()
	wsHandler, err := wstransport.NewHandler(wstransport.HandlerConfig{
		Providers: providers,
		Manager:   manager,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","sessions":%d}`+"\n", manager.Count())
	})

	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", *addr,
			"stt_provider", *sttProvider, "translator_provider", *llmProvider, "tts_provider", *ttsProvider)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown incomplete", "err", err)
		}
		manager.Shutdown()
	}
	return nil
}

func buildLogger(level string) (*log.Logger, error) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           parsed,
	})
	return logger, nil
}

// buildProviders assembles the stage collaborators. The recognizer is one
// shared handle; translator and synthesizer factories bind the per-session
// credentials from the client's configure message.
func buildProviders(sttProvider, llmProvider, ttsProvider string) (session.Providers, error) {
	var providers session.Providers

	switch strings.ToLower(sttProvider) {
	case "whisper":
		recognizer, err := whisper.NewAdapter(whisper.ConfigFromEnv())
		if err != nil {
			return session.Providers{}, fmt.Errorf("build recognizer: %w", err)
		}
		providers.Recognizer = recognizer
	case "deepgram":
		recognizer, err := deepgram.NewAdapter(deepgram.ConfigFromEnv())
		if err != nil {
			return session.Providers{}, fmt.Errorf("build recognizer: %w", err)
		}
		providers.Recognizer = recognizer
	default:
		return session.Providers{}, fmt.Errorf("unsupported stt provider %q", sttProvider)
	}

	switch strings.ToLower(llmProvider) {
	case "minimax":
		providers.NewTranslator = func(apiKey string) contracts.Translator {
			cfg := llmminimax.ConfigFromEnv()
			if apiKey != "" {
				cfg.APIKey = apiKey
			}
			adapter, err := llmminimax.NewAdapter(cfg)
			if err != nil {
				return failingTranslator{err: err}
			}
			return adapter
		}
	case "anthropic":
		providers.NewTranslator = func(apiKey string) contracts.Translator {
			cfg := anthropic.ConfigFromEnv()
			if apiKey != "" {
				cfg.APIKey = apiKey
			}
			adapter, err := anthropic.NewAdapter(cfg)
			if err != nil {
				return failingTranslator{err: err}
			}
			return adapter
		}
	default:
		return session.Providers{}, fmt.Errorf("unsupported translator provider %q", llmProvider)
	}

	switch strings.ToLower(ttsProvider) {
	case "polly":
		// Polly authenticates through the AWS credential chain; the client's
		// speech key is unused.
		providers.NewSynthesizer = func(string) contracts.Synthesizer {
			adapter, err := polly.NewAdapter(polly.ConfigFromEnv())
			if err != nil {
				return failingSynthesizer{err: err}
			}
			return adapter
		}
	case "minimax":
		providers.NewSynthesizer = func(apiKey string) contracts.Synthesizer {
			cfg := ttsminimax.ConfigFromEnv()
			if apiKey != "" {
				cfg.APIKey = apiKey
			}
			adapter, err := ttsminimax.NewAdapter(cfg)
			if err != nil {
				return failingSynthesizer{err: err}
			}
			return adapter
		}
	case "elevenlabs":
		providers.NewSynthesizer = func(apiKey string) contracts.Synthesizer {
			cfg := elevenlabs.ConfigFromEnv()
			if apiKey != "" {
				cfg.APIKey = apiKey
			}
			adapter, err := elevenlabs.NewAdapter(cfg)
			if err != nil {
				return failingSynthesizer{err: err}
			}
			return adapter
		}
	default:
		return session.Providers{}, fmt.Errorf("unsupported tts provider %q", ttsProvider)
	}
	return providers, nil
}

type failingTranslator struct{ err error }

func (f failingTranslator) Translate(context.Context, contracts.TranslationRequest) (string, error) {
	return "", f.err
}

type failingSynthesizer struct{ err error }

func (f failingSynthesizer) Synthesize(context.Context, contracts.SpeechRequest) (contracts.Audio, error) {
	return contracts.Audio{}, f.err
}

func envDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
