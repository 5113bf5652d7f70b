// rtt-local-runner feeds a raw PCM file through a full offline session and
// prints every outbound event as one JSON line. It exercises the real
// protocol path with static providers, so no credentials are needed.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tiger/realtime-translator/api/wire"
	"github.com/tiger/realtime-translator/internal/session"
	"github.com/tiger/realtime-translator/providers/contracts"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "rtt-local-runner: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("rtt-local-runner", flag.ContinueOnError)
	inPath := flags.String("in", "", "raw 16kHz 16-bit mono PCM file")
	chunkMS := flags.Int("chunk-ms", 120, "audio push granularity in milliseconds")
	targetLanguage := flags.String("target-lang", "en", "translation target language")
	drainTimeout := flags.Duration("drain-timeout", 15*time.Second, "how long to wait for in-flight tasks")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return fmt.Errorf("-in is required")
	}

	samples, err := os.ReadFile(*inPath)
	if err != nil {
		return err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel})
	encoder := json.NewEncoder(stdout)
	send := func(env wire.Envelope) {
		_ = encoder.Encode(env)
	}

	sess, err := session.New(session.NewID(), session.Config{}, staticProviders(), send, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := dispatch(sess, wire.TypeConfigure, wire.ConfigureData{
		TranslateAPIKey: "local",
		SpeechAPIKey:    "local",
		VoiceID:         "local-voice",
		TargetLanguage:  *targetLanguage,
	}); err != nil {
		return err
	}
	if err := dispatch(sess, wire.TypeStartRecording, nil); err != nil {
		return err
	}

	chunkBytes := *chunkMS * 16000 * 2 / 1000
	if chunkBytes < 2 {
		return fmt.Errorf("chunk-ms %d is too small", *chunkMS)
	}
	for offset := 0; offset < len(samples); offset += chunkBytes {
		end := offset + chunkBytes
		if end > len(samples) {
			end = len(samples)
		}
		err := dispatch(sess, wire.TypeAudioData, wire.AudioData{
			Audio: base64.StdEncoding.EncodeToString(samples[offset:end]),
		})
		if err != nil {
			return err
		}
	}
	if err := dispatch(sess, wire.TypeStopRecording, nil); err != nil {
		return err
	}

	if err := waitForDrain(sess, *drainTimeout); err != nil {
		return err
	}
	if err := dispatch(sess, wire.TypeGetStatus, nil); err != nil {
		return err
	}
	return nil
}

func dispatch(sess *session.Session, kind wire.MessageType, payload any) error {
	env, err := wire.NewEvent(kind, payload)
	if err != nil {
		return err
	}
	sess.Dispatch(env)
	return nil
}

func waitForDrain(sess *session.Session, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		status := sess.Status()
		if status.InFlightTasks == 0 && status.BufferedResults == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("pipeline did not drain: %d in flight, %d buffered",
				status.InFlightTasks, status.BufferedResults)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// staticProviders echoes deterministic results so the runner works offline.
func staticProviders() session.Providers {
	return session.Providers{
		Recognizer: contracts.StaticRecognizer{},
		NewTranslator: func(string) contracts.Translator {
			return contracts.StaticTranslator{}
		},
		NewSynthesizer: func(string) contracts.Synthesizer {
			return contracts.StaticSynthesizer{Fn: func(_ context.Context, req contracts.SpeechRequest) (contracts.Audio, error) {
				return contracts.Audio{Chunks: [][]byte{[]byte(req.Text)}, Format: "pcm"}, nil
			}}
		},
	}
}
