// Package polly synthesizes speech with Amazon Polly.
package polly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/tiger/realtime-translator/providers/contracts"
)

const ProviderID = "tts-amazon-polly"

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Config configures the Polly adapter. Credentials come from the ambient AWS
// config chain, not from the client's configure message.
type Config struct {
	Region  string
	Engine  string
	Timeout time.Duration
}

// ConfigFromEnv reads adapter settings from the environment.
func ConfigFromEnv() Config {
	return Config{
		Region: defaultString(os.Getenv("RTT_TTS_POLLY_REGION"), defaultString(os.Getenv("AWS_REGION"), "us-east-1")),
		Engine: defaultString(os.Getenv("RTT_TTS_POLLY_ENGINE"), "neural"),
	}
}

// Adapter implements contracts.Synthesizer against Amazon Polly. The client
// is lazily resolved so construction never blocks on credential lookup.
type Adapter struct {
	mu     sync.Mutex
	client synthClient
	cfg    Config
}

// NewAdapter constructs a Polly synthesizer.
func NewAdapter(cfg Config) (*Adapter, error) {
	return NewAdapterWithClient(cfg, nil)
}

// NewAdapterWithClient constructs an adapter over an explicit client, for
// tests.
func NewAdapterWithClient(cfg Config, client synthClient) (*Adapter, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Adapter{client: client, cfg: cfg}, nil
}

// Synthesize renders one utterance to MP3.
func (a *Adapter) Synthesize(ctx context.Context, req contracts.SpeechRequest) (contracts.Audio, error) {
	if err := req.Validate(); err != nil {
		return contracts.Audio{}, err
	}
	client, err := a.resolveClient(ctx)
	if err != nil {
		return contracts.Audio{}, err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(a.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	output, err := client.SynthesizeSpeech(callCtx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &req.Text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(req.VoiceID),
	})
	if err != nil {
		return contracts.Audio{}, normalizePollyError(err)
	}
	if output == nil || output.AudioStream == nil {
		return contracts.Audio{}, &contracts.ProviderError{
			Class:  contracts.OutcomeInfrastructureFailure,
			Reason: "provider_empty_audio",
		}
	}
	defer output.AudioStream.Close()

	payload, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return contracts.Audio{}, &contracts.ProviderError{
			Class:  contracts.OutcomeInfrastructureFailure,
			Reason: "provider_audio_read_error",
			Err:    err,
		}
	}
	if len(payload) == 0 {
		return contracts.Audio{}, &contracts.ProviderError{
			Class:  contracts.OutcomeInfrastructureFailure,
			Reason: "provider_empty_audio",
		}
	}
	return contracts.Audio{Chunks: [][]byte{payload}, Format: "mp3"}, nil
}

func normalizePollyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return &contracts.ProviderError{Class: contracts.OutcomeCancelled, Reason: "provider_cancelled", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &contracts.ProviderError{Class: contracts.OutcomeTimeout, Reason: "provider_timeout", Err: err}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException":
			return &contracts.ProviderError{Class: contracts.OutcomeOverload, Reason: "provider_overload", Err: err}
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException", "MarksNotSupportedForFormatException", "InvalidSampleRateException":
			return &contracts.ProviderError{Class: contracts.OutcomeBlocked, Reason: "provider_client_error", Err: err}
		default:
			return &contracts.ProviderError{Class: contracts.OutcomeInfrastructureFailure, Reason: "provider_server_error", Err: err}
		}
	}

	return &contracts.ProviderError{Class: contracts.OutcomeInfrastructureFailure, Reason: "provider_transport_error", Err: err}
}

func defaultString(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func (a *Adapter) resolveClient(ctx context.Context) (synthClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	a.client = polly.NewFromConfig(awsCfg)
	return a.client, nil
}
