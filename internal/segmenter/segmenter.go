// Package segmenter turns a continuous PCM sample stream into discrete,
// silence-bounded utterance segments with per-session sequence numbers.
package segmenter

import (
	"fmt"
	"time"

	"github.com/tiger/realtime-translator/internal/pipeline"
)

// Config controls voice-activity segmentation.
type Config struct {
	// SampleRate of the inbound 16-bit mono PCM stream.
	SampleRate int
	// FrameDuration is the classifier window size.
	FrameDuration time.Duration
	// Aggressiveness selects the VAD profile, 0 (permissive) to 3 (strict).
	Aggressiveness int
	// SilenceThreshold closes the current segment once this much silence
	// follows speech.
	SilenceThreshold time.Duration
	// MinSpeechDuration discards shorter segments as noise.
	MinSpeechDuration time.Duration
	// HangoverFrames keeps this many trailing silence frames on a segment for
	// recognition context.
	HangoverFrames int
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = 30 * time.Millisecond
	}
	if c.Aggressiveness == 0 {
		c.Aggressiveness = 3
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = 500 * time.Millisecond
	}
	if c.MinSpeechDuration <= 0 {
		c.MinSpeechDuration = 800 * time.Millisecond
	}
	if c.HangoverFrames <= 0 {
		c.HangoverFrames = 3
	}
	return c
}

// Segmenter consumes raw sample chunks and emits completed utterance
// segments. State is instance-bound: one segmenter serves exactly one
// session's stream and is not restartable.
type Segmenter struct {
	cfg        Config
	sessionID  string
	nextSeq    func() uint64
	classifier *Classifier

	frameBytes     int
	silenceFrames  int
	minSpeech      int
	frameMS        int64
	pending        []byte
	current        []byte
	framesInSeg    int
	silenceRun     int
	speechStarted  bool
	startFrame     int64
	frameIndex     int64
	emitted        uint64
}

// New constructs a segmenter that assigns sequence numbers from nextSeq at
// emission time.
func New(cfg Config, sessionID string, nextSeq func() uint64) (*Segmenter, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if nextSeq == nil {
		return nil, fmt.Errorf("sequence source is required")
	}
	cfg = cfg.withDefaults()
	if cfg.Aggressiveness < 0 || cfg.Aggressiveness > 3 {
		return nil, fmt.Errorf("aggressiveness must be in [0,3], got %d", cfg.Aggressiveness)
	}
	classifier, err := NewClassifier(cfg.Aggressiveness)
	if err != nil {
		return nil, err
	}

	frameSamples := int(cfg.FrameDuration.Milliseconds()) * cfg.SampleRate / 1000
	if frameSamples < 1 {
		return nil, fmt.Errorf("frame duration %s too small for sample rate %d", cfg.FrameDuration, cfg.SampleRate)
	}
	return &Segmenter{
		cfg:           cfg,
		sessionID:     sessionID,
		nextSeq:       nextSeq,
		classifier:    classifier,
		frameBytes:    frameSamples * 2,
		silenceFrames: framesFor(cfg.SilenceThreshold, cfg.FrameDuration),
		minSpeech:     framesFor(cfg.MinSpeechDuration, cfg.FrameDuration),
		frameMS:       cfg.FrameDuration.Milliseconds(),
	}, nil
}

func framesFor(span, frame time.Duration) int {
	frames := int(span / frame)
	if frames < 1 {
		frames = 1
	}
	return frames
}

// Push appends one chunk of raw samples and returns any segments completed by
// it, in order.
func (s *Segmenter) Push(chunk []byte) []pipeline.Segment {
	s.pending = append(s.pending, chunk...)

	var out []pipeline.Segment
	for len(s.pending) >= s.frameBytes {
		frame := s.pending[:s.frameBytes]
		s.pending = s.pending[s.frameBytes:]
		if segment, ok := s.processFrame(frame); ok {
			out = append(out, segment)
		}
		s.frameIndex++
	}
	return out
}

// Flush force-closes the current partial segment, if it satisfies the
// minimum speech duration. Used when recording stops.
func (s *Segmenter) Flush() (pipeline.Segment, bool) {
	if !s.speechStarted || s.framesInSeg < s.minSpeech {
		s.reset()
		return pipeline.Segment{}, false
	}
	segment := s.finalize()
	s.reset()
	return segment, true
}

// Emitted returns the number of segments produced so far.
func (s *Segmenter) Emitted() uint64 {
	return s.emitted
}

func (s *Segmenter) processFrame(frame []byte) (pipeline.Segment, bool) {
	if s.classifier.IsSpeech(frame) {
		if !s.speechStarted {
			s.speechStarted = true
			s.startFrame = s.frameIndex
		}
		s.appendFrame(frame)
		s.silenceRun = 0
		return pipeline.Segment{}, false
	}

	if !s.speechStarted {
		return pipeline.Segment{}, false
	}

	s.silenceRun++
	if s.silenceRun <= s.cfg.HangoverFrames {
		s.appendFrame(frame)
	}
	if s.silenceRun < s.silenceFrames {
		return pipeline.Segment{}, false
	}

	if s.framesInSeg < s.minSpeech {
		// Too short to be an utterance; treat as noise.
		s.reset()
		return pipeline.Segment{}, false
	}
	segment := s.finalize()
	s.reset()
	return segment, true
}

func (s *Segmenter) appendFrame(frame []byte) {
	s.current = append(s.current, frame...)
	s.framesInSeg++
}

func (s *Segmenter) finalize() pipeline.Segment {
	samples := make([]byte, len(s.current))
	copy(samples, s.current)
	s.emitted++
	return pipeline.Segment{
		SessionID: s.sessionID,
		Sequence:  s.nextSeq(),
		StartMS:   s.startFrame * s.frameMS,
		EndMS:     (s.frameIndex + 1) * s.frameMS,
		Samples:   samples,
	}
}

func (s *Segmenter) reset() {
	s.current = s.current[:0]
	s.framesInSeg = 0
	s.silenceRun = 0
	s.speechStarted = false
}
