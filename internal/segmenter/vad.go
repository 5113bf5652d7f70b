package segmenter

import (
	"encoding/binary"
	"fmt"
	"math"
)

// aggressiveness level -> (noise-floor ratio, absolute RMS minimum). Higher
// levels demand louder, clearer speech before a frame counts.
var vadProfiles = [4]struct {
	ratio  float64
	absMin float64
}{
	{ratio: 1.5, absMin: 120},
	{ratio: 2.0, absMin: 180},
	{ratio: 2.5, absMin: 250},
	{ratio: 3.0, absMin: 350},
}

// Classifier is a stateful energy-based speech/silence frame classifier over
// 16-bit little-endian PCM. The noise floor adapts on silence frames only, so
// sustained speech does not raise the bar against itself.
type Classifier struct {
	aggressiveness int
	noiseFloor     float64
	primed         bool
}

// NewClassifier constructs a classifier with aggressiveness 0 (most
// permissive) through 3 (strictest).
func NewClassifier(aggressiveness int) (*Classifier, error) {
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, fmt.Errorf("aggressiveness must be in [0,3], got %d", aggressiveness)
	}
	return &Classifier{aggressiveness: aggressiveness}, nil
}

// IsSpeech classifies one frame of samples.
func (c *Classifier) IsSpeech(frame []byte) bool {
	rms := frameRMS(frame)
	if !c.primed {
		c.noiseFloor = rms
		c.primed = true
	}

	profile := vadProfiles[c.aggressiveness]
	speech := rms > c.noiseFloor*profile.ratio && rms > profile.absMin
	if !speech {
		c.noiseFloor = 0.95*c.noiseFloor + 0.05*rms
	}
	return speech
}

func frameRMS(frame []byte) float64 {
	samples := len(frame) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(frame[2*i:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(samples))
}
