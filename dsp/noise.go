package dsp

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceproc/frame"
)

// SuppressionLevel selects the maximum attenuation the noise suppressor
// applies.
type SuppressionLevel uint8

const (
	SuppressionLow SuppressionLevel = iota
	SuppressionModerate
	SuppressionHigh
	SuppressionVeryHigh
)

func (l SuppressionLevel) maxAttenuation() float64 {
	switch l {
	case SuppressionLow:
		return 0.5 // -6 dB
	case SuppressionModerate:
		return 0.355 // -9 dB
	case SuppressionHigh:
		return 0.25 // -12 dB
	default:
		return 0.126 // -18 dB
	}
}

// NoiseFloorSuppressor is a time-domain noise gate: it tracks a slow
// per-channel noise floor estimate and attenuates frames whose energy sits
// near that floor. Deliberately simple and allocation-free per frame.
type NoiseFloorSuppressor struct {
	level SuppressionLevel

	// Per-channel smoothed noise floor (RMS) and current gain.
	floor []float64
	gain  []float64

	analyzedRMS []float64
}

// NewNoiseFloorSuppressor creates a suppressor with the given maximum
// attenuation level.
func NewNoiseFloorSuppressor(level SuppressionLevel) *NoiseFloorSuppressor {
	return &NoiseFloorSuppressor{level: level}
}

// Initialize resets the floor estimates for a new format.
func (n *NoiseFloorSuppressor) Initialize(sampleRateHz, numChannels int) {
	n.floor = make([]float64, numChannels)
	n.gain = make([]float64, numChannels)
	n.analyzedRMS = make([]float64, numChannels)
	for ch := range n.gain {
		n.gain[ch] = 1.0
		// Start from a conservative floor so the first frames are not
		// gated before the estimate settles.
		n.floor[ch] = 1.0
	}
	logrus.WithFields(logrus.Fields{
		"function":     "NoiseFloorSuppressor.Initialize",
		"sample_rate":  sampleRateHz,
		"num_channels": numChannels,
		"level":        n.level,
	}).Debug("Noise suppressor initialized")
}

// Analyze measures the frame before echo processing so the floor tracks
// the near-end signal rather than the echo-cleaned one.
func (n *NoiseFloorSuppressor) Analyze(buf *frame.Buffer) {
	for ch, samples := range buf.Channels() {
		n.analyzedRMS[ch] = rms(samples)
	}
}

// Process updates the floor estimate and applies the gate in place.
func (n *NoiseFloorSuppressor) Process(buf *frame.Buffer) {
	maxAtt := n.level.maxAttenuation()
	for ch, samples := range buf.Channels() {
		level := n.analyzedRMS[ch]
		// Fast decay toward quiet frames, slow rise toward loud ones,
		// so speech does not drag the floor up.
		if level < n.floor[ch] {
			n.floor[ch] += 0.2 * (level - n.floor[ch])
		} else {
			n.floor[ch] += 0.005 * (level - n.floor[ch])
		}

		target := 1.0
		if level < 3.0*n.floor[ch] {
			target = maxAtt
		}
		// Smooth gain transitions to avoid pumping.
		n.gain[ch] += 0.3 * (target - n.gain[ch])
		g := float32(n.gain[ch])
		for i := range samples {
			samples[i] *= g
		}
	}
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
