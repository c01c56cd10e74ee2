package dsp

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceproc/frame"
)

// TransientGate attenuates short high-energy bursts (keyboard clicks,
// knocks) that rise far above the recent signal envelope.
type TransientGate struct {
	// Per-channel smoothed envelope (RMS).
	envelope []float64
}

// NewTransientGate creates an uninitialized gate.
func NewTransientGate() *TransientGate {
	return &TransientGate{}
}

// Initialize resets the envelope trackers.
func (t *TransientGate) Initialize(sampleRateHz, numChannels int) {
	t.envelope = make([]float64, numChannels)
	logrus.WithFields(logrus.Fields{
		"function":     "TransientGate.Initialize",
		"sample_rate":  sampleRateHz,
		"num_channels": numChannels,
	}).Debug("Transient suppressor initialized")
}

// Process attenuates frames whose energy jumps more than 12 dB above the
// tracked envelope, then lets the envelope follow the attenuated frame.
func (t *TransientGate) Process(buf *frame.Buffer) {
	const jumpFactor = 4.0 // ~12 dB
	for ch, samples := range buf.Channels() {
		level := rms(samples)
		env := t.envelope[ch]
		if env > 1.0 && level > jumpFactor*env {
			g := float32(jumpFactor * env / level)
			for i := range samples {
				samples[i] *= g
			}
			level = rms(samples)
		}
		t.envelope[ch] = env + 0.1*(level-env)
	}
}
