package dsp

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceproc/frame"
)

// highPassCutoffHz removes DC and rumble without touching voice
// fundamentals.
const highPassCutoffHz = 65.0

// BiquadHighPass is a second-order Butterworth high-pass filter with
// independent state per channel.
type BiquadHighPass struct {
	b0, b1, b2 float64
	a1, a2     float64
	// x1/x2/y1/y2 per channel
	state [][4]float64
}

// NewBiquadHighPass creates an uninitialized filter; the pipeline calls
// Initialize before the first frame.
func NewBiquadHighPass() *BiquadHighPass {
	return &BiquadHighPass{}
}

// Initialize computes coefficients for the sample rate and resets all
// per-channel state.
func (f *BiquadHighPass) Initialize(sampleRateHz, numChannels int) {
	omega := 2 * math.Pi * highPassCutoffHz / float64(sampleRateHz)
	cosw := math.Cos(omega)
	// Butterworth Q.
	alpha := math.Sin(omega) / math.Sqrt2

	a0 := 1 + alpha
	f.b0 = (1 + cosw) / 2 / a0
	f.b1 = -(1 + cosw) / a0
	f.b2 = (1 + cosw) / 2 / a0
	f.a1 = -2 * cosw / a0
	f.a2 = (1 - alpha) / a0

	f.state = make([][4]float64, numChannels)

	logrus.WithFields(logrus.Fields{
		"function":     "BiquadHighPass.Initialize",
		"sample_rate":  sampleRateHz,
		"num_channels": numChannels,
		"cutoff_hz":    highPassCutoffHz,
	}).Debug("High-pass filter initialized")
}

// Process filters every channel in place.
func (f *BiquadHighPass) Process(buf *frame.Buffer) {
	for ch, samples := range buf.Channels() {
		s := &f.state[ch]
		x1, x2, y1, y2 := s[0], s[1], s[2], s[3]
		for i, x := range samples {
			xf := float64(x)
			y := f.b0*xf + f.b1*x1 + f.b2*x2 - f.a1*y1 - f.a2*y2
			x2, x1 = x1, xf
			y2, y1 = y1, y
			samples[i] = float32(y)
		}
		s[0], s[1], s[2], s[3] = x1, x2, y1, y2
	}
}
