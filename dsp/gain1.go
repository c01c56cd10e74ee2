package dsp

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceproc/frame"
)

const fullScale = 32768.0

// Agc1Compressor is the digital half of gain controller 1: a fixed
// compression gain toward a target level with an optional hard limiter.
type Agc1Compressor struct {
	targetLevelDBFS   int
	compressionGainDB int
	limiterEnabled    bool

	gain float64
	// Smoothed peak of the analyzed frame, used to back off the gain
	// when compression alone would clip.
	peak []float64
}

// NewAgc1Compressor creates the compressor with the configured target
// level and compression gain.
func NewAgc1Compressor(targetLevelDBFS, compressionGainDB int, limiterEnabled bool) *Agc1Compressor {
	return &Agc1Compressor{
		targetLevelDBFS:   targetLevelDBFS,
		compressionGainDB: compressionGainDB,
		limiterEnabled:    limiterEnabled,
	}
}

// Initialize resets state for a new format.
func (a *Agc1Compressor) Initialize(sampleRateHz, numChannels int) {
	a.gain = math.Pow(10, float64(a.compressionGainDB)/20)
	a.peak = make([]float64, numChannels)
	logrus.WithFields(logrus.Fields{
		"function":            "Agc1Compressor.Initialize",
		"sample_rate":         sampleRateHz,
		"num_channels":        numChannels,
		"target_level_dbfs":   a.targetLevelDBFS,
		"compression_gain_db": a.compressionGainDB,
	}).Debug("Gain controller 1 initialized")
}

// Analyze tracks the pre-compression peak per channel.
func (a *Agc1Compressor) Analyze(buf *frame.Buffer) {
	for ch, samples := range buf.Channels() {
		var peak float64
		for _, s := range samples {
			v := math.Abs(float64(s))
			if v > peak {
				peak = v
			}
		}
		a.peak[ch] = a.peak[ch] + 0.5*(peak-a.peak[ch])
	}
}

// Process applies the compression gain, backing off per channel so the
// target level is not exceeded, and clamps at full scale when the
// limiter is on.
func (a *Agc1Compressor) Process(buf *frame.Buffer) {
	targetPeak := fullScale * math.Pow(10, float64(-a.targetLevelDBFS)/20)
	for ch, samples := range buf.Channels() {
		g := a.gain
		if a.peak[ch]*g > targetPeak && a.peak[ch] > 0 {
			g = targetPeak / a.peak[ch]
		}
		if g < 1 {
			g = 1
		}
		for i, s := range samples {
			v := float64(s) * g
			if a.limiterEnabled {
				if v > fullScale-1 {
					v = fullScale - 1
				} else if v < -fullScale {
					v = -fullScale
				}
			}
			samples[i] = float32(v)
		}
	}
}
