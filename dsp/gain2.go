package dsp

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceproc/frame"
)

// Agc2Config tunes the gain controller 2 digital stage.
type Agc2Config struct {
	// FixedGainDB is always applied.
	FixedGainDB float32
	// AdaptiveEnabled turns on the peak-following adaptive gain.
	AdaptiveEnabled bool
	// HeadroomDB is kept between the adapted peak and full scale.
	HeadroomDB float32
	// MaxGainDB caps the adaptive gain.
	MaxGainDB float32
	// MaxGainChangeDBS limits how fast the adaptive gain moves, in dB
	// per second.
	MaxGainChangeDBS float32
}

// Agc2DigitalGain is gain controller 2's digital stage: a fixed gain
// followed by a peak-following adaptive gain with bounded rate of change.
// It also estimates speech probability and speech level for the input
// volume controller.
type Agc2DigitalGain struct {
	cfg Agc2Config

	fixedGain    float64
	adaptiveGain float64
	maxGain      float64
	stepPerFrame float64
	peak         float64

	speechProbability float32
	speechLevelDBFS   float32
}

// NewAgc2DigitalGain creates the stage from its configuration.
func NewAgc2DigitalGain(cfg Agc2Config) *Agc2DigitalGain {
	return &Agc2DigitalGain{cfg: cfg}
}

// Initialize resets adaptation for a new format.
func (a *Agc2DigitalGain) Initialize(sampleRateHz, numChannels int) {
	a.fixedGain = math.Pow(10, float64(a.cfg.FixedGainDB)/20)
	a.adaptiveGain = 1.0
	a.maxGain = math.Pow(10, float64(a.cfg.MaxGainDB)/20)
	if a.maxGain < 1 {
		a.maxGain = 1
	}
	// 100 frames per second.
	a.stepPerFrame = math.Pow(10, float64(a.cfg.MaxGainChangeDBS)/20/frame.FramesPerSecond)
	if a.stepPerFrame <= 1 {
		a.stepPerFrame = 1.001
	}
	a.peak = 0
	a.speechProbability = 0
	a.speechLevelDBFS = -90

	logrus.WithFields(logrus.Fields{
		"function":      "Agc2DigitalGain.Initialize",
		"sample_rate":   sampleRateHz,
		"num_channels":  numChannels,
		"fixed_gain_db": a.cfg.FixedGainDB,
		"adaptive":      a.cfg.AdaptiveEnabled,
	}).Debug("Gain controller 2 initialized")
}

// Process applies the fixed and adaptive gains in place and refreshes
// the speech estimates from the processed frame.
func (a *Agc2DigitalGain) Process(buf *frame.Buffer) {
	// Frame peak across channels drives the adaptation.
	var framePeak float64
	var frameRMS float64
	for _, samples := range buf.Channels() {
		for _, s := range samples {
			v := math.Abs(float64(s))
			if v > framePeak {
				framePeak = v
			}
		}
		frameRMS += rms(samples)
	}
	frameRMS /= float64(buf.NumChannels())

	// Smoothed peak follower, slow release (adapted from the voice-call
	// auto gain in the effects chain this stage replaces).
	if framePeak > a.peak {
		a.peak = framePeak
	} else {
		a.peak *= 0.999
	}

	if a.cfg.AdaptiveEnabled && a.peak > 1 {
		headroom := math.Pow(10, float64(a.cfg.HeadroomDB)/20)
		target := fullScale / (a.peak * headroom)
		if target > a.maxGain {
			target = a.maxGain
		}
		if target < 1 {
			target = 1
		}
		if target > a.adaptiveGain {
			a.adaptiveGain = math.Min(target, a.adaptiveGain*a.stepPerFrame)
		} else {
			a.adaptiveGain = math.Max(target, a.adaptiveGain/a.stepPerFrame)
		}
	}

	g := float32(a.fixedGain * a.adaptiveGain)
	for _, samples := range buf.Channels() {
		for i, s := range samples {
			v := s * g
			if v > fullScale-1 {
				v = fullScale - 1
			} else if v < -fullScale {
				v = -fullScale
			}
			samples[i] = v
		}
	}

	a.updateSpeechEstimates(frameRMS)
}

// updateSpeechEstimates derives a coarse speech probability and level
// from frame energy. Good enough to steer the input volume controller;
// a real VAD can be injected as a capture post-processor when needed.
func (a *Agc2DigitalGain) updateSpeechEstimates(frameRMS float64) {
	if frameRMS <= 0 {
		a.speechProbability = 0
		a.speechLevelDBFS = -90
		return
	}
	dbfs := 20 * math.Log10(frameRMS/fullScale)
	if dbfs < -90 {
		dbfs = -90
	}
	a.speechLevelDBFS = float32(dbfs)
	switch {
	case dbfs > -40:
		a.speechProbability = 1.0
	case dbfs > -60:
		a.speechProbability = float32((dbfs + 60) / 20)
	default:
		a.speechProbability = 0
	}
}

// SpeechProbability returns the last frame's speech likelihood.
func (a *Agc2DigitalGain) SpeechProbability() float32 { return a.speechProbability }

// SpeechLevelDBFS returns the last frame's estimated speech level.
func (a *Agc2DigitalGain) SpeechLevelDBFS() float32 { return a.speechLevelDBFS }
