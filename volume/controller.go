// Package volume computes the recommended analog input (microphone)
// volume from the applied volume.
//
// Two interchangeable strategies share the Strategy contract: the gain
// controller 1 analog-adaptive variant and the gain controller 2
// input-volume variant. Both enforce the minimum-volume floor with one
// exception that is load-bearing for callers: a volume of exactly 0 is an
// explicit mute signal and always passes through unfloored.
package volume

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceproc/experiments"
)

const (
	// MaxVolume is the top of the analog input volume range.
	MaxVolume = 255
	// DefaultMinInputVolume is the floor applied to nonzero recommended
	// volumes when no experiment override is present.
	DefaultMinInputVolume = 12
)

// MinInputVolumeExperiment overrides DefaultMinInputVolume with the
// "Enabled-<n>" value form, clamped to [0, 255].
const MinInputVolumeExperiment = "Agc2MinInputVolume"

// ResolveMinInputVolume reads the minimum input volume from an
// experiment snapshot, falling back to DefaultMinInputVolume.
func ResolveMinInputVolume(overrides experiments.Snapshot) int {
	value, ok := overrides.EnabledValue(MinInputVolumeExperiment)
	if !ok {
		return DefaultMinInputVolume
	}
	if value < 0 || value > MaxVolume {
		logrus.WithFields(logrus.Fields{
			"function":   "ResolveMinInputVolume",
			"experiment": MinInputVolumeExperiment,
			"value":      value,
		}).Warn("Minimum input volume override out of range, using default")
		return DefaultMinInputVolume
	}
	return value
}

// Strategy is the contract shared by the input volume controller
// variants. Calls happen once per capture frame, in order:
// SetAppliedInputVolume, AnalyzePreProcess, Process,
// RecommendedInputVolume.
type Strategy interface {
	// SetAppliedInputVolume records the volume the platform actually
	// applied for the current frame.
	SetAppliedInputVolume(level int)
	// AnalyzePreProcess inspects the raw capture frame for clipping
	// before any digital processing has run.
	AnalyzePreProcess(channels [][]float32)
	// Process updates the recommendation from the frame's estimated
	// speech probability ([0, 1]) and speech level (dBFS).
	Process(speechProbability, speechLevelDBFS float32)
	// RecommendedInputVolume returns the volume to hand back to the
	// caller for the current frame.
	RecommendedInputVolume() int
	// HandleCaptureOutputUsedChange pauses adaptation while the capture
	// output is not consumed downstream.
	HandleCaptureOutputUsedChange(used bool)
}

// Config tunes a Controller.
type Config struct {
	// StartupMinVolume is the lowest nonzero volume recommended on the
	// first processed frame. Clamped into [MinInputVolume, MaxVolume].
	StartupMinVolume int
	// ClippedLevelMin bounds how far the clipping response may lower the
	// volume.
	ClippedLevelMin int
	// ClippedLevelStep is subtracted from the volume on each clipping
	// event. Must be in (0, 255].
	ClippedLevelStep int
	// ClippedRatioThreshold is the per-frame proportion of full-scale
	// samples that declares a clipping event. Must be in (0, 1).
	ClippedRatioThreshold float32
	// ClippedWaitFrames is the hold-off after a clipping event before
	// clipping is evaluated again.
	ClippedWaitFrames int
	// MinInputVolume is the floor for nonzero recommendations.
	MinInputVolume int
	// TargetRangeMinDBFS and TargetRangeMaxDBFS bound the speech level
	// band the controller steers toward.
	TargetRangeMinDBFS int
	TargetRangeMaxDBFS int
	// UpdateWaitFrames is the number of frames between volume updates
	// driven by the speech level estimate.
	UpdateWaitFrames int
	// SpeechProbabilityThreshold gates level-driven updates to frames
	// that are confidently speech.
	SpeechProbabilityThreshold float32
}

// Controller implements Strategy. It is not safe for concurrent use; the
// pipeline coordinator calls it under its processing lock only.
type Controller struct {
	cfg         Config
	numChannels int

	applied     int
	recommended int

	startup            bool
	captureOutputUsed  bool
	framesSinceClipped int
	framesSinceUpdate  int
}

func clampVolume(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NewAgc1AnalogController builds the gain controller 1 analog-adaptive
// strategy.
func NewAgc1AnalogController(numCaptureChannels int, cfg Config) *Controller {
	cfg.TargetRangeMinDBFS = -30
	cfg.TargetRangeMaxDBFS = -18
	return newController("agc1_analog", numCaptureChannels, cfg)
}

// NewAgc2InputVolumeController builds the gain controller 2 input-volume
// strategy.
func NewAgc2InputVolumeController(numCaptureChannels int, cfg Config) *Controller {
	cfg.TargetRangeMinDBFS = -50
	cfg.TargetRangeMaxDBFS = -30
	return newController("agc2_input_volume", numCaptureChannels, cfg)
}

func newController(variant string, numCaptureChannels int, cfg Config) *Controller {
	if cfg.MinInputVolume <= 0 {
		cfg.MinInputVolume = DefaultMinInputVolume
	}
	if cfg.ClippedLevelMin <= 0 {
		cfg.ClippedLevelMin = 70
	}
	if cfg.ClippedLevelStep <= 0 || cfg.ClippedLevelStep > MaxVolume {
		cfg.ClippedLevelStep = 15
	}
	if cfg.ClippedRatioThreshold <= 0 || cfg.ClippedRatioThreshold >= 1 {
		cfg.ClippedRatioThreshold = 0.1
	}
	if cfg.ClippedWaitFrames <= 0 {
		cfg.ClippedWaitFrames = 300
	}
	if cfg.UpdateWaitFrames <= 0 {
		cfg.UpdateWaitFrames = 100
	}
	if cfg.SpeechProbabilityThreshold <= 0 {
		cfg.SpeechProbabilityThreshold = 0.7
	}
	cfg.StartupMinVolume = clampVolume(cfg.StartupMinVolume, cfg.MinInputVolume, MaxVolume)

	logrus.WithFields(logrus.Fields{
		"function":           "newController",
		"variant":            variant,
		"num_channels":       numCaptureChannels,
		"min_input_volume":   cfg.MinInputVolume,
		"startup_min_volume": cfg.StartupMinVolume,
		"clipped_level_min":  cfg.ClippedLevelMin,
	}).Info("Creating input volume controller")

	return &Controller{
		cfg:                cfg,
		numChannels:        numCaptureChannels,
		startup:            true,
		captureOutputUsed:  true,
		framesSinceClipped: cfg.ClippedWaitFrames,
	}
}

// Initialize resets the adaptation state while keeping the configured
// parameters. Called by the coordinator on format changes.
func (c *Controller) Initialize() {
	c.startup = true
	c.framesSinceClipped = c.cfg.ClippedWaitFrames
	c.framesSinceUpdate = 0
}

// SetAppliedInputVolume records the externally applied volume. The
// recommendation starts from this value every frame.
func (c *Controller) SetAppliedInputVolume(level int) {
	c.applied = clampVolume(level, 0, MaxVolume)
	c.recommended = c.applied
}

// AnalyzePreProcess runs clipping detection on the raw capture frame.
// Samples use int16 full-scale (±32768) float encoding.
func (c *Controller) AnalyzePreProcess(channels [][]float32) {
	c.framesSinceClipped++
	if !c.captureOutputUsed || len(channels) == 0 {
		return
	}
	if c.framesSinceClipped < c.cfg.ClippedWaitFrames {
		return
	}
	ratio := clippedRatio(channels)
	if ratio <= c.cfg.ClippedRatioThreshold {
		return
	}
	lowered := clampVolume(c.recommended-c.cfg.ClippedLevelStep, c.cfg.ClippedLevelMin, MaxVolume)
	logrus.WithFields(logrus.Fields{
		"function":      "Controller.AnalyzePreProcess",
		"clipped_ratio": ratio,
		"volume":        c.recommended,
		"lowered_to":    lowered,
	}).Info("Input clipping detected, lowering recommended volume")
	if lowered < c.recommended {
		c.recommended = lowered
	}
	c.framesSinceClipped = 0
}

// clippedRatio returns the largest per-channel proportion of full-scale
// samples in the frame.
func clippedRatio(channels [][]float32) float32 {
	maxClipped := 0
	samples := len(channels[0])
	if samples == 0 {
		return 0
	}
	for _, ch := range channels {
		clipped := 0
		for _, s := range ch {
			if s >= 32767.0 || s <= -32768.0 {
				clipped++
			}
		}
		if clipped > maxClipped {
			maxClipped = clipped
		}
	}
	return float32(maxClipped) / float32(samples)
}

// Process updates the recommendation from the speech level estimate and
// applies the startup and minimum-volume policies.
func (c *Controller) Process(speechProbability, speechLevelDBFS float32) {
	if !c.captureOutputUsed {
		return
	}
	if c.startup {
		// A person starting a call is expected to be heard: raise a too
		// low nonzero startup volume. Zero still means muted and is left
		// alone.
		if c.recommended > 0 && c.recommended < c.cfg.StartupMinVolume {
			c.recommended = c.cfg.StartupMinVolume
		}
		c.startup = false
		c.framesSinceUpdate = 0
		c.applyFloor()
		return
	}

	c.framesSinceUpdate++
	if c.recommended > 0 &&
		c.framesSinceUpdate >= c.cfg.UpdateWaitFrames &&
		speechProbability >= c.cfg.SpeechProbabilityThreshold {
		errorDB := 0
		if speechLevelDBFS < float32(c.cfg.TargetRangeMinDBFS) {
			errorDB = c.cfg.TargetRangeMinDBFS - int(speechLevelDBFS)
		} else if speechLevelDBFS > float32(c.cfg.TargetRangeMaxDBFS) {
			errorDB = c.cfg.TargetRangeMaxDBFS - int(speechLevelDBFS)
		}
		if errorDB != 0 {
			const maxStep = 15
			errorDB = clampVolume(errorDB, -maxStep, maxStep)
			c.recommended = clampVolume(c.recommended+errorDB, 0, MaxVolume)
			c.framesSinceUpdate = 0
			logrus.WithFields(logrus.Fields{
				"function":          "Controller.Process",
				"speech_level_dbfs": speechLevelDBFS,
				"adjustment_db":     errorDB,
				"recommended":       c.recommended,
			}).Debug("Adjusted recommended input volume from speech level")
		}
	}
	c.applyFloor()
}

// applyFloor raises nonzero recommendations to the configured minimum.
// Zero is an explicit mute signal and never floored.
func (c *Controller) applyFloor() {
	if c.recommended > 0 && c.recommended < c.cfg.MinInputVolume {
		c.recommended = c.cfg.MinInputVolume
	}
}

// RecommendedInputVolume returns the current recommendation.
func (c *Controller) RecommendedInputVolume() int {
	return c.recommended
}

// HandleCaptureOutputUsedChange pauses or resumes adaptation.
func (c *Controller) HandleCaptureOutputUsedChange(used bool) {
	if c.captureOutputUsed == used {
		return
	}
	c.captureOutputUsed = used
	logrus.WithFields(logrus.Fields{
		"function":            "Controller.HandleCaptureOutputUsedChange",
		"capture_output_used": used,
	}).Debug("Capture output usage changed")
	if used {
		// Re-check volume from scratch when the output is consumed again.
		c.framesSinceUpdate = 0
	}
}
