// Package config defines the pipeline configuration record and the
// adjustment pass that turns a requested configuration plus experiment
// overrides into the effective configuration the pipeline runs with.
package config

import (
	"fmt"
	"strings"
)

// Agc1Mode selects how gain controller 1 operates.
type Agc1Mode uint8

const (
	// Agc1AdaptiveAnalog adapts the analog input volume and applies
	// digital compression on top.
	Agc1AdaptiveAnalog Agc1Mode = iota
	// Agc1AdaptiveDigital adapts a digital gain only.
	Agc1AdaptiveDigital
	// Agc1FixedDigital applies a fixed digital compression gain.
	Agc1FixedDigital
)

func (m Agc1Mode) String() string {
	switch m {
	case Agc1AdaptiveAnalog:
		return "AdaptiveAnalog"
	case Agc1AdaptiveDigital:
		return "AdaptiveDigital"
	case Agc1FixedDigital:
		return "FixedDigital"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// NoiseSuppressionLevel selects how aggressively noise is attenuated.
type NoiseSuppressionLevel uint8

const (
	NoiseSuppressionLow NoiseSuppressionLevel = iota
	NoiseSuppressionModerate
	NoiseSuppressionHigh
	NoiseSuppressionVeryHigh
)

func (l NoiseSuppressionLevel) String() string {
	switch l {
	case NoiseSuppressionLow:
		return "Low"
	case NoiseSuppressionModerate:
		return "Moderate"
	case NoiseSuppressionHigh:
		return "High"
	case NoiseSuppressionVeryHigh:
		return "VeryHigh"
	}
	return fmt.Sprintf("Level(%d)", uint8(l))
}

// PreAmplifier applies a fixed linear gain at the very front of the
// capture chain. Superseded by CaptureLevelAdjustment when both are
// enabled.
type PreAmplifier struct {
	Enabled         bool
	FixedGainFactor float32
}

// AnalogMicGainEmulation makes the level-adjustment stage emulate an
// analog microphone gain in software. While enabled, volume
// recommendations returned to the caller always equal the applied volume;
// the emulated level is internal only.
type AnalogMicGainEmulation struct {
	Enabled bool
	// InitialLevel is the emulated volume at startup, in [0, 255].
	InitialLevel int
}

// CaptureLevelAdjustment scales the capture signal before and after the
// processing chain and optionally emulates the analog microphone gain.
type CaptureLevelAdjustment struct {
	Enabled                bool
	PreGainFactor          float32
	PostGainFactor         float32
	AnalogMicGainEmulation AnalogMicGainEmulation
}

// HighPassFilter removes DC offset and low-frequency rumble from the
// capture signal.
type HighPassFilter struct {
	Enabled bool
}

// NoiseSuppression attenuates stationary background noise.
type NoiseSuppression struct {
	Enabled bool
	Level   NoiseSuppressionLevel
}

// TransientSuppression attenuates short bursts such as keyboard clicks.
type TransientSuppression struct {
	Enabled bool
}

// EchoCanceller enables the echo controller stage. The actual algorithm
// is whatever EchoControllerFactory was injected at build time.
type EchoCanceller struct {
	Enabled    bool
	MobileMode bool
}

// AnalogGainController is gain controller 1's analog input volume
// adaptation.
type AnalogGainController struct {
	Enabled bool
	// StartupMinVolume is the lowest volume recommended at startup. The
	// pipeline clamps it into [12, 255].
	StartupMinVolume int
	// ClippedLevelMin is the lowest volume the clipping response may
	// reach.
	ClippedLevelMin int
	// EnableDigitalAdaptive enables gain controller 1's own digital
	// adaptation on top of the analog adaptation. When disabled, gain
	// controller 2 typically provides the digital stage (hybrid mode).
	EnableDigitalAdaptive bool
}

// GainController1 is the legacy gain controller: analog volume
// adaptation plus digital compression.
type GainController1 struct {
	Enabled              bool
	Mode                 Agc1Mode
	TargetLevelDBFS      int
	CompressionGainDB    int
	EnableLimiter        bool
	AnalogGainController AnalogGainController
}

// AdaptiveDigital is gain controller 2's adaptive digital gain stage.
type AdaptiveDigital struct {
	Enabled          bool
	HeadroomDB       float32
	MaxGainDB        float32
	MaxGainChangeDBS float32
}

// FixedDigital is gain controller 2's fixed digital gain stage.
type FixedDigital struct {
	GainDB float32
}

// InputVolumeController is gain controller 2's analog input volume
// recommendation stage.
type InputVolumeController struct {
	Enabled bool
}

// GainController2 is the newer gain controller: fixed and adaptive
// digital gain plus an optional input volume controller.
type GainController2 struct {
	Enabled               bool
	AdaptiveDigital       AdaptiveDigital
	FixedDigital          FixedDigital
	InputVolumeController InputVolumeController
}

// Config is the full submodule toggle and parameter record for the
// pipeline. At most one controller may own the analog input channel;
// Adjust enforces this before the pipeline accepts the configuration.
type Config struct {
	PreAmplifier           PreAmplifier
	CaptureLevelAdjustment CaptureLevelAdjustment
	HighPassFilter         HighPassFilter
	EchoCanceller          EchoCanceller
	NoiseSuppression       NoiseSuppression
	TransientSuppression   TransientSuppression
	GainController1        GainController1
	GainController2        GainController2
}

// Default returns the configuration the pipeline starts with: all
// optional stages disabled and neutral gain factors.
func Default() Config {
	var c Config
	c.PreAmplifier.FixedGainFactor = 1.0
	c.CaptureLevelAdjustment.PreGainFactor = 1.0
	c.CaptureLevelAdjustment.PostGainFactor = 1.0
	c.CaptureLevelAdjustment.AnalogMicGainEmulation.InitialLevel = 255
	c.GainController1.Mode = Agc1AdaptiveAnalog
	c.GainController1.TargetLevelDBFS = 3
	c.GainController1.CompressionGainDB = 9
	c.GainController1.EnableLimiter = true
	c.GainController1.AnalogGainController.Enabled = true
	c.GainController1.AnalogGainController.StartupMinVolume = 0
	c.GainController1.AnalogGainController.ClippedLevelMin = 70
	c.GainController1.AnalogGainController.EnableDigitalAdaptive = true
	c.GainController2.AdaptiveDigital.HeadroomDB = 5.0
	c.GainController2.AdaptiveDigital.MaxGainDB = 50.0
	c.GainController2.AdaptiveDigital.MaxGainChangeDBS = 6.0
	return c
}

// String serializes the configuration in a fixed field order. Two
// logically equal configurations always serialize identically, so the
// output is usable for equality assertions.
func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "PreAmplifier{enabled:%t,fixed_gain_factor:%.6f},",
		c.PreAmplifier.Enabled, c.PreAmplifier.FixedGainFactor)
	fmt.Fprintf(&b, "CaptureLevelAdjustment{enabled:%t,pre_gain_factor:%.6f,post_gain_factor:%.6f,"+
		"AnalogMicGainEmulation{enabled:%t,initial_level:%d}},",
		c.CaptureLevelAdjustment.Enabled,
		c.CaptureLevelAdjustment.PreGainFactor,
		c.CaptureLevelAdjustment.PostGainFactor,
		c.CaptureLevelAdjustment.AnalogMicGainEmulation.Enabled,
		c.CaptureLevelAdjustment.AnalogMicGainEmulation.InitialLevel)
	fmt.Fprintf(&b, "HighPassFilter{enabled:%t},", c.HighPassFilter.Enabled)
	fmt.Fprintf(&b, "EchoCanceller{enabled:%t,mobile_mode:%t},",
		c.EchoCanceller.Enabled, c.EchoCanceller.MobileMode)
	fmt.Fprintf(&b, "NoiseSuppression{enabled:%t,level:%s},",
		c.NoiseSuppression.Enabled, c.NoiseSuppression.Level)
	fmt.Fprintf(&b, "TransientSuppression{enabled:%t},", c.TransientSuppression.Enabled)
	fmt.Fprintf(&b, "GainController1{enabled:%t,mode:%s,target_level_dbfs:%d,compression_gain_db:%d,"+
		"enable_limiter:%t,AnalogGainController{enabled:%t,startup_min_volume:%d,clipped_level_min:%d,"+
		"enable_digital_adaptive:%t}},",
		c.GainController1.Enabled, c.GainController1.Mode,
		c.GainController1.TargetLevelDBFS, c.GainController1.CompressionGainDB,
		c.GainController1.EnableLimiter,
		c.GainController1.AnalogGainController.Enabled,
		c.GainController1.AnalogGainController.StartupMinVolume,
		c.GainController1.AnalogGainController.ClippedLevelMin,
		c.GainController1.AnalogGainController.EnableDigitalAdaptive)
	fmt.Fprintf(&b, "GainController2{enabled:%t,AdaptiveDigital{enabled:%t,headroom_db:%.6f,"+
		"max_gain_db:%.6f,max_gain_change_db_per_second:%.6f},FixedDigital{gain_db:%.6f},"+
		"InputVolumeController{enabled:%t}}",
		c.GainController2.Enabled,
		c.GainController2.AdaptiveDigital.Enabled,
		c.GainController2.AdaptiveDigital.HeadroomDB,
		c.GainController2.AdaptiveDigital.MaxGainDB,
		c.GainController2.AdaptiveDigital.MaxGainChangeDBS,
		c.GainController2.FixedDigital.GainDB,
		c.GainController2.InputVolumeController.Enabled)
	return b.String()
}
