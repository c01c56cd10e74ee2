package dsp

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceproc/frame"
)

// LevelAdjuster scales the capture signal before and after the
// processing chain. With analog mic gain emulation enabled it also
// applies an emulated microphone volume in software; that emulated level
// is internal state and must never surface in the volume recommendation
// returned to the caller.
type LevelAdjuster struct {
	preGain  float32
	postGain float32

	emulationEnabled bool
	emulatedLevel    int
}

// NewLevelAdjuster creates the stage with the configured gains.
func NewLevelAdjuster(preGain, postGain float32, emulationEnabled bool, initialEmulatedLevel int) *LevelAdjuster {
	if initialEmulatedLevel < 0 {
		initialEmulatedLevel = 0
	}
	if initialEmulatedLevel > 255 {
		initialEmulatedLevel = 255
	}
	logrus.WithFields(logrus.Fields{
		"function":          "NewLevelAdjuster",
		"pre_gain":          preGain,
		"post_gain":         postGain,
		"emulation_enabled": emulationEnabled,
		"emulated_level":    initialEmulatedLevel,
	}).Debug("Creating capture level adjuster")
	return &LevelAdjuster{
		preGain:          preGain,
		postGain:         postGain,
		emulationEnabled: emulationEnabled,
		emulatedLevel:    initialEmulatedLevel,
	}
}

// SetPreGain updates the pre-chain gain factor.
func (l *LevelAdjuster) SetPreGain(gain float32) { l.preGain = gain }

// SetPostGain updates the post-chain gain factor.
func (l *LevelAdjuster) SetPostGain(gain float32) { l.postGain = gain }

// PreGain returns the current pre-chain gain factor.
func (l *LevelAdjuster) PreGain() float32 { return l.preGain }

// PostGain returns the current post-chain gain factor.
func (l *LevelAdjuster) PostGain() float32 { return l.postGain }

// EmulationEnabled reports whether the analog mic gain is emulated.
func (l *LevelAdjuster) EmulationEnabled() bool { return l.emulationEnabled }

// SetEmulatedLevel moves the internally emulated microphone volume.
func (l *LevelAdjuster) SetEmulatedLevel(level int) {
	if level < 0 {
		level = 0
	}
	if level > 255 {
		level = 255
	}
	l.emulatedLevel = level
}

// EmulatedLevel returns the internally emulated microphone volume.
func (l *LevelAdjuster) EmulatedLevel() int { return l.emulatedLevel }

// ApplyPreGain scales the frame by the pre-gain and, when emulating, by
// the emulated microphone gain.
func (l *LevelAdjuster) ApplyPreGain(buf *frame.Buffer) {
	g := l.preGain
	if l.emulationEnabled {
		g *= float32(l.emulatedLevel) / 255.0
	}
	if g == 1 {
		return
	}
	scale(buf, g)
}

// ApplyPostGain scales the frame by the post-gain.
func (l *LevelAdjuster) ApplyPostGain(buf *frame.Buffer) {
	if l.postGain == 1 {
		return
	}
	scale(buf, l.postGain)
}

func scale(buf *frame.Buffer, g float32) {
	for _, samples := range buf.Channels() {
		for i := range samples {
			samples[i] *= g
		}
	}
}
