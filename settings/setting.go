// Package settings carries small typed configuration deltas from
// application threads to the capture processing thread without blocking
// the real-time path.
//
// A Setting is produced by any thread, posted to a bounded Queue, drained
// exactly once by the processing thread at the start of a capture frame,
// and then discarded.
package settings

import "fmt"

// Kind identifies the payload of a Setting.
type Kind uint8

const (
	// KindCapturePreGain adjusts the linear gain applied before the
	// capture chain (pre-amplifier or level-adjustment pre-gain).
	KindCapturePreGain Kind = iota
	// KindCapturePostGain adjusts the linear gain applied after the
	// capture chain (level-adjustment post-gain).
	KindCapturePostGain
	// KindCaptureOutputUsed flags whether the capture output is consumed
	// downstream; submodules may idle when it is not.
	KindCaptureOutputUsed
	// KindPlayoutVolumeChange reports a new loudspeaker volume level.
	KindPlayoutVolumeChange
)

func (k Kind) String() string {
	switch k {
	case KindCapturePreGain:
		return "capture_pre_gain"
	case KindCapturePostGain:
		return "capture_post_gain"
	case KindCaptureOutputUsed:
		return "capture_output_used"
	case KindPlayoutVolumeChange:
		return "playout_volume_change"
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// Setting is a tagged variant holding one configuration delta. The
// accessor matching the kind returns the payload; the others return the
// type's zero value.
type Setting struct {
	kind     Kind
	floatVal float32
	boolVal  bool
	intVal   int
}

// CapturePreGain creates a pre-gain update with a linear gain factor.
func CapturePreGain(factor float32) Setting {
	return Setting{kind: KindCapturePreGain, floatVal: factor}
}

// CapturePostGain creates a post-gain update with a linear gain factor.
func CapturePostGain(factor float32) Setting {
	return Setting{kind: KindCapturePostGain, floatVal: factor}
}

// CaptureOutputUsed creates a capture-output usage notification.
func CaptureOutputUsed(used bool) Setting {
	return Setting{kind: KindCaptureOutputUsed, boolVal: used}
}

// PlayoutVolumeChange creates a playout volume report.
func PlayoutVolumeChange(level int) Setting {
	return Setting{kind: KindPlayoutVolumeChange, intVal: level}
}

// Kind returns the variant tag.
func (s Setting) Kind() Kind { return s.kind }

// Float returns the float payload (pre/post gain factors).
func (s Setting) Float() float32 { return s.floatVal }

// Bool returns the bool payload (capture output usage).
func (s Setting) Bool() bool { return s.boolVal }

// Int returns the int payload (playout volume level).
func (s Setting) Int() int { return s.intVal }
