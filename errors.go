package voiceproc

import "errors"

// Configuration errors: the caller asked for a stream format the
// pipeline cannot process. The pipeline keeps its last known-good state;
// the caller must stop feeding frames of the offending format until a
// supported one is applied.
var (
	ErrUnsupportedSampleRate   = errors.New("voiceproc: unsupported sample rate")
	ErrInvalidChannelCount     = errors.New("voiceproc: channel count must be at least one")
	ErrInvalidProcessingConfig = errors.New("voiceproc: output format not realizable from input format")
)

// State errors: the operation is invalid in the processor's current
// lifecycle state.
var (
	ErrNotInitialized = errors.New("voiceproc: processor not initialized")
	ErrNilBuffer      = errors.New("voiceproc: nil audio buffer")
	ErrShortBuffer    = errors.New("voiceproc: buffer shorter than one 10ms frame")
)

// IsConfigError reports whether err is a stream-format configuration
// error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrUnsupportedSampleRate) ||
		errors.Is(err, ErrInvalidChannelCount) ||
		errors.Is(err, ErrInvalidProcessingConfig)
}

// IsStateError reports whether err is a lifecycle/state error.
func IsStateError(err error) bool {
	return errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrNilBuffer) ||
		errors.Is(err, ErrShortBuffer)
}
