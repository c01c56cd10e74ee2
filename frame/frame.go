// Package frame defines the stream formats and sample buffers that flow
// through the voiceproc pipeline.
//
// Audio is handled in 10ms blocks of deinterleaved float32 samples. A
// Buffer never outlives the processing call it was created for; callers
// own the slices they pass in and get back.
package frame

import "fmt"

// Supported sample rates for both the capture and render paths.
const (
	SampleRate8kHz  = 8000
	SampleRate16kHz = 16000
	SampleRate32kHz = 32000
	SampleRate48kHz = 48000
)

// FramesPerSecond is the fixed block rate of the pipeline: every
// processing call covers exactly 10ms of audio.
const FramesPerSecond = 100

// SampleRateSupported reports whether the pipeline can process audio at
// the given rate.
func SampleRateSupported(rateHz int) bool {
	switch rateHz {
	case SampleRate8kHz, SampleRate16kHz, SampleRate32kHz, SampleRate48kHz:
		return true
	}
	return false
}

// StreamConfig describes the format of one audio stream endpoint: its
// sample rate and channel count.
type StreamConfig struct {
	SampleRateHz int
	NumChannels  int
}

// SamplesPerChannel returns the number of samples per channel in one
// 10ms block at this configuration's sample rate.
func (c StreamConfig) SamplesPerChannel() int {
	return c.SampleRateHz / FramesPerSecond
}

// Equal reports whether two stream configurations describe the same
// format.
func (c StreamConfig) Equal(other StreamConfig) bool {
	return c.SampleRateHz == other.SampleRateHz && c.NumChannels == other.NumChannels
}

// Valid reports whether the configuration uses a supported sample rate
// and at least one channel.
func (c StreamConfig) Valid() bool {
	return SampleRateSupported(c.SampleRateHz) && c.NumChannels >= 1
}

func (c StreamConfig) String() string {
	return fmt.Sprintf("%dHz/%dch", c.SampleRateHz, c.NumChannels)
}

// ProcessingConfig bundles the four stream endpoints the pipeline
// negotiates: capture input/output and render input/output.
type ProcessingConfig struct {
	InputStream         StreamConfig
	OutputStream        StreamConfig
	ReverseInputStream  StreamConfig
	ReverseOutputStream StreamConfig
}

// Valid reports whether every endpoint of the processing configuration
// is individually valid and the output formats are realizable from the
// corresponding inputs (the pipeline never invents channels).
func (p ProcessingConfig) Valid() bool {
	if !p.InputStream.Valid() || !p.OutputStream.Valid() ||
		!p.ReverseInputStream.Valid() || !p.ReverseOutputStream.Valid() {
		return false
	}
	if p.OutputStream.NumChannels > p.InputStream.NumChannels {
		return false
	}
	if p.ReverseOutputStream.NumChannels > p.ReverseInputStream.NumChannels {
		return false
	}
	return true
}
