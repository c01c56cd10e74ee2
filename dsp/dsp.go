// Package dsp defines the capability contracts for the pluggable DSP
// submodules of the voiceproc pipeline, along with built-in default
// implementations suitable for voice communication.
//
// The pipeline coordinator owns exactly one instance of each enabled
// capability and calls it under the processing lock; implementations do
// not need to be thread-safe. Samples are deinterleaved float32 in int16
// full-scale encoding (±32768).
package dsp

import (
	"github.com/opd-ai/voiceproc/frame"
	"github.com/opd-ai/voiceproc/settings"
)

// EchoController cancels loudspeaker leakage from the capture signal.
type EchoController interface {
	// AnalyzeRender observes a render frame used as the echo reference.
	AnalyzeRender(buf *frame.Buffer)
	// AnalyzeCapture observes the capture frame before noise
	// suppression.
	AnalyzeCapture(buf *frame.Buffer)
	// ProcessCapture removes echo from the capture frame. level is the
	// applied analog input volume; echoPathChange is true for exactly
	// the frames in which the acoustic/gain path changed and the
	// adaptive filter state should be discarded.
	ProcessCapture(buf *frame.Buffer, level int, echoPathChange bool)
	// SetCaptureOutputUsage tells the controller whether the capture
	// output is consumed downstream.
	SetCaptureOutputUsage(used bool)
}

// EchoControllerFactory builds an EchoController for a negotiated
// format. The pipeline calls it again after every format change.
type EchoControllerFactory interface {
	Create(sampleRateHz, numRenderChannels, numCaptureChannels int) EchoController
}

// EchoMetrics summarizes an echo detector's estimates.
type EchoMetrics struct {
	EchoLikelihood          float64
	EchoLikelihoodRecentMax float64
}

// EchoDetector estimates residual echo likelihood by observing both
// streams.
type EchoDetector interface {
	Initialize(captureSampleRateHz, numCaptureChannels, renderSampleRateHz, numRenderChannels int)
	AnalyzeRenderAudio(samples []float32)
	AnalyzeCaptureAudio(samples []float32)
	Metrics() EchoMetrics
}

// CustomProcessing is an injected render pre-processor or capture
// post-processor.
type CustomProcessing interface {
	Initialize(sampleRateHz, numChannels int)
	Process(buf *frame.Buffer)
	// HandleRuntimeSetting receives every runtime setting applied by the
	// pipeline so custom stages can react to gain changes.
	HandleRuntimeSetting(s settings.Setting)
}

// HighPassFilter removes DC offset and rumble from the capture signal.
type HighPassFilter interface {
	Initialize(sampleRateHz, numChannels int)
	Process(buf *frame.Buffer)
}

// NoiseSuppressor attenuates stationary background noise. Analyze runs
// before echo processing, Process after.
type NoiseSuppressor interface {
	Initialize(sampleRateHz, numChannels int)
	Analyze(buf *frame.Buffer)
	Process(buf *frame.Buffer)
}

// TransientSuppressor attenuates short non-speech bursts.
type TransientSuppressor interface {
	Initialize(sampleRateHz, numChannels int)
	Process(buf *frame.Buffer)
}

// GainController1 is the legacy compressor stage: Analyze observes the
// pre-compression frame, Process applies digital compression.
type GainController1 interface {
	Initialize(sampleRateHz, numChannels int)
	Analyze(buf *frame.Buffer)
	Process(buf *frame.Buffer)
}

// GainController2 is the newer digital gain stage. Its speech estimates
// feed the input volume controller.
type GainController2 interface {
	Initialize(sampleRateHz, numChannels int)
	Process(buf *frame.Buffer)
	// SpeechProbability returns the [0, 1] speech likelihood of the last
	// processed frame.
	SpeechProbability() float32
	// SpeechLevelDBFS returns the estimated speech level of the last
	// processed frame.
	SpeechLevelDBFS() float32
}
