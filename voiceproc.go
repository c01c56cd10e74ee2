// Package voiceproc implements a real-time audio conditioning pipeline
// for voice communication.
//
// The pipeline conditions microphone (capture) audio and analyzes
// loudspeaker (render) audio in 10ms frames: it cancels acoustic echo,
// suppresses noise and transients, normalizes level, and recommends an
// analog input volume. Processing is deterministic: the same
// configuration and input samples always produce bit-identical output.
//
// Example:
//
//	proc, err := voiceproc.NewBuilder().
//	    SetConfig(cfg).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	streamCfg := frame.StreamConfig{SampleRateHz: 48000, NumChannels: 1}
//	for each 10ms block {
//	    proc.SetStreamAnalogLevel(appliedVolume)
//	    err := proc.ProcessStream(in, streamCfg, streamCfg, out)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    appliedVolume = proc.RecommendedStreamAnalogLevel()
//	}
//
// Up to two real-time threads may stream concurrently (one calling
// ProcessStream, one calling ProcessReverseStream); any thread may apply
// configuration or post runtime settings.
package voiceproc

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceproc/config"
	"github.com/opd-ai/voiceproc/dsp"
	"github.com/opd-ai/voiceproc/experiments"
	"github.com/opd-ai/voiceproc/settings"
)

// Builder assembles an AudioProcessor, injecting the pluggable DSP
// capabilities. All setters return the builder for chaining; Build may
// be called once.
type Builder struct {
	cfg           config.Config
	cfgSet        bool
	overrides     experiments.Snapshot
	echoFactory   dsp.EchoControllerFactory
	echoDetector  dsp.EchoDetector
	renderPre     dsp.CustomProcessing
	capturePost   dsp.CustomProcessing
	queueCapacity int
}

// NewBuilder creates a builder with the default configuration, no
// experiment overrides, and the built-in submodule implementations.
func NewBuilder() *Builder {
	return &Builder{queueCapacity: settings.DefaultQueueCapacity}
}

// SetConfig sets the requested configuration. It is adjusted for
// internal consistency during Build.
func (b *Builder) SetConfig(cfg config.Config) *Builder {
	b.cfg = cfg
	b.cfgSet = true
	return b
}

// SetExperiments sets the experiment override snapshot consulted at
// Build and ApplyConfig time.
func (b *Builder) SetExperiments(overrides experiments.Snapshot) *Builder {
	b.overrides = overrides
	return b
}

// SetEchoControllerFactory injects the echo controller implementation
// used whenever the echo canceller is enabled.
func (b *Builder) SetEchoControllerFactory(factory dsp.EchoControllerFactory) *Builder {
	b.echoFactory = factory
	return b
}

// SetEchoDetector injects the residual echo detector.
func (b *Builder) SetEchoDetector(detector dsp.EchoDetector) *Builder {
	b.echoDetector = detector
	return b
}

// SetRenderPreProcessing injects a processor that transforms every
// render frame before any echo analysis observes it.
func (b *Builder) SetRenderPreProcessing(p dsp.CustomProcessing) *Builder {
	b.renderPre = p
	return b
}

// SetCapturePostProcessing injects a processor that runs at the very end
// of the capture chain.
func (b *Builder) SetCapturePostProcessing(p dsp.CustomProcessing) *Builder {
	b.capturePost = p
	return b
}

// SetRuntimeSettingQueueCapacity overrides the runtime setting queue
// capacity. Intended for tests.
func (b *Builder) SetRuntimeSettingQueueCapacity(capacity int) *Builder {
	b.queueCapacity = capacity
	return b
}

// Build creates the processor. Submodules are constructed lazily on the
// first processed frame or on the first explicit Initialize call.
func (b *Builder) Build() (*AudioProcessor, error) {
	cfg := b.cfg
	if !b.cfgSet {
		cfg = config.Default()
	}
	adjusted := config.Adjust(cfg, b.overrides)

	echoFactory := b.echoFactory
	if echoFactory == nil {
		echoFactory = &dsp.DefaultEchoControllerFactory{MobileMode: adjusted.EchoCanceller.MobileMode}
	}
	detector := b.echoDetector
	if detector == nil {
		detector = dsp.NewLevelEchoDetector()
	}

	logrus.WithFields(logrus.Fields{
		"function":          "Builder.Build",
		"queue_capacity":    b.queueCapacity,
		"echo_injected":     b.echoFactory != nil,
		"detector_injected": b.echoDetector != nil,
		"render_pre":        b.renderPre != nil,
		"capture_post":      b.capturePost != nil,
	}).Info("Building audio processor")

	return newAudioProcessor(adjusted, b.overrides, echoFactory, detector,
		b.renderPre, b.capturePost, b.queueCapacity), nil
}

// New creates a processor with the default configuration and built-in
// submodules.
func New() (*AudioProcessor, error) {
	return NewBuilder().Build()
}
