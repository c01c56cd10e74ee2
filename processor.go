package voiceproc

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceproc/config"
	"github.com/opd-ai/voiceproc/dsp"
	"github.com/opd-ai/voiceproc/experiments"
	"github.com/opd-ai/voiceproc/frame"
	"github.com/opd-ai/voiceproc/settings"
	"github.com/opd-ai/voiceproc/volume"
)

// noPreviousValue marks gain/level/volume trackers that have not
// observed a frame yet, so the first observation never counts as an echo
// path change.
const noPreviousValue = -1

// submodules bundles the pipeline stages the processor owns. Instances
// live for the lifetime of the current format and are destroyed and
// rebuilt on format changes and on ApplyConfig toggling, always under
// the processing lock.
type submodules struct {
	highPass    dsp.HighPassFilter
	noise       dsp.NoiseSuppressor
	transient   dsp.TransientSuppressor
	gain1       dsp.GainController1
	gain2       dsp.GainController2
	level       *dsp.LevelAdjuster
	echo        dsp.EchoController
	inputVolume volume.Strategy
}

// AudioProcessor is the pipeline coordinator. It owns all submodule
// instances, sequences them per 10ms frame, negotiates format changes,
// applies cross-thread runtime settings, and computes the recommended
// analog input volume.
//
// One exclusive lock serializes ProcessStream, ProcessReverseStream,
// ApplyConfig, GetConfig, and the volume accessors; PostRuntimeSetting
// never takes it.
type AudioProcessor struct {
	mu sync.Mutex

	cfg       config.Config
	overrides experiments.Snapshot

	echoFactory  dsp.EchoControllerFactory
	echoDetector dsp.EchoDetector
	renderPre    dsp.CustomProcessing
	capturePost  dsp.CustomProcessing

	queue *settings.Queue

	negotiator  formatNegotiator
	sub         submodules
	captureBuf  *frame.Buffer
	renderBuf   *frame.Buffer
	initialized bool

	// Capture-side trackers, mutated only under the lock.
	appliedLevel      int
	recommendedLevel  int
	prevAppliedLevel  int
	prevPreGain       float32
	playoutVolume     int
	prevPlayoutVolume int
	captureOutputUsed bool
}

func newAudioProcessor(cfg config.Config, overrides experiments.Snapshot,
	echoFactory dsp.EchoControllerFactory, detector dsp.EchoDetector,
	renderPre, capturePost dsp.CustomProcessing, queueCapacity int) *AudioProcessor {
	return &AudioProcessor{
		cfg:               cfg,
		overrides:         overrides,
		echoFactory:       echoFactory,
		echoDetector:      detector,
		renderPre:         renderPre,
		capturePost:       capturePost,
		queue:             settings.NewQueue(queueCapacity),
		prevAppliedLevel:  noPreviousValue,
		prevPreGain:       noPreviousValue,
		playoutVolume:     noPreviousValue,
		prevPlayoutVolume: noPreviousValue,
		captureOutputUsed: true,
	}
}

// Initialize builds all submodules for the default format (16kHz mono on
// both paths). Calling it is optional; the first processed frame
// initializes lazily.
func (p *AudioProcessor) Initialize() error {
	mono16k := frame.StreamConfig{SampleRateHz: frame.SampleRate16kHz, NumChannels: 1}
	return p.InitializeWithConfig(frame.ProcessingConfig{
		InputStream:         mono16k,
		OutputStream:        mono16k,
		ReverseInputStream:  mono16k,
		ReverseOutputStream: mono16k,
	})
}

// InitializeWithConfig builds all submodules for an explicit format set.
// Render frames processed after this call are never discarded for format
// reasons.
func (p *AudioProcessor) InitializeWithConfig(pc frame.ProcessingConfig) error {
	if !pc.Valid() {
		if !frame.SampleRateSupported(pc.InputStream.SampleRateHz) ||
			!frame.SampleRateSupported(pc.OutputStream.SampleRateHz) ||
			!frame.SampleRateSupported(pc.ReverseInputStream.SampleRateHz) ||
			!frame.SampleRateSupported(pc.ReverseOutputStream.SampleRateHz) {
			return ErrUnsupportedSampleRate
		}
		if pc.InputStream.NumChannels < 1 || pc.OutputStream.NumChannels < 1 ||
			pc.ReverseInputStream.NumChannels < 1 || pc.ReverseOutputStream.NumChannels < 1 {
			return ErrInvalidChannelCount
		}
		return ErrInvalidProcessingConfig
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.negotiator.reset()
	p.negotiator.record(roleCaptureInput, pc.InputStream)
	p.negotiator.record(roleCaptureOutput, pc.OutputStream)
	p.negotiator.record(roleRenderInput, pc.ReverseInputStream)
	p.negotiator.record(roleRenderOutput, pc.ReverseOutputStream)

	p.rebuildCaptureLocked()
	p.rebuildRenderLocked()
	p.rebuildEchoLocked()
	p.initialized = true

	logrus.WithFields(logrus.Fields{
		"function":       "InitializeWithConfig",
		"capture_input":  pc.InputStream.String(),
		"capture_output": pc.OutputStream.String(),
		"render_input":   pc.ReverseInputStream.String(),
		"render_output":  pc.ReverseOutputStream.String(),
	}).Info("Audio processor initialized")
	return nil
}

// ApplyConfig adjusts the requested configuration against the experiment
// snapshot and installs it, rebuilding submodules when the processor is
// already streaming. Safe to call from any thread, repeatedly, with raw
// or previously adjusted configurations.
func (p *AudioProcessor) ApplyConfig(cfg config.Config) error {
	adjusted := config.Adjust(cfg, p.overrides)

	p.mu.Lock()
	defer p.mu.Unlock()

	if adjusted.String() == p.cfg.String() {
		logrus.WithFields(logrus.Fields{
			"function": "ApplyConfig",
		}).Debug("Configuration unchanged")
		return nil
	}

	p.cfg = adjusted
	logrus.WithFields(logrus.Fields{
		"function": "ApplyConfig",
		"config":   adjusted.String(),
	}).Info("Configuration applied")

	if p.initialized {
		p.rebuildCaptureLocked()
		p.rebuildEchoLocked()
	}
	return nil
}

// GetConfig returns the effective (adjusted) configuration.
func (p *AudioProcessor) GetConfig() config.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// SetStreamAnalogLevel records the analog input volume the platform
// applied for the next capture frame. Call before each ProcessStream.
func (p *AudioProcessor) SetStreamAnalogLevel(level int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if level < 0 {
		level = 0
	}
	if level > volume.MaxVolume {
		level = volume.MaxVolume
	}
	p.appliedLevel = level
	p.recommendedLevel = level
}

// RecommendedStreamAnalogLevel returns the input volume recommended by
// the last processed capture frame. Before any frame is processed it
// returns the applied level unchanged.
func (p *AudioProcessor) RecommendedStreamAnalogLevel() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recommendedLevel
}

// SetRuntimeSetting applies a runtime setting synchronously. Legal only
// before streaming starts or from the capture processing thread itself;
// other threads must use PostRuntimeSetting.
func (p *AudioProcessor) SetRuntimeSetting(s settings.Setting) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applySettingLocked(s)
}

// PostRuntimeSetting enqueues a runtime setting for the next capture
// frame without blocking. It returns false when the queue is full; the
// setting was not accepted and the caller may retry.
func (p *AudioProcessor) PostRuntimeSetting(s settings.Setting) bool {
	return p.queue.Post(s)
}

// drainRuntimeSettingsLocked applies every queued setting in enqueue
// order. A drain of at least the queue capacity means producers saw a
// full queue and settings may have been rejected; fall back to the safe
// capture-output-used state in that case so a dropped usage notification
// cannot leave downstream consumers muted.
func (p *AudioProcessor) drainRuntimeSettingsLocked() {
	applied := p.queue.Drain(p.applySettingLocked)
	if applied >= p.queue.Capacity() {
		logrus.WithFields(logrus.Fields{
			"function": "drainRuntimeSettingsLocked",
			"applied":  applied,
		}).Warn("Runtime setting queue overrun, reapplying safe capture output usage")
		p.handleCaptureOutputUsedLocked(true)
	}
}

func (p *AudioProcessor) applySettingLocked(s settings.Setting) {
	logrus.WithFields(logrus.Fields{
		"function": "applySettingLocked",
		"kind":     s.Kind().String(),
	}).Debug("Applying runtime setting")

	switch s.Kind() {
	case settings.KindCapturePreGain:
		switch {
		case p.cfg.CaptureLevelAdjustment.Enabled:
			p.cfg.CaptureLevelAdjustment.PreGainFactor = s.Float()
			if p.sub.level != nil {
				p.sub.level.SetPreGain(s.Float())
			}
		case p.cfg.PreAmplifier.Enabled:
			p.cfg.PreAmplifier.FixedGainFactor = s.Float()
			if p.sub.level != nil {
				p.sub.level.SetPreGain(s.Float())
			}
		default:
			logrus.WithFields(logrus.Fields{
				"function": "applySettingLocked",
				"kind":     s.Kind().String(),
			}).Warn("Pre-gain setting ignored, no pre-gain stage enabled")
		}
	case settings.KindCapturePostGain:
		if p.cfg.CaptureLevelAdjustment.Enabled {
			p.cfg.CaptureLevelAdjustment.PostGainFactor = s.Float()
			if p.sub.level != nil {
				p.sub.level.SetPostGain(s.Float())
			}
		} else {
			logrus.WithFields(logrus.Fields{
				"function": "applySettingLocked",
				"kind":     s.Kind().String(),
			}).Warn("Post-gain setting ignored, capture level adjustment disabled")
		}
	case settings.KindCaptureOutputUsed:
		p.handleCaptureOutputUsedLocked(s.Bool())
	case settings.KindPlayoutVolumeChange:
		p.playoutVolume = s.Int()
	}

	if p.renderPre != nil {
		p.renderPre.HandleRuntimeSetting(s)
	}
	if p.capturePost != nil {
		p.capturePost.HandleRuntimeSetting(s)
	}
}

// handleCaptureOutputUsedLocked notifies every consumer of the usage
// state, once per applied setting.
func (p *AudioProcessor) handleCaptureOutputUsedLocked(used bool) {
	p.captureOutputUsed = used
	if p.sub.echo != nil {
		p.sub.echo.SetCaptureOutputUsage(used)
	}
	if p.sub.inputVolume != nil {
		p.sub.inputVolume.HandleCaptureOutputUsedChange(used)
	}
}

// effectivePreGain is the gain the caller currently requests ahead of
// the capture chain, from whichever pre-gain stage is enabled. Tracked
// across frames for echo path change detection.
func (p *AudioProcessor) effectivePreGain() float32 {
	if p.cfg.CaptureLevelAdjustment.Enabled {
		return p.cfg.CaptureLevelAdjustment.PreGainFactor
	}
	if p.cfg.PreAmplifier.Enabled {
		return p.cfg.PreAmplifier.FixedGainFactor
	}
	return 1.0
}

// rebuildCaptureLocked destroys and reconstructs the capture-side
// submodules for the current capture format and configuration. Only ever
// invoked from within the processor's locked region.
func (p *AudioProcessor) rebuildCaptureLocked() {
	in := p.negotiator.formats[roleCaptureInput]
	rate := in.SampleRateHz
	channels := in.NumChannels

	p.captureBuf = frame.NewBuffer(in)

	if p.cfg.HighPassFilter.Enabled {
		p.sub.highPass = dsp.NewBiquadHighPass()
		p.sub.highPass.Initialize(rate, channels)
	} else {
		p.sub.highPass = nil
	}

	if p.cfg.NoiseSuppression.Enabled {
		p.sub.noise = dsp.NewNoiseFloorSuppressor(dsp.SuppressionLevel(p.cfg.NoiseSuppression.Level))
		p.sub.noise.Initialize(rate, channels)
	} else {
		p.sub.noise = nil
	}

	if p.cfg.TransientSuppression.Enabled {
		p.sub.transient = dsp.NewTransientGate()
		p.sub.transient.Initialize(rate, channels)
	} else {
		p.sub.transient = nil
	}

	if p.cfg.GainController1.Enabled {
		p.sub.gain1 = dsp.NewAgc1Compressor(
			p.cfg.GainController1.TargetLevelDBFS,
			p.cfg.GainController1.CompressionGainDB,
			p.cfg.GainController1.EnableLimiter)
		p.sub.gain1.Initialize(rate, channels)
	} else {
		p.sub.gain1 = nil
	}

	if p.cfg.GainController2.Enabled {
		p.sub.gain2 = dsp.NewAgc2DigitalGain(dsp.Agc2Config{
			FixedGainDB:      p.cfg.GainController2.FixedDigital.GainDB,
			AdaptiveEnabled:  p.cfg.GainController2.AdaptiveDigital.Enabled,
			HeadroomDB:       p.cfg.GainController2.AdaptiveDigital.HeadroomDB,
			MaxGainDB:        p.cfg.GainController2.AdaptiveDigital.MaxGainDB,
			MaxGainChangeDBS: p.cfg.GainController2.AdaptiveDigital.MaxGainChangeDBS,
		})
		p.sub.gain2.Initialize(rate, channels)
	} else {
		p.sub.gain2 = nil
	}

	switch {
	case p.cfg.CaptureLevelAdjustment.Enabled:
		p.sub.level = dsp.NewLevelAdjuster(
			p.cfg.CaptureLevelAdjustment.PreGainFactor,
			p.cfg.CaptureLevelAdjustment.PostGainFactor,
			p.cfg.CaptureLevelAdjustment.AnalogMicGainEmulation.Enabled,
			p.cfg.CaptureLevelAdjustment.AnalogMicGainEmulation.InitialLevel)
	case p.cfg.PreAmplifier.Enabled:
		p.sub.level = dsp.NewLevelAdjuster(p.cfg.PreAmplifier.FixedGainFactor, 1.0, false, 0)
	default:
		p.sub.level = nil
	}

	p.sub.inputVolume = p.buildInputVolumeControllerLocked(channels)
	if p.sub.inputVolume != nil {
		// The usage state was consumed from the settings queue exactly
		// once; a rebuilt controller must not resume adaptation on its
		// own.
		p.sub.inputVolume.HandleCaptureOutputUsedChange(p.captureOutputUsed)
	}

	if p.capturePost != nil {
		p.capturePost.Initialize(rate, channels)
	}

	// Fresh submodules carry no history; the next frame must not read a
	// stale gain or level as an echo path change.
	p.prevPreGain = noPreviousValue
	p.prevAppliedLevel = noPreviousValue

	logrus.WithFields(logrus.Fields{
		"function":     "rebuildCaptureLocked",
		"sample_rate":  rate,
		"num_channels": channels,
	}).Info("Capture submodules rebuilt")
}

// buildInputVolumeControllerLocked picks the analog volume owner per the
// adjusted configuration, or returns nil when nothing owns the analog
// channel.
func (p *AudioProcessor) buildInputVolumeControllerLocked(channels int) volume.Strategy {
	minVol := volume.ResolveMinInputVolume(p.overrides)
	agc := p.cfg.GainController1.AnalogGainController
	if p.cfg.GainController1.Enabled && agc.Enabled {
		return volume.NewAgc1AnalogController(channels, volume.Config{
			StartupMinVolume: agc.StartupMinVolume,
			ClippedLevelMin:  agc.ClippedLevelMin,
			MinInputVolume:   minVol,
		})
	}
	if p.cfg.GainController2.Enabled && p.cfg.GainController2.InputVolumeController.Enabled {
		return volume.NewAgc2InputVolumeController(channels, volume.Config{
			MinInputVolume: minVol,
		})
	}
	return nil
}

// rebuildRenderLocked reconstructs the render-side state for the current
// render format. Capture-only submodules are untouched.
func (p *AudioProcessor) rebuildRenderLocked() {
	in := p.negotiator.formats[roleRenderInput]
	p.renderBuf = frame.NewBuffer(in)
	if p.renderPre != nil {
		p.renderPre.Initialize(in.SampleRateHz, in.NumChannels)
	}
	logrus.WithFields(logrus.Fields{
		"function":     "rebuildRenderLocked",
		"sample_rate":  in.SampleRateHz,
		"num_channels": in.NumChannels,
	}).Info("Render submodules rebuilt")
}

// rebuildEchoLocked reconstructs the echo controller and detector, both
// of which span the capture and render formats.
func (p *AudioProcessor) rebuildEchoLocked() {
	capture := p.negotiator.formats[roleCaptureInput]
	render := p.negotiator.formats[roleRenderInput]

	if p.cfg.EchoCanceller.Enabled {
		p.sub.echo = p.echoFactory.Create(capture.SampleRateHz, render.NumChannels, capture.NumChannels)
		p.sub.echo.SetCaptureOutputUsage(p.captureOutputUsed)
	} else {
		p.sub.echo = nil
	}

	p.echoDetector.Initialize(capture.SampleRateHz, capture.NumChannels,
		render.SampleRateHz, render.NumChannels)
}
