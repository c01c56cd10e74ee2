package voiceproc

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceproc/frame"
)

// validateStreamCall checks one processing call's formats and slices.
// The pipeline does not resample, so input and output rates must match;
// it never invents channels, so the output may not be wider than the
// input.
func validateStreamCall(src [][]float32, inputCfg, outputCfg frame.StreamConfig, dest [][]float32) error {
	if src == nil || dest == nil {
		return ErrNilBuffer
	}
	if !frame.SampleRateSupported(inputCfg.SampleRateHz) ||
		!frame.SampleRateSupported(outputCfg.SampleRateHz) {
		return ErrUnsupportedSampleRate
	}
	if inputCfg.NumChannels < 1 || outputCfg.NumChannels < 1 {
		return ErrInvalidChannelCount
	}
	if outputCfg.NumChannels > inputCfg.NumChannels ||
		outputCfg.SampleRateHz != inputCfg.SampleRateHz {
		return ErrInvalidProcessingConfig
	}
	if len(src) < inputCfg.NumChannels || len(dest) < outputCfg.NumChannels {
		return ErrInvalidChannelCount
	}
	for i := 0; i < inputCfg.NumChannels; i++ {
		if len(src[i]) < inputCfg.SamplesPerChannel() {
			return ErrShortBuffer
		}
	}
	for i := 0; i < outputCfg.NumChannels; i++ {
		if len(dest[i]) < outputCfg.SamplesPerChannel() {
			return ErrShortBuffer
		}
	}
	return nil
}

// ensureInitializedLocked performs the lazy first-frame initialization:
// roles not yet negotiated default to 16kHz mono until their first frame
// arrives.
func (p *AudioProcessor) ensureInitializedLocked() {
	if p.initialized {
		return
	}
	mono16k := frame.StreamConfig{SampleRateHz: frame.SampleRate16kHz, NumChannels: 1}
	for role := streamRole(0); role < numStreamRoles; role++ {
		if !p.negotiator.seen[role] {
			p.negotiator.record(role, mono16k)
		}
	}
	p.rebuildCaptureLocked()
	p.rebuildRenderLocked()
	p.rebuildEchoLocked()
	p.initialized = true
	logrus.WithFields(logrus.Fields{
		"function": "ensureInitializedLocked",
	}).Info("Audio processor lazily initialized")
}

// ProcessStream conditions one 10ms capture frame. src and dest are
// caller-owned deinterleaved sample slices; processing happens in an
// internal buffer, so src and dest may alias. On a format error the
// pipeline state is unchanged and dest is not written.
func (p *AudioProcessor) ProcessStream(src [][]float32, inputCfg, outputCfg frame.StreamConfig, dest [][]float32) error {
	if err := validateStreamCall(src, inputCfg, outputCfg, dest); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ProcessStream",
			"input":    inputCfg.String(),
			"output":   outputCfg.String(),
			"error":    err,
		}).Error("Rejecting capture frame")
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.negotiator.needsReinit(roleCaptureInput, inputCfg) ||
		p.negotiator.needsReinit(roleCaptureOutput, outputCfg) {
		p.negotiator.record(roleCaptureInput, inputCfg)
		p.negotiator.record(roleCaptureOutput, outputCfg)
		if p.initialized {
			p.rebuildCaptureLocked()
			p.rebuildEchoLocked()
		}
	}
	p.ensureInitializedLocked()

	// Settings posted since the previous frame take effect now, before
	// any sample of this frame is touched.
	p.drainRuntimeSettingsLocked()

	if err := p.captureBuf.CopyFrom(src); err != nil {
		return ErrShortBuffer
	}

	p.processCaptureLocked()

	if err := p.captureBuf.CopyTo(dest[:outputCfg.NumChannels]); err != nil {
		return ErrShortBuffer
	}
	p.echoDetector.AnalyzeCaptureAudio(p.captureBuf.Channel(0))
	return nil
}

// processCaptureLocked runs the fixed capture chain on the frame already
// copied into captureBuf.
func (p *AudioProcessor) processCaptureLocked() {
	buf := p.captureBuf

	// The volume the gain path actually reacts to: the emulated level
	// when the analog microphone gain is emulated in software, the
	// platform-applied level otherwise.
	effectiveLevel := p.appliedLevel
	emulating := p.sub.level != nil && p.sub.level.EmulationEnabled()
	if emulating {
		effectiveLevel = p.sub.level.EmulatedLevel()
	}

	if p.sub.inputVolume != nil {
		p.sub.inputVolume.SetAppliedInputVolume(effectiveLevel)
		p.sub.inputVolume.AnalyzePreProcess(buf.Channels())
	}

	echoPathChange := p.detectEchoPathChangeLocked(effectiveLevel)

	if p.sub.highPass != nil {
		p.sub.highPass.Process(buf)
	}
	if p.sub.level != nil {
		p.sub.level.ApplyPreGain(buf)
	}
	if p.sub.echo != nil {
		p.sub.echo.AnalyzeCapture(buf)
	}
	if p.sub.noise != nil {
		p.sub.noise.Analyze(buf)
		p.sub.noise.Process(buf)
	}
	if p.sub.echo != nil {
		p.sub.echo.ProcessCapture(buf, effectiveLevel, echoPathChange)
	}
	if p.sub.gain1 != nil {
		p.sub.gain1.Analyze(buf)
		p.sub.gain1.Process(buf)
	}

	speechProbability := float32(0)
	speechLevelDBFS := float32(-90)
	if p.sub.gain2 != nil {
		p.sub.gain2.Process(buf)
		speechProbability = p.sub.gain2.SpeechProbability()
		speechLevelDBFS = p.sub.gain2.SpeechLevelDBFS()
	}

	if p.sub.inputVolume != nil {
		p.sub.inputVolume.Process(speechProbability, speechLevelDBFS)
	}

	if p.sub.transient != nil {
		p.sub.transient.Process(buf)
	}
	if p.sub.level != nil {
		p.sub.level.ApplyPostGain(buf)
	}
	if p.capturePost != nil {
		p.capturePost.Process(buf)
	}

	p.updateRecommendedLevelLocked(emulating)
}

// detectEchoPathChangeLocked reports whether the acoustic or gain path
// changed since the previous frame. The first observation of any tracked
// quantity never counts as a change.
func (p *AudioProcessor) detectEchoPathChangeLocked(effectiveLevel int) bool {
	change := false

	preGain := p.effectivePreGain()
	if p.prevPreGain >= 0 && preGain != p.prevPreGain {
		change = true
	}
	p.prevPreGain = preGain

	if p.prevAppliedLevel >= 0 && effectiveLevel != p.prevAppliedLevel {
		change = true
	}
	p.prevAppliedLevel = effectiveLevel

	if p.playoutVolume != p.prevPlayoutVolume {
		if p.prevPlayoutVolume != noPreviousValue {
			change = true
		}
		p.prevPlayoutVolume = p.playoutVolume
	}

	if change {
		logrus.WithFields(logrus.Fields{
			"function":       "detectEchoPathChangeLocked",
			"pre_gain":       preGain,
			"applied_level":  effectiveLevel,
			"playout_volume": p.playoutVolume,
		}).Debug("Echo path change detected")
	}
	return change
}

// updateRecommendedLevelLocked publishes the volume recommendation for
// this frame. Without an analog owner the applied volume passes through;
// under emulation the recommendation drives only the internal emulated
// level and the caller sees its own applied volume back.
func (p *AudioProcessor) updateRecommendedLevelLocked(emulating bool) {
	switch {
	case p.sub.inputVolume == nil:
		p.recommendedLevel = p.appliedLevel
	case emulating:
		p.sub.level.SetEmulatedLevel(p.sub.inputVolume.RecommendedInputVolume())
		p.recommendedLevel = p.appliedLevel
	default:
		p.recommendedLevel = p.sub.inputVolume.RecommendedInputVolume()
	}
}

// ProcessReverseStream analyzes (and optionally pre-processes) one 10ms
// render frame. The injected render pre-processor runs before any echo
// analysis observes the samples, so the echo reference matches what is
// actually played out.
func (p *AudioProcessor) ProcessReverseStream(src [][]float32, inputCfg, outputCfg frame.StreamConfig, dest [][]float32) error {
	if err := validateStreamCall(src, inputCfg, outputCfg, dest); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ProcessReverseStream",
			"input":    inputCfg.String(),
			"output":   outputCfg.String(),
			"error":    err,
		}).Error("Rejecting render frame")
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.negotiator.needsReinit(roleRenderInput, inputCfg) ||
		p.negotiator.needsReinit(roleRenderOutput, outputCfg) {
		p.negotiator.record(roleRenderInput, inputCfg)
		p.negotiator.record(roleRenderOutput, outputCfg)
		if p.initialized {
			p.rebuildRenderLocked()
			p.rebuildEchoLocked()
		}
	}
	p.ensureInitializedLocked()

	if err := p.renderBuf.CopyFrom(src); err != nil {
		return ErrShortBuffer
	}

	if p.renderPre != nil {
		p.renderPre.Process(p.renderBuf)
	}
	p.echoDetector.AnalyzeRenderAudio(p.renderBuf.Channel(0))
	if p.sub.echo != nil {
		p.sub.echo.AnalyzeRender(p.renderBuf)
	}

	return p.renderBuf.CopyTo(dest[:outputCfg.NumChannels])
}

// EchoMetrics returns the echo detector's current estimates.
func (p *AudioProcessor) EchoMetrics() (likelihood, recentMax float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.echoDetector.Metrics()
	return m.EchoLikelihood, m.EchoLikelihoodRecentMax
}
