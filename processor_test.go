package voiceproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/voiceproc/config"
	"github.com/opd-ai/voiceproc/frame"
	"github.com/opd-ai/voiceproc/settings"
)

var (
	mono16k = frame.StreamConfig{SampleRateHz: 16000, NumChannels: 1}
	mono48k = frame.StreamConfig{SampleRateHz: 48000, NumChannels: 1}
)

func echoEnabledConfig() config.Config {
	cfg := config.Default()
	cfg.EchoCanceller.Enabled = true
	return cfg
}

func TestProcessStreamPassthroughWithDefaultConfig(t *testing.T) {
	proc, err := New()
	require.NoError(t, err)

	src := makeFrame(mono16k, 1000)
	dst := makeFrame(mono16k, 0)

	// No analog owner: every applied volume passes through untouched.
	for _, applied := range []int{0, 59, 123, 135} {
		proc.SetStreamAnalogLevel(applied)
		require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))
		assert.Equal(t, applied, proc.RecommendedStreamAnalogLevel())
	}

	for i, s := range dst[0] {
		require.Equalf(t, float32(1000), s, "sample %d modified with all stages disabled", i)
	}
}

func TestFormatChangeRebuildsEchoController(t *testing.T) {
	factory := &mockEchoFactory{}
	proc, err := NewBuilder().
		SetConfig(echoEnabledConfig()).
		SetEchoControllerFactory(factory).
		Build()
	require.NoError(t, err)

	require.NoError(t, proc.ProcessStream(makeFrame(mono16k, 0), mono16k, mono16k, makeFrame(mono16k, 0)))
	require.Len(t, factory.created, 1, "lazy initialization should create one controller")

	// Same format: no rebuild.
	require.NoError(t, proc.ProcessStream(makeFrame(mono16k, 0), mono16k, mono16k, makeFrame(mono16k, 0)))
	assert.Len(t, factory.created, 1)

	// New capture format: rebuild before the triggering frame.
	require.NoError(t, proc.ProcessStream(makeFrame(mono48k, 0), mono48k, mono48k, makeFrame(mono48k, 0)))
	require.Len(t, factory.created, 2)
	assert.Equal(t, 1, factory.latest().processedFrames,
		"the triggering frame must be processed by the new controller")
}

func TestFormatChangesRebuildOnlyTheirSide(t *testing.T) {
	renderPre := &doublingProcessor{}
	capturePost := &doublingProcessor{}
	proc, err := NewBuilder().
		SetConfig(config.Default()).
		SetRenderPreProcessing(renderPre).
		SetCapturePostProcessing(capturePost).
		Build()
	require.NoError(t, err)

	require.NoError(t, proc.ProcessStream(makeFrame(mono16k, 0), mono16k, mono16k, makeFrame(mono16k, 0)))
	require.NoError(t, proc.ProcessReverseStream(makeFrame(mono16k, 0), mono16k, mono16k, makeFrame(mono16k, 0)))
	captureInits := capturePost.initializations
	renderInits := renderPre.initializations

	// A render format change must not rebuild capture submodules.
	require.NoError(t, proc.ProcessReverseStream(makeFrame(mono48k, 0), mono48k, mono48k, makeFrame(mono48k, 0)))
	assert.Equal(t, captureInits, capturePost.initializations)
	assert.Equal(t, renderInits+1, renderPre.initializations)

	// And a capture format change must not rebuild render submodules.
	require.NoError(t, proc.ProcessStream(makeFrame(mono48k, 0), mono48k, mono48k, makeFrame(mono48k, 0)))
	assert.Equal(t, captureInits+1, capturePost.initializations)
	assert.Equal(t, renderInits+1, renderPre.initializations)
}

func TestEchoPathChangeOnPreGainChange(t *testing.T) {
	factory := &mockEchoFactory{}
	cfg := echoEnabledConfig()
	cfg.PreAmplifier.Enabled = true
	proc, err := NewBuilder().
		SetConfig(cfg).
		SetEchoControllerFactory(factory).
		Build()
	require.NoError(t, err)

	src := makeFrame(mono16k, 100)
	dst := makeFrame(mono16k, 0)

	// First frame never reports a change.
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))
	// Unchanged gain: still no change.
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))

	require.True(t, proc.PostRuntimeSetting(settings.CapturePreGain(2.0)))
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))

	// And the change flag is an edge, not a level.
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))

	ctrl := factory.latest()
	require.Equal(t, []bool{false, false, true, false}, ctrl.pathChanges)
}

func TestEchoPathChangeOnAnalogLevelChange(t *testing.T) {
	factory := &mockEchoFactory{}
	proc, err := NewBuilder().
		SetConfig(echoEnabledConfig()).
		SetEchoControllerFactory(factory).
		Build()
	require.NoError(t, err)

	src := makeFrame(mono16k, 100)
	dst := makeFrame(mono16k, 0)

	proc.SetStreamAnalogLevel(100)
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))
	proc.SetStreamAnalogLevel(100)
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))
	proc.SetStreamAnalogLevel(150)
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))

	ctrl := factory.latest()
	require.Equal(t, []bool{false, false, true}, ctrl.pathChanges)
	assert.Equal(t, []int{100, 100, 150}, ctrl.levels)
}

func TestPlayoutVolumeFirstObservationIsNotAPathChange(t *testing.T) {
	factory := &mockEchoFactory{}
	proc, err := NewBuilder().
		SetConfig(echoEnabledConfig()).
		SetEchoControllerFactory(factory).
		Build()
	require.NoError(t, err)

	src := makeFrame(mono16k, 100)
	dst := makeFrame(mono16k, 0)

	require.True(t, proc.PostRuntimeSetting(settings.PlayoutVolumeChange(100)))
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))

	require.True(t, proc.PostRuntimeSetting(settings.PlayoutVolumeChange(150)))
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))

	// Re-reporting the same volume is not a change.
	require.True(t, proc.PostRuntimeSetting(settings.PlayoutVolumeChange(150)))
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))

	ctrl := factory.latest()
	require.Equal(t, []bool{false, true, false}, ctrl.pathChanges)
}

func TestCaptureOutputUsagePropagates(t *testing.T) {
	factory := &mockEchoFactory{}
	proc, err := NewBuilder().
		SetConfig(echoEnabledConfig()).
		SetEchoControllerFactory(factory).
		Build()
	require.NoError(t, err)

	src := makeFrame(mono16k, 100)
	dst := makeFrame(mono16k, 0)
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))

	require.True(t, proc.PostRuntimeSetting(settings.CaptureOutputUsed(false)))
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))

	ctrl := factory.latest()
	require.NotEmpty(t, ctrl.usageCalls)
	assert.False(t, ctrl.usageCalls[len(ctrl.usageCalls)-1])
}

func TestQueueOverrunReappliesSafeUsageState(t *testing.T) {
	factory := &mockEchoFactory{}
	proc, err := NewBuilder().
		SetConfig(echoEnabledConfig()).
		SetEchoControllerFactory(factory).
		SetRuntimeSettingQueueCapacity(4).
		Build()
	require.NoError(t, err)

	src := makeFrame(mono16k, 100)
	dst := makeFrame(mono16k, 0)
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))

	// Fill the queue completely; a producer observing a full queue may
	// have had a usage notification rejected.
	for i := 0; i < 4; i++ {
		require.True(t, proc.PostRuntimeSetting(settings.CaptureOutputUsed(false)))
	}
	require.False(t, proc.PostRuntimeSetting(settings.CaptureOutputUsed(true)),
		"fifth post must be rejected at capacity")

	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))

	// The drain applied the four stored settings, then fell back to the
	// safe used=true state.
	ctrl := factory.latest()
	require.NotEmpty(t, ctrl.usageCalls)
	assert.True(t, ctrl.usageCalls[len(ctrl.usageCalls)-1])
}

func TestRenderPreProcessingRunsBeforeEchoAnalysis(t *testing.T) {
	detector := &mockEchoDetector{}
	proc, err := NewBuilder().
		SetConfig(config.Default()).
		SetEchoDetector(detector).
		SetRenderPreProcessing(&doublingProcessor{}).
		Build()
	require.NoError(t, err)

	src := makeFrame(mono16k, 1000)
	dst := makeFrame(mono16k, 0)
	require.NoError(t, proc.ProcessReverseStream(src, mono16k, mono16k, dst))

	require.Len(t, detector.renderSamples, 1)
	assert.Equal(t, float32(2000), detector.renderSamples[0],
		"the detector must observe the pre-processed render signal")
	assert.Equal(t, float32(2000), dst[0][0])
}

func TestCapturePostProcessingFeedsDetector(t *testing.T) {
	detector := &mockEchoDetector{}
	proc, err := NewBuilder().
		SetConfig(config.Default()).
		SetEchoDetector(detector).
		SetCapturePostProcessing(&doublingProcessor{}).
		Build()
	require.NoError(t, err)

	src := makeFrame(mono16k, 1000)
	dst := makeFrame(mono16k, 0)
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))

	assert.Equal(t, float32(2000), dst[0][0])
	require.Len(t, detector.captureSamples, 1)
	assert.Equal(t, float32(2000), detector.captureSamples[0],
		"the detector must observe the fully processed capture signal")
}

func TestRuntimeSettingsFanOutToCustomProcessing(t *testing.T) {
	renderPre := &doublingProcessor{}
	capturePost := &doublingProcessor{}
	proc, err := NewBuilder().
		SetConfig(config.Default()).
		SetRenderPreProcessing(renderPre).
		SetCapturePostProcessing(capturePost).
		Build()
	require.NoError(t, err)

	require.True(t, proc.PostRuntimeSetting(settings.PlayoutVolumeChange(42)))
	require.NoError(t, proc.ProcessStream(makeFrame(mono16k, 0), mono16k, mono16k, makeFrame(mono16k, 0)))

	require.Len(t, renderPre.received, 1)
	require.Len(t, capturePost.received, 1)
	assert.Equal(t, settings.KindPlayoutVolumeChange, renderPre.received[0].Kind())
	assert.Equal(t, 42, capturePost.received[0].Int())
}

func TestSynchronousRuntimeSettingBeforeStreaming(t *testing.T) {
	cfg := config.Default()
	cfg.PreAmplifier.Enabled = true
	proc, err := NewBuilder().SetConfig(cfg).Build()
	require.NoError(t, err)

	proc.SetRuntimeSetting(settings.CapturePreGain(2.0))
	assert.Equal(t, float32(2.0), proc.GetConfig().PreAmplifier.FixedGainFactor)

	src := makeFrame(mono16k, 1000)
	dst := makeFrame(mono16k, 0)
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))
	assert.Equal(t, float32(2000), dst[0][0])
}

func TestApplyConfigResolvesAnalogOwnership(t *testing.T) {
	proc, err := New()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.GainController1.Enabled = true
	cfg.GainController2.Enabled = true
	cfg.GainController2.InputVolumeController.Enabled = true
	require.NoError(t, proc.ApplyConfig(cfg))

	effective := proc.GetConfig()
	assert.False(t, effective.GainController1.Enabled)
	assert.True(t, effective.GainController2.Enabled)
	assert.True(t, effective.GainController2.InputVolumeController.Enabled)
}

func TestApplyConfigWhileStreaming(t *testing.T) {
	proc, err := New()
	require.NoError(t, err)

	src := makeFrame(mono16k, 1000)
	dst := makeFrame(mono16k, 0)
	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))

	cfg := config.Default()
	cfg.NoiseSuppression.Enabled = true
	cfg.HighPassFilter.Enabled = true
	require.NoError(t, proc.ApplyConfig(cfg))

	require.NoError(t, proc.ProcessStream(src, mono16k, mono16k, dst))
}

func TestCaptureOutputUsageSurvivesCaptureRebuild(t *testing.T) {
	cfg := config.Default()
	cfg.GainController1.Enabled = true
	proc, err := NewBuilder().SetConfig(cfg).Build()
	require.NoError(t, err)

	require.True(t, proc.PostRuntimeSetting(settings.CaptureOutputUsed(false)))

	// While the output is unused, a clipped frame must not lower the
	// recommendation.
	clipped16k := makeFrame(mono16k, 32767)
	proc.SetStreamAnalogLevel(200)
	require.NoError(t, proc.ProcessStream(clipped16k, mono16k, mono16k, makeFrame(mono16k, 0)))
	require.Equal(t, 200, proc.RecommendedStreamAnalogLevel())

	// A format change rebuilds the capture submodules; the rebuilt
	// volume controller must stay paused.
	clipped48k := makeFrame(mono48k, 32767)
	proc.SetStreamAnalogLevel(200)
	require.NoError(t, proc.ProcessStream(clipped48k, mono48k, mono48k, makeFrame(mono48k, 0)))
	assert.Equal(t, 200, proc.RecommendedStreamAnalogLevel(),
		"rebuilt controller resumed adaptation while the output is unused")
}

func TestRecommendedVolumeStartupRaise(t *testing.T) {
	cfg := config.Default()
	cfg.GainController1.Enabled = true
	cfg.GainController1.AnalogGainController.StartupMinVolume = 80
	proc, err := NewBuilder().SetConfig(cfg).Build()
	require.NoError(t, err)

	proc.SetStreamAnalogLevel(5)
	require.NoError(t, proc.ProcessStream(makeFrame(mono16k, 100), mono16k, mono16k, makeFrame(mono16k, 0)))
	assert.Equal(t, 80, proc.RecommendedStreamAnalogLevel())
}

func TestRecommendedVolumeZeroStaysZero(t *testing.T) {
	cfg := config.Default()
	cfg.GainController1.Enabled = true
	cfg.GainController1.AnalogGainController.StartupMinVolume = 80
	proc, err := NewBuilder().SetConfig(cfg).Build()
	require.NoError(t, err)

	proc.SetStreamAnalogLevel(0)
	require.NoError(t, proc.ProcessStream(makeFrame(mono16k, 100), mono16k, mono16k, makeFrame(mono16k, 0)))
	assert.Equal(t, 0, proc.RecommendedStreamAnalogLevel(),
		"a muted input must never be raised")
}

func TestAnalogGainEmulationHidesInternalLevel(t *testing.T) {
	cfg := config.Default()
	cfg.CaptureLevelAdjustment.Enabled = true
	cfg.CaptureLevelAdjustment.AnalogMicGainEmulation.Enabled = true
	cfg.GainController1.Enabled = true
	cfg.GainController1.AnalogGainController.StartupMinVolume = 80
	proc, err := NewBuilder().SetConfig(cfg).Build()
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		proc.SetStreamAnalogLevel(5)
		require.NoError(t, proc.ProcessStream(makeFrame(mono16k, 100), mono16k, mono16k, makeFrame(mono16k, 0)))
		require.Equal(t, 5, proc.RecommendedStreamAnalogLevel(),
			"under emulation the caller always sees its applied volume back")
	}
}

func TestEchoMetricsAccessor(t *testing.T) {
	proc, err := New()
	require.NoError(t, err)

	likelihood, recentMax := proc.EchoMetrics()
	assert.Equal(t, 0.0, likelihood)
	assert.Equal(t, 0.0, recentMax)
}

func TestInitializeWithConfigValidation(t *testing.T) {
	proc, err := New()
	require.NoError(t, err)

	tests := []struct {
		name    string
		pc      frame.ProcessingConfig
		wantErr error
	}{
		{
			name: "valid",
			pc: frame.ProcessingConfig{
				InputStream:         mono16k,
				OutputStream:        mono16k,
				ReverseInputStream:  mono16k,
				ReverseOutputStream: mono16k,
			},
			wantErr: nil,
		},
		{
			name: "unsupported rate",
			pc: frame.ProcessingConfig{
				InputStream:         frame.StreamConfig{SampleRateHz: 44100, NumChannels: 1},
				OutputStream:        mono16k,
				ReverseInputStream:  mono16k,
				ReverseOutputStream: mono16k,
			},
			wantErr: ErrUnsupportedSampleRate,
		},
		{
			name: "zero channels",
			pc: frame.ProcessingConfig{
				InputStream:         frame.StreamConfig{SampleRateHz: 16000, NumChannels: 0},
				OutputStream:        mono16k,
				ReverseInputStream:  mono16k,
				ReverseOutputStream: mono16k,
			},
			wantErr: ErrInvalidChannelCount,
		},
		{
			name: "output wider than input",
			pc: frame.ProcessingConfig{
				InputStream:         mono16k,
				OutputStream:        frame.StreamConfig{SampleRateHz: 16000, NumChannels: 2},
				ReverseInputStream:  mono16k,
				ReverseOutputStream: mono16k,
			},
			wantErr: ErrInvalidProcessingConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := proc.InitializeWithConfig(tt.pc)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
