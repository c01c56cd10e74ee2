package voiceproc

import (
	"github.com/opd-ai/voiceproc/dsp"
	"github.com/opd-ai/voiceproc/frame"
	"github.com/opd-ai/voiceproc/settings"
)

// mockEchoController records every call the pipeline makes to the echo
// controller.
type mockEchoController struct {
	renderFrames    int
	captureFrames   int
	processedFrames int
	pathChanges     []bool
	levels          []int
	usageCalls      []bool
}

func (m *mockEchoController) AnalyzeRender(buf *frame.Buffer)  { m.renderFrames++ }
func (m *mockEchoController) AnalyzeCapture(buf *frame.Buffer) { m.captureFrames++ }
func (m *mockEchoController) ProcessCapture(buf *frame.Buffer, level int, echoPathChange bool) {
	m.processedFrames++
	m.levels = append(m.levels, level)
	m.pathChanges = append(m.pathChanges, echoPathChange)
}
func (m *mockEchoController) SetCaptureOutputUsage(used bool) {
	m.usageCalls = append(m.usageCalls, used)
}

// mockEchoFactory hands out a fresh controller per Create call and keeps
// them all for inspection.
type mockEchoFactory struct {
	created []*mockEchoController
}

func (f *mockEchoFactory) Create(sampleRateHz, numRenderChannels, numCaptureChannels int) dsp.EchoController {
	c := &mockEchoController{}
	f.created = append(f.created, c)
	return c
}

func (f *mockEchoFactory) latest() *mockEchoController {
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

// mockEchoDetector snapshots the first sample of every frame it observes
// so tests can verify what audio reached it.
type mockEchoDetector struct {
	initializations int
	renderSamples   []float32
	captureSamples  []float32
}

func (m *mockEchoDetector) Initialize(captureSampleRateHz, numCaptureChannels, renderSampleRateHz, numRenderChannels int) {
	m.initializations++
}
func (m *mockEchoDetector) AnalyzeRenderAudio(samples []float32) {
	m.renderSamples = append(m.renderSamples, samples[0])
}
func (m *mockEchoDetector) AnalyzeCaptureAudio(samples []float32) {
	m.captureSamples = append(m.captureSamples, samples[0])
}
func (m *mockEchoDetector) Metrics() dsp.EchoMetrics { return dsp.EchoMetrics{} }

// doublingProcessor is a CustomProcessing that doubles every sample and
// records the runtime settings fanned out to it.
type doublingProcessor struct {
	initializations int
	frames          int
	received        []settings.Setting
}

func (d *doublingProcessor) Initialize(sampleRateHz, numChannels int) { d.initializations++ }
func (d *doublingProcessor) Process(buf *frame.Buffer) {
	d.frames++
	for _, samples := range buf.Channels() {
		for i := range samples {
			samples[i] *= 2
		}
	}
}
func (d *doublingProcessor) HandleRuntimeSetting(s settings.Setting) {
	d.received = append(d.received, s)
}

func makeFrame(cfg frame.StreamConfig, value float32) [][]float32 {
	out := make([][]float32, cfg.NumChannels)
	for ch := range out {
		out[ch] = make([]float32, cfg.SamplesPerChannel())
		for i := range out[ch] {
			out[ch][i] = value
		}
	}
	return out
}
