package dsp

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceproc/frame"
)

// DefaultEchoControllerFactory builds EnergyEchoController instances for
// each negotiated format. Embedders with a real canceller inject their
// own factory instead.
type DefaultEchoControllerFactory struct {
	// MobileMode selects a more aggressive suppression curve.
	MobileMode bool
}

// Create builds a controller for the negotiated format.
func (f *DefaultEchoControllerFactory) Create(sampleRateHz, numRenderChannels, numCaptureChannels int) EchoController {
	logrus.WithFields(logrus.Fields{
		"function":             "DefaultEchoControllerFactory.Create",
		"sample_rate":          sampleRateHz,
		"num_render_channels":  numRenderChannels,
		"num_capture_channels": numCaptureChannels,
		"mobile_mode":          f.MobileMode,
	}).Info("Creating default echo controller")
	suppression := 0.5
	if f.MobileMode {
		suppression = 0.25
	}
	return &EnergyEchoController{suppression: suppression}
}

// EnergyEchoController is the built-in echo controller: a render-energy
// gated attenuator. When the render side is loud relative to the capture
// side, the capture frame is attenuated. It is deterministic and cheap;
// it does no adaptive filtering.
type EnergyEchoController struct {
	suppression float64

	renderLevel       float64
	captureLevel      float64
	captureOutputUsed bool
	initialized       bool
}

// AnalyzeRender tracks the smoothed render level.
func (e *EnergyEchoController) AnalyzeRender(buf *frame.Buffer) {
	level := bufferRMS(buf)
	e.renderLevel += 0.3 * (level - e.renderLevel)
}

// AnalyzeCapture tracks the smoothed capture level before suppression.
func (e *EnergyEchoController) AnalyzeCapture(buf *frame.Buffer) {
	level := bufferRMS(buf)
	e.captureLevel += 0.3 * (level - e.captureLevel)
}

// ProcessCapture attenuates probable echo. An echo path change discards
// the tracked levels, mirroring how an adaptive canceller would drop its
// filter state.
func (e *EnergyEchoController) ProcessCapture(buf *frame.Buffer, level int, echoPathChange bool) {
	if echoPathChange {
		logrus.WithFields(logrus.Fields{
			"function": "EnergyEchoController.ProcessCapture",
			"level":    level,
		}).Debug("Echo path change, resetting level trackers")
		e.renderLevel = 0
		e.captureLevel = 0
		return
	}
	if !e.initialized {
		e.initialized = true
		e.captureOutputUsed = true
	}
	if !e.captureOutputUsed {
		return
	}
	// Echo dominates when the far end is much louder than the near end.
	if e.renderLevel > 100 && e.renderLevel > 2*e.captureLevel {
		g := float32(e.suppression)
		for _, samples := range buf.Channels() {
			for i := range samples {
				samples[i] *= g
			}
		}
	}
}

// SetCaptureOutputUsage pauses suppression while the capture output is
// unused.
func (e *EnergyEchoController) SetCaptureOutputUsage(used bool) {
	e.initialized = true
	e.captureOutputUsed = used
}

func bufferRMS(buf *frame.Buffer) float64 {
	var sum float64
	for _, samples := range buf.Channels() {
		sum += rms(samples)
	}
	return sum / float64(buf.NumChannels())
}

// LevelEchoDetector is the built-in echo detector: it compares smoothed
// render and capture levels and reports a likelihood that capture energy
// is render leakage.
type LevelEchoDetector struct {
	renderLevel  float64
	captureLevel float64
	likelihood   float64
	recentMax    float64
}

// NewLevelEchoDetector creates an empty detector.
func NewLevelEchoDetector() *LevelEchoDetector {
	return &LevelEchoDetector{}
}

// Initialize resets all estimates for a new format pair.
func (d *LevelEchoDetector) Initialize(captureSampleRateHz, numCaptureChannels, renderSampleRateHz, numRenderChannels int) {
	logrus.WithFields(logrus.Fields{
		"function":     "LevelEchoDetector.Initialize",
		"capture_rate": captureSampleRateHz,
		"render_rate":  renderSampleRateHz,
	}).Debug("Echo detector initialized")
	d.renderLevel = 0
	d.captureLevel = 0
	d.likelihood = 0
	d.recentMax = 0
}

// AnalyzeRenderAudio observes one channel of pre-processed render audio.
func (d *LevelEchoDetector) AnalyzeRenderAudio(samples []float32) {
	d.renderLevel += 0.3 * (rms(samples) - d.renderLevel)
}

// AnalyzeCaptureAudio observes one channel of processed capture audio
// and refreshes the likelihood estimate.
func (d *LevelEchoDetector) AnalyzeCaptureAudio(samples []float32) {
	d.captureLevel += 0.3 * (rms(samples) - d.captureLevel)
	if d.renderLevel > 1 {
		ratio := d.captureLevel / d.renderLevel
		if ratio > 1 {
			ratio = 1
		}
		d.likelihood = ratio
		if ratio > d.recentMax {
			d.recentMax = ratio
		}
	}
}

// Metrics returns the current likelihood estimates.
func (d *LevelEchoDetector) Metrics() EchoMetrics {
	return EchoMetrics{
		EchoLikelihood:          d.likelihood,
		EchoLikelihoodRecentMax: d.recentMax,
	}
}
