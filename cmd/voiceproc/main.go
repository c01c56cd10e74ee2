// Command voiceproc conditions a capture WAV file offline, optionally
// using a render WAV as the echo reference, and writes the conditioned
// output WAV. It streams the files through the pipeline in 10ms frames
// exactly the way a real-time embedder would.
package main

import (
	"errors"
	"flag"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/opd-ai/voiceproc"
	"github.com/opd-ai/voiceproc/config"
	"github.com/opd-ai/voiceproc/experiments"
	"github.com/opd-ai/voiceproc/frame"
	"github.com/opd-ai/voiceproc/volume"
)

func main() {
	inPath := flag.String("in", "", "capture WAV file to condition")
	renderPath := flag.String("render", "", "optional render WAV used as the echo reference")
	outPath := flag.String("out", "out.wav", "conditioned output WAV file")
	configPath := flag.String("config", "", "optional YAML configuration file")
	flag.Parse()

	if *inPath == "" {
		logrus.Fatal("missing -in capture WAV file")
	}

	overrides := experiments.Snapshot{}
	cfg := config.Default()
	if *configPath != "" {
		v := viper.New()
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			logrus.WithFields(logrus.Fields{
				"config": *configPath,
				"error":  err,
			}).Fatal("Failed to read configuration file")
		}
		if level, err := logrus.ParseLevel(v.GetString("log_level")); err == nil {
			logrus.SetLevel(level)
		}
		applyFileConfig(v, &cfg)
		overrides = experiments.FromViper(v)
	}

	proc, err := voiceproc.NewBuilder().
		SetConfig(cfg).
		SetExperiments(overrides).
		Build()
	if err != nil {
		logrus.WithField("error", err).Fatal("Failed to build audio processor")
	}

	capture, err := loadWAV(*inPath)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"file":  *inPath,
			"error": err,
		}).Fatal("Failed to load capture WAV")
	}

	var render *wavAudio
	if *renderPath != "" {
		render, err = loadWAV(*renderPath)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"file":  *renderPath,
				"error": err,
			}).Fatal("Failed to load render WAV")
		}
	}

	out, err := condition(proc, capture, render)
	if err != nil {
		logrus.WithField("error", err).Fatal("Processing failed")
	}

	if err := writeWAV(*outPath, out); err != nil {
		logrus.WithFields(logrus.Fields{
			"file":  *outPath,
			"error": err,
		}).Fatal("Failed to write output WAV")
	}

	logrus.WithFields(logrus.Fields{
		"input":  *inPath,
		"output": *outPath,
		"frames": len(out.channels[0]) / out.cfg.SamplesPerChannel(),
	}).Info("Conditioning complete")
}

// applyFileConfig maps the recognized configuration keys onto the
// pipeline configuration. Unset keys keep their defaults.
func applyFileConfig(v *viper.Viper, cfg *config.Config) {
	if v.IsSet("high_pass_filter") {
		cfg.HighPassFilter.Enabled = v.GetBool("high_pass_filter")
	}
	if v.IsSet("noise_suppression") {
		cfg.NoiseSuppression.Enabled = v.GetBool("noise_suppression")
	}
	if v.IsSet("noise_suppression_level") {
		switch v.GetString("noise_suppression_level") {
		case "low":
			cfg.NoiseSuppression.Level = config.NoiseSuppressionLow
		case "moderate":
			cfg.NoiseSuppression.Level = config.NoiseSuppressionModerate
		case "high":
			cfg.NoiseSuppression.Level = config.NoiseSuppressionHigh
		case "very_high":
			cfg.NoiseSuppression.Level = config.NoiseSuppressionVeryHigh
		default:
			logrus.WithField("level", v.GetString("noise_suppression_level")).
				Warn("Unknown noise suppression level, keeping default")
		}
	}
	if v.IsSet("echo_canceller") {
		cfg.EchoCanceller.Enabled = v.GetBool("echo_canceller")
	}
	if v.IsSet("echo_canceller_mobile_mode") {
		cfg.EchoCanceller.MobileMode = v.GetBool("echo_canceller_mobile_mode")
	}
	if v.IsSet("transient_suppression") {
		cfg.TransientSuppression.Enabled = v.GetBool("transient_suppression")
	}
	if v.IsSet("gain_controller1") {
		cfg.GainController1.Enabled = v.GetBool("gain_controller1")
	}
	if v.IsSet("gain_controller2") {
		cfg.GainController2.Enabled = v.GetBool("gain_controller2")
	}
}

// wavAudio holds a fully decoded WAV file as deinterleaved float32 in
// int16 full-scale encoding.
type wavAudio struct {
	cfg      frame.StreamConfig
	channels [][]float32
}

func loadWAV(path string) (*wavAudio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		if err := decoder.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("not a valid WAV file")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, err
	}

	numChans := buf.Format.NumChannels
	samples := len(buf.Data) / numChans
	channels := make([][]float32, numChans)
	for ch := range channels {
		channels[ch] = make([]float32, samples)
	}
	// 16-bit full-scale regardless of source depth.
	shift := 0
	if buf.SourceBitDepth > 16 {
		shift = buf.SourceBitDepth - 16
	}
	for i := 0; i < samples; i++ {
		for ch := 0; ch < numChans; ch++ {
			channels[ch][i] = float32(buf.Data[i*numChans+ch] >> shift)
		}
	}

	logrus.WithFields(logrus.Fields{
		"file":         path,
		"sample_rate":  buf.Format.SampleRate,
		"num_channels": numChans,
		"samples":      samples,
	}).Info("Loaded WAV file")

	return &wavAudio{
		cfg:      frame.StreamConfig{SampleRateHz: buf.Format.SampleRate, NumChannels: numChans},
		channels: channels,
	}, nil
}

// condition streams the capture (and optional render) audio through the
// processor in 10ms frames, interleaving the two paths the way a duplex
// embedder would.
func condition(proc *voiceproc.AudioProcessor, capture, render *wavAudio) (*wavAudio, error) {
	if !capture.cfg.Valid() {
		return nil, voiceproc.ErrUnsupportedSampleRate
	}

	samplesPerFrame := capture.cfg.SamplesPerChannel()
	totalFrames := len(capture.channels[0]) / samplesPerFrame

	out := &wavAudio{cfg: capture.cfg, channels: make([][]float32, capture.cfg.NumChannels)}
	for ch := range out.channels {
		out.channels[ch] = make([]float32, totalFrames*samplesPerFrame)
	}

	var renderFrames int
	var renderSamplesPerFrame int
	var renderScratch [][]float32
	if render != nil {
		renderSamplesPerFrame = render.cfg.SamplesPerChannel()
		renderFrames = len(render.channels[0]) / renderSamplesPerFrame
		renderScratch = make([][]float32, render.cfg.NumChannels)
		for ch := range renderScratch {
			renderScratch[ch] = make([]float32, renderSamplesPerFrame)
		}
	}

	applied := volume.MaxVolume
	src := make([][]float32, capture.cfg.NumChannels)
	dst := make([][]float32, capture.cfg.NumChannels)

	for n := 0; n < totalFrames; n++ {
		if render != nil && n < renderFrames {
			renderFrame := make([][]float32, render.cfg.NumChannels)
			for ch := range renderFrame {
				lo := n * renderSamplesPerFrame
				renderFrame[ch] = render.channels[ch][lo : lo+renderSamplesPerFrame]
			}
			if err := proc.ProcessReverseStream(renderFrame, render.cfg, render.cfg, renderScratch); err != nil {
				return nil, err
			}
		}

		lo := n * samplesPerFrame
		for ch := range src {
			src[ch] = capture.channels[ch][lo : lo+samplesPerFrame]
			dst[ch] = out.channels[ch][lo : lo+samplesPerFrame]
		}
		proc.SetStreamAnalogLevel(applied)
		if err := proc.ProcessStream(src, capture.cfg, capture.cfg, dst); err != nil {
			return nil, err
		}
		applied = proc.RecommendedStreamAnalogLevel()
	}

	return out, nil
}

func writeWAV(path string, a *wavAudio) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := wav.NewEncoder(f, a.cfg.SampleRateHz, 16, a.cfg.NumChannels, 1)
	numChans := a.cfg.NumChannels
	samples := len(a.channels[0])
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: numChans, SampleRate: a.cfg.SampleRateHz},
		Data:           make([]int, samples*numChans),
		SourceBitDepth: 16,
	}
	for i := 0; i < samples; i++ {
		for ch := 0; ch < numChans; ch++ {
			v := a.channels[ch][i]
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			buf.Data[i*numChans+ch] = int(v)
		}
	}
	if err := encoder.Write(buf); err != nil {
		encoder.Close()
		return err
	}
	return encoder.Close()
}
