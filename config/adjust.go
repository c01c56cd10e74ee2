package config

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceproc/experiments"
)

// Experiment names recognized by the adjustment pass.
const (
	// InputVolumeControllerExperiment migrates analog volume ownership
	// from gain controller 1 to gain controller 2's input volume
	// controller.
	InputVolumeControllerExperiment = "InputVolumeController"
)

// Adjust resolves a requested configuration plus experiment overrides
// into the effective configuration the pipeline runs with. It is a pure
// function and idempotent: adjusting an already-adjusted configuration
// with the same snapshot changes nothing, so callers may hand back either
// raw or previously adjusted configurations.
//
// Two rules are applied:
//
//  1. Analog ownership conflict: if gain controller 1's analog controller
//     and gain controller 2's input volume controller both claim the
//     analog input channel, gain controller 1 is demoted and gain
//     controller 2 becomes the sole owner. Each side's digital-adaptive
//     flags are preserved.
//
//  2. InputVolumeController experiment: when enabled and gain controller 1
//     analog is the requested owner (alone, or hybrid with gain
//     controller 2 adaptive digital), ownership migrates to gain
//     controller 2 entirely.
func Adjust(requested Config, overrides experiments.Snapshot) Config {
	adjusted := requested

	agc1AnalogRequested := adjusted.GainController1.Enabled &&
		adjusted.GainController1.AnalogGainController.Enabled

	if agc1AnalogRequested && adjusted.GainController2.InputVolumeController.Enabled {
		logrus.WithFields(logrus.Fields{
			"function": "Adjust",
			"reason":   "both analog controllers requested",
		}).Info("Demoting gain controller 1 analog ownership")
		adjusted.GainController1.Enabled = false
		adjusted.GainController1.AnalogGainController.Enabled = false
		adjusted.GainController2.Enabled = true
		return adjusted
	}

	if agc1AnalogRequested && overrides.IsEnabled(InputVolumeControllerExperiment) {
		logrus.WithFields(logrus.Fields{
			"function":   "Adjust",
			"experiment": InputVolumeControllerExperiment,
		}).Info("Migrating analog volume ownership to gain controller 2")
		adjusted.GainController1.Enabled = false
		adjusted.GainController1.AnalogGainController.Enabled = false
		adjusted.GainController2.Enabled = true
		adjusted.GainController2.AdaptiveDigital.Enabled = true
		adjusted.GainController2.InputVolumeController.Enabled = true
		return adjusted
	}

	return adjusted
}
