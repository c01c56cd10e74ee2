package voiceproc

import (
	"testing"

	"github.com/opd-ai/voiceproc/frame"
)

func TestNegotiatorFirstFrameNeedsReinit(t *testing.T) {
	var n formatNegotiator
	cfg := frame.StreamConfig{SampleRateHz: 16000, NumChannels: 1}
	if !n.needsReinit(roleCaptureInput, cfg) {
		t.Error("unseen role did not need reinit")
	}
	n.record(roleCaptureInput, cfg)
	if n.needsReinit(roleCaptureInput, cfg) {
		t.Error("recorded format still needs reinit")
	}
}

func TestNegotiatorDetectsFormatChanges(t *testing.T) {
	base := frame.StreamConfig{SampleRateHz: 16000, NumChannels: 1}
	tests := []struct {
		name string
		next frame.StreamConfig
		want bool
	}{
		{"same format", frame.StreamConfig{SampleRateHz: 16000, NumChannels: 1}, false},
		{"rate change", frame.StreamConfig{SampleRateHz: 48000, NumChannels: 1}, true},
		{"channel change", frame.StreamConfig{SampleRateHz: 16000, NumChannels: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n formatNegotiator
			n.record(roleCaptureInput, base)
			if got := n.needsReinit(roleCaptureInput, tt.next); got != tt.want {
				t.Errorf("needsReinit = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNegotiatorRolesIndependent(t *testing.T) {
	var n formatNegotiator
	capture := frame.StreamConfig{SampleRateHz: 48000, NumChannels: 2}
	n.record(roleCaptureInput, capture)

	render := frame.StreamConfig{SampleRateHz: 16000, NumChannels: 1}
	if !n.needsReinit(roleRenderInput, render) {
		t.Error("recording one role marked another as seen")
	}
	n.record(roleRenderInput, render)
	if n.needsReinit(roleCaptureInput, capture) {
		t.Error("recording render forgot the capture format")
	}
}

func TestNegotiatorResetForgetsAllRoles(t *testing.T) {
	var n formatNegotiator
	cfg := frame.StreamConfig{SampleRateHz: 48000, NumChannels: 2}
	for role := streamRole(0); role < numStreamRoles; role++ {
		n.record(role, cfg)
	}

	n.reset()
	for role := streamRole(0); role < numStreamRoles; role++ {
		if !n.needsReinit(role, cfg) {
			t.Errorf("role %d still recorded after reset", role)
		}
	}
}
