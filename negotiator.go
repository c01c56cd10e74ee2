package voiceproc

import "github.com/opd-ai/voiceproc/frame"

// streamRole identifies one of the four negotiated stream endpoints.
type streamRole uint8

const (
	roleCaptureInput streamRole = iota
	roleCaptureOutput
	roleRenderInput
	roleRenderOutput
	numStreamRoles
)

// formatNegotiator tracks the last initialized format per stream role
// and decides when submodules must be rebuilt. Reinitialization is
// always performed synchronously, before the triggering frame is
// processed; the negotiator itself only answers the question.
type formatNegotiator struct {
	formats [numStreamRoles]frame.StreamConfig
	seen    [numStreamRoles]bool
}

// needsReinit reports whether a frame arriving with cfg for the given
// role differs from the format the role was last initialized with.
func (n *formatNegotiator) needsReinit(role streamRole, cfg frame.StreamConfig) bool {
	return !n.seen[role] || !n.formats[role].Equal(cfg)
}

// record stores the format a role has just been initialized for.
func (n *formatNegotiator) record(role streamRole, cfg frame.StreamConfig) {
	n.formats[role] = cfg
	n.seen[role] = true
}

// reset forgets all recorded formats.
func (n *formatNegotiator) reset() {
	for i := range n.seen {
		n.seen[i] = false
	}
}
