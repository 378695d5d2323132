package dialogue

import (
	"strings"

	"reasongate/internal/session"
)

const (
	// FinalizableThreshold is the progress at which finalization unlocks.
	FinalizableThreshold = 0.8
	// progressCap keeps the computed value below certainty.
	progressCap = 0.95
)

// ComputeProgress derives a deterministic progress scalar from
// session-observable state. It deliberately ignores the remote's
// self-assessment: the remote is free to claim anything, the gate is ours.
func ComputeProgress(ctx session.RequestContext) float64 {
	p := 0.2
	if len(ctx.PartialFindings) >= 3 {
		p = 0.4
	}

	for _, stuck := range ctx.StuckPoints {
		lower := strings.ToLower(stuck)
		if strings.Contains(lower, "cause") || strings.Contains(lower, "issue") {
			p += 0.3
			break
		}
	}

	if len(ctx.FocusArea.Files) > 5 {
		p += 0.2
	} else {
		p += 0.1
	}

	if p > progressCap {
		p = progressCap
	}
	return p
}

// Finalizable reports whether progress permits finalization.
func Finalizable(progress float64) bool {
	return progress >= FinalizableThreshold
}
