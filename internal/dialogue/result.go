package dialogue

import (
	"reasongate/internal/session"
)

// SummaryFormat selects how the remote is asked to synthesize its findings.
type SummaryFormat string

const (
	FormatDetailed   SummaryFormat = "detailed"
	FormatConcise    SummaryFormat = "concise"
	FormatActionable SummaryFormat = "actionable"
)

// RootCause is one identified root cause in a finalized analysis.
type RootCause struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
	Confidence  float64  `json:"confidence"`
	FixStrategy string   `json:"fix_strategy"`
}

// Action is a recommended step with a priority.
type Action struct {
	Description string `json:"description"`
	Priority    string `json:"priority"` // critical | high | medium | low
}

// AnalysisResult is the structured output of a finalized conversation.
type AnalysisResult struct {
	Status                 string                 `json:"status"` // success | partial
	RootCauses             []RootCause            `json:"root_causes"`
	ImmediateActions       []Action               `json:"immediate_actions"`
	InvestigationNextSteps []string               `json:"investigation_next_steps"`
	RuledOutApproaches     []string               `json:"ruled_out_approaches"`
	Insights               []string               `json:"insights,omitempty"`
	Recommendations        []string               `json:"recommendations,omitempty"`
	Metadata               session.ResultMetadata `json:"metadata"`
}

// remoteResult is the wire shape the synthesis prompt asks the remote to
// emit. Field names match the fixed JSON schema embedded in the prompt.
type remoteResult struct {
	RootCauses []struct {
		Type        string   `json:"type"`
		Description string   `json:"description"`
		Evidence    []string `json:"evidence"`
		Confidence  float64  `json:"confidence"`
		FixStrategy string   `json:"fixStrategy"`
	} `json:"rootCauses"`
	Recommendations struct {
		Immediate   []string `json:"immediate"`
		Investigate []string `json:"investigate"`
	} `json:"recommendations"`
	RuledOut []string `json:"ruledOut"`
}

// mapRemoteResult converts the remote wire shape to the result schema.
// Immediate recommendations surface as high-priority actions.
func mapRemoteResult(rr remoteResult) *AnalysisResult {
	res := &AnalysisResult{Status: "success"}
	for _, rc := range rr.RootCauses {
		res.RootCauses = append(res.RootCauses, RootCause{
			Type:        rc.Type,
			Description: rc.Description,
			Evidence:    rc.Evidence,
			Confidence:  rc.Confidence,
			FixStrategy: rc.FixStrategy,
		})
	}
	for _, a := range rr.Recommendations.Immediate {
		res.ImmediateActions = append(res.ImmediateActions, Action{Description: a, Priority: "high"})
	}
	res.InvestigationNextSteps = rr.Recommendations.Investigate
	res.RuledOutApproaches = rr.RuledOut
	return res
}
