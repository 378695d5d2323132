package tournament

import (
	"fmt"

	"reasongate/internal/session"
)

// recommend derives the primary and secondary action lists from the
// tournament outcome.
func recommend(result *Result) (primary, secondary []Recommendation) {
	winner := result.Winner
	if winner == nil {
		primary = append(primary, Recommendation{
			Priority: "high",
			Action:   "No hypothesis survived; broaden the issue description and re-run",
		})
		return primary, secondary
	}

	switch {
	case winner.Confidence > 0.7:
		primary = append(primary, Recommendation{
			Priority:  "critical",
			Action:    "Fix the root cause: " + winner.Hypothesis.Theory,
			Rationale: fmt.Sprintf("winning hypothesis at confidence %.2f", winner.Confidence),
		})
		if len(winner.ReproductionSteps) > 0 {
			primary = append(primary, Recommendation{
				Priority: "high",
				Action:   "Verify the fix against the captured reproduction steps",
			})
		}
	case winner.Confidence >= 0.3:
		primary = append(primary, Recommendation{
			Priority:  "high",
			Action:    "Investigate further: " + winner.Hypothesis.Theory,
			Rationale: fmt.Sprintf("leading hypothesis only at confidence %.2f", winner.Confidence),
		})
	default:
		primary = append(primary, Recommendation{
			Priority: "medium",
			Action:   "All hypotheses scored low; gather more context and re-run",
		})
	}

	if result.RunnerUp != nil && result.RunnerUp.Confidence > 0.5 {
		primary = append(primary, Recommendation{
			Priority: "medium",
			Action:   "Also consider: " + result.RunnerUp.Hypothesis.Theory,
		})
	}

	if winner.Hypothesis.Category == CategoryPerformance {
		primary = append(primary, Recommendation{
			Priority: "medium",
			Action:   "Set up monitoring on the affected path before and after the fix",
		})
	}

	for _, f := range result.Findings {
		if f.Severity.AtLeast(session.SeverityHigh) {
			secondary = append(secondary, Recommendation{
				Priority: "medium",
				Action:   "Unrelated issue discovered: " + f.Description,
			})
		}
	}
	return primary, secondary
}
