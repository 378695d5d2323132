package tournament

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"reasongate/internal/reasonerr"
	"reasongate/internal/sanitize"
	"reasongate/internal/session"
)

// buildGenerationPrompt asks the remote for n distinct theories, each with
// an approach, category, and prior priority.
func buildGenerationPrompt(issue string, reqCtx session.RequestContext, n int) string {
	findings := make([]string, 0, len(reqCtx.PartialFindings))
	for _, f := range reqCtx.PartialFindings {
		findings = append(findings, f.Description)
	}

	instructions := fmt.Sprintf(`Generate %d distinct hypotheses for the root cause of the issue below.
For each, write a numbered block:

1. <one-sentence theory>
   Approach: <how to test it against the code>
   Category: performance | bug | security | architecture | integration
   Priority: <0.0-1.0 prior likelihood>

Make the theories genuinely different; do not restate one theory five ways.`, n)

	return sanitize.ComposeSafePrompt(instructions, map[string]interface{}{
		"issue":                issue,
		"attempted_approaches": reqCtx.AttemptedApproaches,
		"partial_findings":     findings,
	})
}

// hypothesisBlockPattern splits a numbered list into blocks.
var hypothesisBlockPattern = regexp.MustCompile(`(?m)^\s*(\d+)[.)]\s+`)

// priorityNumberPattern finds an explicit priority value.
var priorityNumberPattern = regexp.MustCompile(`(?i)priority[:\s]+([01](?:\.\d+)?)`)

// approachPattern finds the test-approach line.
var approachPattern = regexp.MustCompile(`(?i)approach[:\s]+(.+)`)

// ParseHypotheses extracts up to max hypotheses from a numbered-list
// response. A response with no extractable hypotheses is an API_PARSE_ERROR.
func ParseHypotheses(response string, max int) ([]Hypothesis, error) {
	locs := hypothesisBlockPattern.FindAllStringIndex(response, -1)
	if len(locs) == 0 {
		return nil, reasonerr.New(reasonerr.CodeAPIParse, "no numbered hypotheses in generation response")
	}

	var out []Hypothesis
	for i, loc := range locs {
		end := len(response)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		block := strings.TrimSpace(response[loc[1]:end])
		if block == "" {
			continue
		}

		theory := block
		if idx := strings.IndexByte(block, '\n'); idx > 0 {
			theory = strings.TrimSpace(block[:idx])
		}

		h := Hypothesis{
			ID:       fmt.Sprintf("H%d", len(out)+1),
			Theory:   theory,
			Category: categorize(block),
			Priority: parsePriority(block),
		}
		if m := approachPattern.FindStringSubmatch(block); m != nil {
			h.TestApproach = strings.TrimSpace(m[1])
		}
		out = append(out, h)
		if len(out) >= max {
			break
		}
	}

	if len(out) == 0 {
		return nil, reasonerr.New(reasonerr.CodeAPIParse, "no usable hypotheses in generation response")
	}
	return out, nil
}

// categorize picks the category whose keywords appear in the block,
// defaulting to bug.
func categorize(block string) Category {
	lower := strings.ToLower(block)
	for _, ck := range categoryKeywords {
		if matchesAny(lower, ck.words) {
			return ck.cat
		}
	}
	return CategoryBug
}

// parsePriority prefers an explicit number, falls back to confidence-word
// strength, and defaults to 0.5.
func parsePriority(block string) float64 {
	if m := priorityNumberPattern.FindStringSubmatch(block); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v >= 0 && v <= 1 {
			return v
		}
	}
	return strengthOf(strings.ToLower(block))
}

// ordinal extracts the numeric part of a hypothesis id for tie-breaking.
func ordinal(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "H"))
	if err != nil {
		return 1 << 30
	}
	return n
}
