package tournament

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"reasongate/internal/session"
)

// codeRefPattern recognizes file:line references inside evidence lines.
var codeRefPattern = regexp.MustCompile(`\b([\w./-]+\.\w+):(\d+)\b`)

// ExtractEvidence scans a response line by line and classifies each line by
// the keyword tables. A code reference on the line becomes the evidence
// location; hedging vocabulary sets the evidence confidence.
func ExtractEvidence(response string, now time.Time) []Evidence {
	var out []Evidence
	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)

		polarity := Neutral
		// Contradiction wins when both vocabularies appear: "no evidence
		// found" must not read as supporting.
		if matchesAny(lower, contradictingKeywords) {
			polarity = Contradicting
		} else if matchesAny(lower, supportingKeywords) {
			polarity = Supporting
		}
		if polarity == Neutral {
			continue
		}

		ev := Evidence{
			Polarity:     polarity,
			Description:  trimmed,
			Confidence:   strengthOf(lower),
			DiscoveredAt: now,
		}
		if m := codeRefPattern.FindStringSubmatch(trimmed); m != nil {
			line, _ := strconv.Atoi(m[2])
			ev.Location = &session.CodeLocation{File: m[1], Line: line}
		}
		out = append(out, ev)
	}
	return out
}

func matchesAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func strengthOf(lower string) float64 {
	for _, sw := range strengthWords {
		for _, w := range sw.words {
			if strings.Contains(lower, w) {
				return sw.conf
			}
		}
	}
	return defaultEvidenceConfidence
}

// ScoreEvidence computes overall confidence from evidence: a weighted sum
// (supporting adds confidence, contradicting subtracts, neutral contributes
// nothing) normalized into [0,1]. Empty evidence scores 0.5 when the
// exploration at least produced insights, otherwise 0.
func ScoreEvidence(evidence []Evidence, insightCount int) float64 {
	var signed, total float64
	for _, ev := range evidence {
		switch ev.Polarity {
		case Supporting:
			signed += ev.Confidence
			total += ev.Confidence
		case Contradicting:
			signed -= ev.Confidence
			total += ev.Confidence
		}
	}
	if total == 0 {
		if insightCount > 0 {
			return 0.5
		}
		return 0
	}
	return (total + signed) / (2 * total)
}

// significantInsights filters a result set down to the pattern-level
// insights worth cross-pollinating: insights from results confident above
// 0.6 that mention one of the significance words.
func significantInsights(results []*ExplorationResult) []string {
	var out []string
	seen := make(map[string]bool)
	for _, res := range results {
		if res == nil || res.Confidence <= 0.6 {
			continue
		}
		for _, insight := range res.KeyInsights {
			lower := strings.ToLower(insight)
			if !matchesAny(lower, significantInsightWords) || seen[insight] {
				continue
			}
			seen[insight] = true
			out = append(out, insight)
		}
	}
	return out
}
