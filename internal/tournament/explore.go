package tournament

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"reasongate/internal/dialogue"
	"reasongate/internal/gemini"
	"reasongate/internal/logging"
	"reasongate/internal/sanitize"
	"reasongate/internal/session"
)

// exploration is the live state of one hypothesis exploration. The chat is
// kept so cross-pollination can inject follow-ups after the round closes.
type exploration struct {
	hypothesis Hypothesis
	sessionID  string
	chat       gemini.Chat
	result     *ExplorationResult
}

// stepPattern extracts numbered or bulleted lines as reproduction steps.
var stepPattern = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*])\s+(.+)$`)

// insightPattern catches explicitly labeled insights in responses.
var insightPattern = regexp.MustCompile(`(?im)^(?:key\s+)?insight[:\s]+(.+)$`)

// buildExplorationPrompt composes the initial message for one hypothesis.
// From round two onward it carries the previously eliminated theories and
// the prior round's cross-pollinated insights.
func buildExplorationPrompt(issue string, h Hypothesis, files map[string][]byte, round int, eliminated, crossInsights []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Test this hypothesis against the code.

Theory: %s
Approach: %s
Category: %s

For every observation, state whether it supports or contradicts the theory
and cite file:line where possible.`,
		sanitize.SanitizeString(h.Theory, 0),
		sanitize.SanitizeString(h.TestApproach, 0),
		h.Category)

	if round > 1 {
		if len(eliminated) > 0 {
			b.WriteString("\n\nTheories already eliminated in earlier rounds:\n")
			for _, t := range sanitize.SanitizeArray(eliminated, 0, 500) {
				b.WriteString("- " + t + "\n")
			}
		}
		if len(crossInsights) > 0 {
			b.WriteString("\nInsights from parallel explorations:\n")
			for _, in := range sanitize.SanitizeArray(crossInsights, 0, 500) {
				b.WriteString("- " + in + "\n")
			}
		}
	}

	if len(files) > 0 {
		b.WriteString("\n\nSource files:\n")
		names := make([]string, 0, len(files))
		for name := range files {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteString(sanitize.FormatFile(name, string(files[name])))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// explore runs the full protocol for one hypothesis: dedicated session,
// initial probe, evidence scoring, optional reproduction request, and an
// actionable finalization whose low-confidence root causes become
// serendipitous related findings.
func (s *Scheduler) explore(ctx context.Context, issue string, h Hypothesis, reqCtx session.RequestContext, files map[string][]byte, round int, eliminated, crossInsights []string) (*exploration, error) {
	explCtx := reqCtx
	explCtx.StuckPoints = append(append([]string(nil), reqCtx.StuckPoints...), "Testing: "+h.Theory)
	id := s.mgr.Create(explCtx)

	chat, err := s.factory.StartChat(ctx, []gemini.Message{
		{Role: gemini.RoleUser, Text: sanitize.ComposeSafePrompt(
			"You are testing a single root-cause hypothesis against source code. Report supporting and contradicting observations with file:line evidence.",
			map[string]interface{}{"issue": issue, "theory": h.Theory},
		)},
		{Role: gemini.RoleModel, Text: "Understood. I will gather evidence for and against the theory."},
	})
	if err != nil {
		return nil, fmt.Errorf("hypothesis %s: %w", h.ID, err)
	}
	_ = s.mgr.AttachChat(id, chat)

	depth := 0
	send := func(msg string) (string, error) {
		if _, err := s.mgr.AddTurn(id, session.TurnCaller, msg, nil); err != nil {
			return "", err
		}
		resp, err := chat.Send(ctx, msg)
		if err != nil {
			return "", err
		}
		depth++
		_, _ = s.mgr.AddTurn(id, session.TurnRemote, resp, nil)
		return resp, nil
	}

	response, err := send(buildExplorationPrompt(issue, h, files, round, eliminated, crossInsights))
	if err != nil {
		return nil, fmt.Errorf("hypothesis %s: %w", h.ID, err)
	}

	now := time.Now()
	evidence := ExtractEvidence(response, now)
	insights := extractInsights(response, evidence)
	confidence := ScoreEvidence(evidence, len(insights))

	var reproSteps []string
	if confidence > 0.5 {
		reproResp, err := send("The evidence leans toward this theory. Give concrete steps to reproduce the issue, as a numbered list.")
		if err == nil && matchesAny(strings.ToLower(reproResp), reproductionSuccessWords) {
			for _, m := range stepPattern.FindAllStringSubmatch(reproResp, -1) {
				reproSteps = append(reproSteps, strings.TrimSpace(m[1]))
			}
		}
	}

	var related []session.Finding
	if final, err := s.adapter.Finalize(ctx, chat, dialogue.FormatActionable); err == nil {
		depth++
		related = relatedFindings(final, h)
	} else {
		logging.Tournament("hypothesis %s finalize skipped: %v", h.ID, err)
	}

	result := &ExplorationResult{
		Hypothesis:        h,
		SessionID:         id,
		Evidence:          evidence,
		Confidence:        confidence,
		Depth:             depth,
		KeyInsights:       insights,
		ReproductionSteps: reproSteps,
		RelatedFindings:   related,
	}
	logging.Tournament("hypothesis %s round %d: confidence %.2f (%d evidence, depth %d)", h.ID, round, confidence, len(evidence), depth)
	return &exploration{hypothesis: h, sessionID: id, chat: chat, result: result}, nil
}

// extractInsights collects labeled insights plus the strongest supporting
// evidence descriptions.
func extractInsights(response string, evidence []Evidence) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range insightPattern.FindAllStringSubmatch(response, -1) {
		line := strings.TrimSpace(m[1])
		if !seen[line] {
			seen[line] = true
			out = append(out, line)
		}
	}
	for _, ev := range evidence {
		if ev.Polarity == Supporting && ev.Confidence >= 0.6 && !seen[ev.Description] {
			seen[ev.Description] = true
			out = append(out, ev.Description)
		}
		if len(out) >= 5 {
			break
		}
	}
	return out
}

// relatedFindings turns low-confidence root causes in a finalized result
// into serendipitous findings: not the theory under test, but worth
// reporting.
func relatedFindings(final *dialogue.AnalysisResult, h Hypothesis) []session.Finding {
	var out []session.Finding
	for _, rc := range final.RootCauses {
		if rc.Confidence >= 0.5 {
			continue
		}
		f := session.Finding{
			Kind:        findingKind(h.Category),
			Severity:    session.SeverityMedium,
			Description: rc.Description,
			Evidence:    rc.Evidence,
		}
		if len(rc.Evidence) > 0 {
			if m := codeRefPattern.FindStringSubmatch(rc.Evidence[0]); m != nil {
				f.Location.File = m[1]
			}
		}
		if f.Description != "" {
			out = append(out, f)
		}
	}
	return out
}

// findingKind maps a hypothesis category to the closest finding kind.
func findingKind(c Category) session.FindingKind {
	switch c {
	case CategoryPerformance:
		return session.FindingPerformance
	case CategorySecurity:
		return session.FindingSecurity
	case CategoryArchitecture, CategoryIntegration:
		return session.FindingArchitecture
	default:
		return session.FindingBug
	}
}

// syntheticFailure is the isolation path: an exploration that blew up still
// closes its round with a low-confidence contradicting result.
func syntheticFailure(h Hypothesis, sessionID string, err error) *ExplorationResult {
	return &ExplorationResult{
		Hypothesis: h,
		SessionID:  sessionID,
		Evidence: []Evidence{{
			Polarity:     Contradicting,
			Description:  fmt.Sprintf("exploration failed: %v", err),
			Confidence:   defaultEvidenceConfidence,
			DiscoveredAt: time.Now(),
		}},
		Confidence: 0.1,
	}
}
