package orchestrate

import (
	"context"
	"errors"
	"fmt"

	"reasongate/internal/dialogue"
	"reasongate/internal/logging"
	"reasongate/internal/reasonerr"
	"reasongate/internal/session"
)

// EscalateAnalysis runs one complete dialogue (start, finalize) within the
// caller's budget. When the budget expires mid-flight the findings gathered
// so far are preserved in a partial result rather than discarded; the
// session is returned to active so diagnostic queries stay valid.
func (o *Orchestrator) EscalateAnalysis(ctx context.Context, reqCtx session.RequestContext, kind string, depth int) (*dialogue.AnalysisResult, error) {
	start, err := o.StartConversation(ctx, reqCtx, kind, "")
	if err != nil {
		if expired(err) {
			return partialResult(reqCtx, "analysis could not start within the time budget"), nil
		}
		return nil, err
	}

	format := dialogue.FormatDetailed
	if depth <= 2 {
		format = dialogue.FormatConcise
	}

	result, err := o.FinalizeConversation(ctx, start.SessionID, format)
	if err != nil {
		if expired(err) {
			logging.Session("budget expired finalizing %s, returning partial result", start.SessionID)
			res := partialResult(reqCtx, fmt.Sprintf(
				"time budget expired before synthesis completed; session %s holds the conversation so far", start.SessionID))
			res.Insights = start.SuggestedFollowUps
			return res, nil
		}
		return nil, err
	}
	return result, nil
}

// expired reports whether err is a budget/deadline expiry.
func expired(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return reasonerr.Is(err, reasonerr.CodeAPITimeout)
}

// partialResult builds the advisory result for a budget shortfall: the
// attempted approaches are reported as ruled out, and the next step explains
// the timeout.
func partialResult(reqCtx session.RequestContext, why string) *dialogue.AnalysisResult {
	return &dialogue.AnalysisResult{
		Status: "partial",
		ImmediateActions: []dialogue.Action{
			{Description: "Re-run with a larger time_budget_seconds or a narrower code scope", Priority: "high"},
		},
		InvestigationNextSteps: []string{why},
		RuledOutApproaches:     append([]string(nil), reqCtx.AttemptedApproaches...),
	}
}
