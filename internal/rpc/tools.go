package rpc

import (
	"context"
	"encoding/json"
	"time"

	"reasongate/internal/dialogue"
	"reasongate/internal/logging"
	"reasongate/internal/sanitize"
	"reasongate/internal/session"
	"reasongate/internal/tournament"
)

// toRequestContext converts the wire context into the internal model.
// Findings that fail validation are quarantined, not guessed at. The single
// stuck_description becomes the sole element of the stuck-points list.
func (s *Server) toRequestContext(cc ClaudeContext, budgetSeconds int) session.RequestContext {
	findings, quarantined := session.ParseFindings(cc.PartialFindings)
	if len(quarantined) > 0 {
		logging.RPC("quarantined %d invalid partial findings", len(quarantined))
	}

	focus := session.FocusArea{
		Files:        cc.CodeScope.Files,
		ServiceNames: cc.CodeScope.ServiceNames,
	}
	for _, ep := range cc.CodeScope.EntryPoints {
		focus.EntryPoints = append(focus.EntryPoints, session.CodeLocation{
			File:     ep.File,
			Line:     ep.Line,
			Function: ep.FunctionName,
		})
	}

	return session.RequestContext{
		AttemptedApproaches: sanitize.SanitizeArray(cc.AttemptedApproaches, 0, 0),
		PartialFindings:     findings,
		Quarantined:         quarantined,
		StuckPoints:         []string{sanitize.SanitizeString(cc.StuckDescription, 0)},
		FocusArea:           focus,
		BudgetSeconds:       budgetSeconds,
	}
}

// budgetContext applies the per-request time budget.
func (s *Server) budgetContext(ctx context.Context, seconds int, fallback time.Duration) (context.Context, context.CancelFunc) {
	d := fallback
	if seconds > 0 {
		d = time.Duration(seconds) * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func (s *Server) handleEscalate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p EscalateParams
	if err := s.decodeAndValidate(params, &p); err != nil {
		return nil, err
	}
	ctx, cancel := s.budgetContext(ctx, p.TimeBudgetSeconds, s.deps.Config.Budget.Default)
	defer cancel()

	reqCtx := s.toRequestContext(p.ClaudeContext, p.TimeBudgetSeconds)
	depth := p.DepthLevel
	if depth == 0 {
		depth = 3
	}
	return s.deps.Orchestrator.EscalateAnalysis(ctx, reqCtx, p.AnalysisType, depth)
}

func (s *Server) handleTrace(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p TraceParams
	if err := s.decodeAndValidate(params, &p); err != nil {
		return nil, err
	}
	maxDepth := p.MaxDepth
	if maxDepth == 0 {
		maxDepth = 10
	}
	includeDataFlow := true
	if p.IncludeDataFlow != nil {
		includeDataFlow = *p.IncludeDataFlow
	}
	annotations, err := s.deps.Tracer.Trace(session.CodeLocation{
		File:     p.EntryPoint.File,
		Line:     p.EntryPoint.Line,
		Function: p.EntryPoint.FunctionName,
	}, maxDepth, includeDataFlow)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"entry_point": p.EntryPoint,
		"annotations": annotations,
	}, nil
}

func (s *Server) handleCrossSystem(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p CrossSystemParams
	if err := s.decodeAndValidate(params, &p); err != nil {
		return nil, err
	}
	annotations, err := s.deps.Boundary.Analyze(p.ChangeScope.Files, p.ChangeScope.ServiceNames)
	if err != nil {
		return nil, err
	}
	impactTypes := p.ImpactTypes
	if len(impactTypes) == 0 {
		impactTypes = []string{"breaking", "performance", "behavioral"}
	}
	return map[string]interface{}{
		"impact_types": impactTypes,
		"annotations":  annotations,
	}, nil
}

func (s *Server) handlePerf(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p PerfParams
	if err := s.decodeAndValidate(params, &p); err != nil {
		return nil, err
	}
	depth := p.ProfileDepth
	if depth == 0 {
		depth = 3
	}
	annotations, err := s.deps.Perf.Model(p.CodePath.EntryPoint.File, depth)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"entry_point":      p.CodePath.EntryPoint,
		"suspected_issues": p.CodePath.SuspectedIssues,
		"annotations":      annotations,
	}, nil
}

func (s *Server) handleHypothesisTest(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p HypothesisTestParams
	if err := s.decodeAndValidate(params, &p); err != nil {
		return nil, err
	}
	ctx, cancel := s.budgetContext(ctx, 0, s.deps.Config.Budget.Default)
	defer cancel()

	reqCtx := session.RequestContext{
		StuckPoints: []string{"Testing: " + sanitize.SanitizeString(p.Hypothesis, 0)},
		FocusArea: session.FocusArea{
			Files:        p.CodeScope.Files,
			ServiceNames: p.CodeScope.ServiceNames,
		},
	}
	question := "Hypothesis: " + p.Hypothesis + "\nTest approach: " + p.TestApproach
	start, err := s.deps.Orchestrator.StartConversation(ctx, reqCtx, "hypothesis_test", question)
	if err != nil {
		return nil, err
	}
	return s.deps.Orchestrator.FinalizeConversation(ctx, start.SessionID, dialogue.FormatActionable)
}

func (s *Server) handleStartConversation(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p StartConversationParams
	if err := s.decodeAndValidate(params, &p); err != nil {
		return nil, err
	}
	ctx, cancel := s.budgetContext(ctx, 0, s.deps.Config.Budget.Default)
	defer cancel()

	reqCtx := s.toRequestContext(p.ClaudeContext, 0)
	return s.deps.Orchestrator.StartConversation(ctx, reqCtx, p.AnalysisType, p.InitialQuestion)
}

func (s *Server) handleContinueConversation(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ContinueParams
	if err := s.decodeAndValidate(params, &p); err != nil {
		return nil, err
	}
	ctx, cancel := s.budgetContext(ctx, 0, s.deps.Config.Budget.Default)
	defer cancel()

	return s.deps.Orchestrator.ContinueConversation(ctx, p.SessionID, p.Message, p.IncludeCodeSnippets)
}

func (s *Server) handleFinalizeConversation(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p FinalizeParams
	if err := s.decodeAndValidate(params, &p); err != nil {
		return nil, err
	}
	ctx, cancel := s.budgetContext(ctx, 0, s.deps.Config.Budget.Default)
	defer cancel()

	format := dialogue.SummaryFormat(p.SummaryFormat)
	if format == "" {
		format = dialogue.FormatDetailed
	}
	return s.deps.Orchestrator.FinalizeConversation(ctx, p.SessionID, format)
}

func (s *Server) handleStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p StatusParams
	if err := s.decodeAndValidate(params, &p); err != nil {
		return nil, err
	}
	return s.deps.Orchestrator.Status(p.SessionID)
}

func (s *Server) handleTournament(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p TournamentParams
	if err := s.decodeAndValidate(params, &p); err != nil {
		return nil, err
	}
	ctx, cancel := s.budgetContext(ctx, 0, s.deps.Config.Budget.Tournament)
	defer cancel()

	cfg := tournament.Config{
		MaxHypotheses:        s.deps.Config.Tournament.MaxHypotheses,
		MaxRounds:            s.deps.Config.Tournament.MaxRounds,
		EliminationThreshold: s.deps.Config.Tournament.EliminationThreshold,
		Parallelism:          s.deps.Config.Tournament.Parallelism,
		CrossPollination:     s.deps.Config.Tournament.CrossPollination,
	}
	if p.TournamentConfig != nil {
		if p.TournamentConfig.MaxHypotheses > 0 {
			cfg.MaxHypotheses = p.TournamentConfig.MaxHypotheses
		}
		if p.TournamentConfig.MaxRounds > 0 {
			cfg.MaxRounds = p.TournamentConfig.MaxRounds
		}
		if p.TournamentConfig.ParallelSessions > 0 {
			cfg.Parallelism = p.TournamentConfig.ParallelSessions
		}
	}

	reqCtx := s.toRequestContext(p.ClaudeContext, int(s.deps.Config.Budget.Tournament.Seconds()))
	return s.deps.Scheduler.Run(ctx, sanitize.SanitizeString(p.Issue, 0), reqCtx, cfg)
}
