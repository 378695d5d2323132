package tournament

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"reasongate/internal/dialogue"
	"reasongate/internal/gemini"
	"reasongate/internal/logging"
	"reasongate/internal/sanitize"
	"reasongate/internal/securefs"
	"reasongate/internal/session"
)

// Scheduler runs hypothesis tournaments.
type Scheduler struct {
	mgr     *session.Manager
	factory gemini.ChatFactory
	adapter *dialogue.Adapter
	reader  *securefs.Reader
}

// NewScheduler creates a Scheduler.
func NewScheduler(mgr *session.Manager, factory gemini.ChatFactory, adapter *dialogue.Adapter, reader *securefs.Reader) *Scheduler {
	return &Scheduler{mgr: mgr, factory: factory, adapter: adapter, reader: reader}
}

// Run executes a full tournament: hypothesis generation, bounded-parallel
// exploration rounds with elimination and cross-pollination, winner
// selection, and recommendations. Budget expiry yields a partial result
// carrying everything gathered so far; sessions touched by the expiry are
// left active, never abandoned.
func (s *Scheduler) Run(ctx context.Context, issue string, reqCtx session.RequestContext, cfg Config) (*Result, error) {
	cfg = cfg.normalize()
	start := time.Now()

	hypotheses, err := s.generate(ctx, issue, reqCtx, cfg.MaxHypotheses)
	if err != nil {
		// Budget expiry before any hypothesis exists still yields a
		// partial result, not a hard error.
		if ctx.Err() != nil {
			return s.partial(&Result{Issue: issue}, nil, reqCtx, start, 0), nil
		}
		return nil, err
	}
	logging.Tournament("generated %d hypotheses for issue (%d max)", len(hypotheses), cfg.MaxHypotheses)

	result := &Result{
		Issue:           issue,
		Status:          "complete",
		TotalHypotheses: len(hypotheses),
	}

	// Focus files are read once and the content map is shared across every
	// session in every round.
	files, err := s.readFocusFiles(reqCtx.FocusArea.Files)
	if err != nil {
		return nil, err
	}

	var (
		surviving     = hypotheses
		explorations  = make(map[string]*exploration)
		eliminatedAll []string
		crossInsights []string
		lastResults   []*ExplorationResult
	)

	for round := 1; round <= cfg.MaxRounds && (round == 1 || len(surviving) > 1); round++ {
		if ctx.Err() != nil {
			return s.partial(result, lastResults, reqCtx, start, round), nil
		}

		roundResults := s.exploreRound(ctx, issue, surviving, reqCtx, files, round, eliminatedAll, crossInsights, cfg.Parallelism, explorations)
		if ctx.Err() != nil {
			return s.partial(result, roundResults, reqCtx, start, round), nil
		}

		survivors, eliminatedIDs := eliminate(roundResults, cfg.EliminationThreshold, len(surviving))

		rec := Round{
			Number:        round,
			Hypotheses:    surviving,
			Results:       roundResults,
			EliminatedIDs: eliminatedIDs,
		}
		for _, id := range eliminatedIDs {
			for _, h := range surviving {
				if h.ID == id {
					eliminatedAll = append(eliminatedAll, h.Theory)
				}
			}
		}

		// Cross-pollination reads only finalized results within the round:
		// the harvest happens strictly after every batch has completed.
		if cfg.CrossPollination && len(survivors) >= 2 {
			crossInsights = significantInsights(roundResults)
			rec.CrossInsights = crossInsights
			s.pollinate(ctx, survivors, explorations, crossInsights)
		}

		result.Rounds = append(result.Rounds, rec)
		lastResults = survivors

		next := make([]Hypothesis, 0, len(survivors))
		for _, r := range survivors {
			next = append(next, r.Hypothesis)
		}
		surviving = next
		logging.Tournament("round %d closed: %d survive, %d eliminated", round, len(survivors), len(eliminatedIDs))
	}

	s.finish(result, lastResults, start)
	return result, nil
}

// generate opens a scratch session and parses the remote's numbered theory
// list.
func (s *Scheduler) generate(ctx context.Context, issue string, reqCtx session.RequestContext, n int) ([]Hypothesis, error) {
	id := s.mgr.Create(reqCtx)

	chat, err := s.factory.StartChat(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("hypothesis generation: %w", err)
	}
	prompt := buildGenerationPrompt(sanitize.SanitizeString(issue, 0), reqCtx, n)
	_, _ = s.mgr.AddTurn(id, session.TurnCaller, prompt, nil)

	response, err := chat.Send(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("hypothesis generation: %w", err)
	}
	_, _ = s.mgr.AddTurn(id, session.TurnRemote, response, nil)
	s.mgr.MarkCompleted(id)

	return ParseHypotheses(response, n)
}

// exploreRound runs one round in batches of cfg.Parallelism. Explorations
// within a batch run concurrently; batches are sequenced. A failed
// exploration is isolated into a synthetic low-confidence result so the
// round still closes.
func (s *Scheduler) exploreRound(ctx context.Context, issue string, hyps []Hypothesis, reqCtx session.RequestContext, files map[string][]byte, round int, eliminated, crossInsights []string, parallelism int, explorations map[string]*exploration) []*ExplorationResult {
	results := make([]*ExplorationResult, len(hyps))
	expls := make([]*exploration, len(hyps))

	for batchStart := 0; batchStart < len(hyps); batchStart += parallelism {
		batchEnd := batchStart + parallelism
		if batchEnd > len(hyps) {
			batchEnd = len(hyps)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := batchStart; i < batchEnd; i++ {
			i := i
			h := hyps[i]
			g.Go(func() error {
				expl, err := s.explore(gctx, issue, h, reqCtx, files, round, eliminated, crossInsights)
				if err != nil {
					logging.Tournament("hypothesis %s isolated after failure: %v", h.ID, err)
					results[i] = syntheticFailure(h, "", err)
					return nil
				}
				expls[i] = expl
				results[i] = expl.result
				return nil
			})
		}
		_ = g.Wait()

		// Goroutines write only their own slot; the shared map is merged
		// here, after the batch has fully settled.
		for i := batchStart; i < batchEnd; i++ {
			if expls[i] != nil {
				explorations[hyps[i].ID] = expls[i]
			}
		}

		if ctx.Err() != nil {
			break
		}
	}

	out := results[:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// pollinate feeds significant insights into each struggling survivor's
// session as a follow-up message before the next round.
func (s *Scheduler) pollinate(ctx context.Context, survivors []*ExplorationResult, explorations map[string]*exploration, insights []string) {
	if len(insights) == 0 {
		return
	}
	msg := "Insights from parallel explorations of the same issue:\n"
	for _, in := range sanitize.SanitizeArray(insights, 0, 500) {
		msg += "- " + in + "\n"
	}
	msg += "Reconsider your theory in light of these."

	for _, r := range survivors {
		if r.Confidence >= 0.5 {
			continue
		}
		expl, ok := explorations[r.Hypothesis.ID]
		if !ok {
			continue
		}
		if _, err := expl.chat.Send(ctx, msg); err != nil {
			logging.Tournament("cross-pollination to %s failed: %v", r.Hypothesis.ID, err)
			continue
		}
		_, _ = s.mgr.AddTurn(expl.sessionID, session.TurnSystem, msg, nil)
		logging.Tournament("cross-pollinated %d insights into %s", len(insights), r.Hypothesis.ID)
	}
}

// finish ranks the final field and fills in winner, metrics, findings, and
// recommendations.
func (s *Scheduler) finish(result *Result, finalists []*ExplorationResult, start time.Time) {
	rankResults(finalists)
	if len(finalists) > 0 {
		result.Winner = finalists[0]
	}
	if len(finalists) > 1 {
		result.RunnerUp = finalists[1]
	}

	for _, r := range finalists {
		result.Findings = append(result.Findings, r.RelatedFindings...)
		s.mgr.MarkCompleted(r.SessionID)
	}

	result.Duration = time.Since(start)
	rounds := len(result.Rounds)
	if rounds > 0 && result.Duration > 0 {
		perRound := result.Duration / time.Duration(rounds)
		result.ParallelEfficiency = float64(result.TotalHypotheses) * perRound.Seconds() / result.Duration.Seconds()
	}

	result.Primary, result.Secondary = recommend(result)
}

// partial closes out a budget-expired tournament: the rounds completed so
// far stand, the best known results are ranked, and the shortfall is
// reported as an advisory action. Sessions stay active for diagnostics.
func (s *Scheduler) partial(result *Result, known []*ExplorationResult, reqCtx session.RequestContext, start time.Time, round int) *Result {
	result.Status = "partial"
	rankResults(known)
	if len(known) > 0 {
		result.Winner = known[0]
	}
	if len(known) > 1 {
		result.RunnerUp = known[1]
	}
	result.Duration = time.Since(start)
	phase := fmt.Sprintf("in round %d", round)
	if round == 0 {
		phase = "during hypothesis generation"
	}
	result.Primary = []Recommendation{{
		Priority: "high",
		Action:   fmt.Sprintf("Tournament budget expired %s; re-run with a larger time budget or fewer hypotheses", phase),
	}}
	logging.Tournament("tournament returned partial result (%s)", phase)
	return result
}

// readFocusFiles loads the shared content map for all round sessions.
func (s *Scheduler) readFocusFiles(paths []string) (map[string][]byte, error) {
	files := make(map[string][]byte, len(paths))
	for _, p := range paths {
		data, err := s.reader.Read(p)
		if err != nil {
			return nil, fmt.Errorf("focus file %s: %w", p, err)
		}
		files[p] = data
	}
	return files, nil
}
