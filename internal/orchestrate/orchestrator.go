// Package orchestrate binds one session to one remote chat and enforces the
// session contracts around every adapter call: the lock is held for the
// duration of a round-trip and released on every exit path, including
// cancellation.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reasongate/internal/dialogue"
	"reasongate/internal/logging"
	"reasongate/internal/reasonerr"
	"reasongate/internal/securefs"
	"reasongate/internal/session"
)

// Orchestrator wraps the session manager, the dialogue adapter, and the
// secure reader behind the public conversation operations.
type Orchestrator struct {
	mgr     *session.Manager
	adapter *dialogue.Adapter
	reader  *securefs.Reader
}

// New creates an Orchestrator.
func New(mgr *session.Manager, adapter *dialogue.Adapter, reader *securefs.Reader) *Orchestrator {
	return &Orchestrator{mgr: mgr, adapter: adapter, reader: reader}
}

// StartOutput is the response of StartConversation.
type StartOutput struct {
	SessionID          string         `json:"session_id"`
	InitialResponse    string         `json:"initial_response"`
	SuggestedFollowUps []string       `json:"suggested_follow_ups"`
	Status             session.Status `json:"status"`
}

// StartConversation creates a session, reads the focus-area files, opens the
// remote dialogue, and logs the first remote turn.
func (o *Orchestrator) StartConversation(ctx context.Context, reqCtx session.RequestContext, kind, initialQuestion string) (*StartOutput, error) {
	files, err := o.readFocusFiles(reqCtx.FocusArea.Files)
	if err != nil {
		return nil, err
	}

	id := o.mgr.Create(reqCtx)

	start, err := o.adapter.Start(ctx, reqCtx, kind, initialQuestion, files)
	if err != nil {
		o.mgr.Abandon(id)
		return nil, attachSession(err, id)
	}

	if err := o.mgr.AttachChat(id, start.Chat); err != nil {
		return nil, err
	}
	if _, err := o.mgr.AddTurn(id, session.TurnRemote, start.Response, map[string]interface{}{
		"analysis_kind": kind,
		"follow_ups":    start.FollowUps,
	}); err != nil {
		return nil, attachSession(err, id)
	}
	_ = o.mgr.UpdateProgress(id, session.ProgressUpdate{
		PendingQuestions: start.FollowUps,
	})

	return &StartOutput{
		SessionID:          id,
		InitialResponse:    start.Response,
		SuggestedFollowUps: start.FollowUps,
		Status:             session.StatusActive,
	}, nil
}

// ContinueOutput is the response of ContinueConversation.
type ContinueOutput struct {
	Response    string         `json:"response"`
	Progress    float64        `json:"analysis_progress"`
	Finalizable bool           `json:"can_finalize"`
	Status      session.Status `json:"status"`
}

// ContinueConversation appends one caller/remote turn pair under the session
// lock. A losing racer observes SESSION_LOCKED and may retry. If the context
// is cancelled mid-flight the lock is still released and the session stays
// active so a later call can retry.
func (o *Orchestrator) ContinueConversation(ctx context.Context, id, msg string, includeSnippets bool) (*ContinueOutput, error) {
	if !o.mgr.AcquireLock(id) {
		return nil, o.lockFailure(id)
	}
	defer o.mgr.ReleaseLock(id)

	snap, err := o.mgr.Get(id)
	if err != nil {
		return nil, err
	}
	chat, err := o.mgr.ChatOf(id)
	if err != nil {
		return nil, err
	}

	if _, err := o.mgr.AddTurn(id, session.TurnCaller, msg, nil); err != nil {
		return nil, err
	}

	cont, err := o.adapter.Continue(ctx, chat, snap.Context, msg, includeSnippets)
	if err != nil {
		return nil, attachSession(err, id)
	}

	followUps := dialogue.ExtractFollowUps(cont.Response)
	if _, err := o.mgr.AddTurn(id, session.TurnRemote, cont.Response, map[string]interface{}{
		"follow_ups": followUps,
	}); err != nil {
		return nil, err
	}
	_ = o.mgr.UpdateProgress(id, session.ProgressUpdate{
		PendingQuestions: followUps,
		Confidence:       cont.Progress,
		HasConfidence:    true,
	})

	status := session.StatusActive
	if snap, err := o.mgr.Get(id); err == nil {
		status = snap.Status
	}
	return &ContinueOutput{
		Response:    cont.Response,
		Progress:    cont.Progress,
		Finalizable: cont.Finalizable,
		Status:      status,
	}, nil
}

// FinalizeConversation synthesizes the structured result under the session
// lock, merges in the session-derived metadata, and leaves the session in
// completed status so status queries keep working.
func (o *Orchestrator) FinalizeConversation(ctx context.Context, id string, format dialogue.SummaryFormat) (*dialogue.AnalysisResult, error) {
	if !o.mgr.AcquireLock(id) {
		return nil, o.lockFailure(id)
	}
	defer o.mgr.ReleaseLock(id)

	chat, err := o.mgr.ChatOf(id)
	if err != nil {
		return nil, err
	}

	result, err := o.adapter.Finalize(ctx, chat, format)
	if err != nil {
		return nil, attachSession(err, id)
	}

	if extracted, err := o.mgr.ExtractResults(id); err == nil {
		result.Insights = extracted.Insights
		result.Recommendations = extracted.Recommendations
		result.Metadata = extracted.Metadata
	}

	o.mgr.MarkCompleted(id)
	logging.Session("session %s finalized (%s)", id, format)
	return result, nil
}

// StatusOutput is the response of get_conversation_status.
type StatusOutput struct {
	SessionID    string         `json:"session_id"`
	Status       session.Status `json:"status"`
	TurnCount    int            `json:"turn_count"`
	LastActivity time.Time      `json:"last_activity"`
	Progress     float64        `json:"analysis_progress"`
	Finalizable  bool           `json:"can_finalize"`
}

// Status reports the session's observable state without acquiring the lock.
func (o *Orchestrator) Status(id string) (*StatusOutput, error) {
	snap, err := o.mgr.Get(id)
	if err != nil {
		return nil, err
	}
	return &StatusOutput{
		SessionID:    snap.ID,
		Status:       snap.Status,
		TurnCount:    len(snap.Turns),
		LastActivity: snap.LastActivity,
		Progress:     snap.Progress.Confidence,
		Finalizable:  dialogue.Finalizable(snap.Progress.Confidence) || snap.Status == session.StatusCompleting,
	}, nil
}

// lockFailure turns a failed acquisition into the precise session error.
func (o *Orchestrator) lockFailure(id string) error {
	snap, err := o.mgr.Get(id)
	if err != nil {
		return err
	}
	switch snap.Status {
	case session.StatusProcessing:
		return reasonerr.New(reasonerr.CodeSessionLocked, "session %s is processing another request", id)
	case session.StatusCompleted, session.StatusAbandoned:
		return reasonerr.New(reasonerr.CodeSessionNotFound, "session %s is %s", id, snap.Status)
	case session.StatusCompleting:
		return reasonerr.New(reasonerr.CodeSessionLocked, "session %s is completing; finalize it to retrieve results", id)
	default:
		return reasonerr.New(reasonerr.CodeSessionLocked, "session %s could not be locked", id)
	}
}

// readFocusFiles reads every focus file through the secure reader. File
// errors are never recovered; they surface immediately.
func (o *Orchestrator) readFocusFiles(paths []string) (map[string][]byte, error) {
	files := make(map[string][]byte, len(paths))
	for _, p := range paths {
		data, err := o.reader.Read(p)
		if err != nil {
			return nil, fmt.Errorf("focus file %s: %w", p, err)
		}
		files[p] = data
	}
	return files, nil
}

// attachSession adds the session id to a classified error without changing
// its classification.
func attachSession(err error, id string) error {
	var ce *reasonerr.ClassifiedError
	if errors.As(err, &ce) {
		return ce.WithContext("session %s", id)
	}
	return fmt.Errorf("session %s: %w", id, err)
}
