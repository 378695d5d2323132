package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"reasongate/internal/reasonerr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// go.opencensus.io starts a background worker in package init
		// (pulled in transitively); it is not stoppable from tests.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func newTestManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	m := NewManager(cfg)
	t.Cleanup(m.Destroy)
	return m
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t, DefaultManagerConfig())
	id := m.Create(RequestContext{StuckPoints: []string{"stuck"}})

	snap, err := m.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if snap.Status != StatusActive {
		t.Errorf("new session status = %s, want active", snap.Status)
	}
	if len(snap.Context.StuckPoints) != 1 {
		t.Errorf("context not preserved: %+v", snap.Context)
	}
}

func TestGetUnknownSession(t *testing.T) {
	m := newTestManager(t, DefaultManagerConfig())
	_, err := m.Get("nope")
	if !reasonerr.Is(err, reasonerr.CodeSessionNotFound) {
		t.Fatalf("expected SESSION_NOT_FOUND, got %v", err)
	}
}

func TestLockMutualExclusion(t *testing.T) {
	m := newTestManager(t, DefaultManagerConfig())
	id := m.Create(RequestContext{})

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.AcquireLock(id) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("%d goroutines acquired the lock, want exactly 1", wins)
	}

	snap, _ := m.Get(id)
	if snap.Status != StatusProcessing {
		t.Errorf("locked session status = %s, want processing", snap.Status)
	}

	m.ReleaseLock(id)
	if !m.AcquireLock(id) {
		t.Error("lock not reacquirable after release")
	}
	m.ReleaseLock(id)
}

func TestLockFlagTracksProcessing(t *testing.T) {
	m := newTestManager(t, DefaultManagerConfig())
	id := m.Create(RequestContext{})

	if !m.AcquireLock(id) {
		t.Fatal("first acquire failed")
	}
	if m.AcquireLock(id) {
		t.Fatal("acquired a held lock")
	}
	m.ReleaseLock(id)

	snap, _ := m.Get(id)
	if snap.Status != StatusActive {
		t.Errorf("released session status = %s, want active", snap.Status)
	}
}

func TestAddTurnDenseIDs(t *testing.T) {
	m := newTestManager(t, DefaultManagerConfig())
	id := m.Create(RequestContext{})

	for want := 1; want <= 5; want++ {
		got, err := m.AddTurn(id, TurnCaller, fmt.Sprintf("turn %d", want), nil)
		if err != nil {
			t.Fatalf("AddTurn %d failed: %v", want, err)
		}
		if got != want {
			t.Fatalf("turn id = %d, want %d", got, want)
		}
	}

	snap, _ := m.Get(id)
	for i, turn := range snap.Turns {
		if turn.ID != i+1 {
			t.Errorf("turn[%d].ID = %d, want %d", i, turn.ID, i+1)
		}
	}
}

func TestTurnCapForcesCompletion(t *testing.T) {
	m := newTestManager(t, ManagerConfig{TurnCap: 3})
	id := m.Create(RequestContext{})

	for i := 0; i < 3; i++ {
		if _, err := m.AddTurn(id, TurnCaller, "x", nil); err != nil {
			t.Fatalf("turn %d rejected: %v", i+1, err)
		}
	}

	snap, _ := m.Get(id)
	if snap.Status != StatusCompleting {
		t.Fatalf("status after cap = %s, want completing", snap.Status)
	}

	if _, err := m.AddTurn(id, TurnCaller, "over cap", nil); err == nil {
		t.Fatal("turn past the cap was accepted")
	}
	if !m.ShouldComplete(id) {
		t.Error("capped session should report completion")
	}
}

func TestHighConfidenceForcesCompletion(t *testing.T) {
	m := newTestManager(t, DefaultManagerConfig())
	id := m.Create(RequestContext{})

	err := m.UpdateProgress(id, ProgressUpdate{Confidence: 0.95, HasConfidence: true})
	if err != nil {
		t.Fatal(err)
	}

	snap, _ := m.Get(id)
	if snap.Status != StatusCompleting {
		t.Fatalf("status at confidence 0.95 = %s, want completing", snap.Status)
	}
	if !m.ShouldComplete(id) {
		t.Error("high-confidence session should report completion")
	}
}

func TestUpdateProgressMerges(t *testing.T) {
	m := newTestManager(t, DefaultManagerConfig())
	id := m.Create(RequestContext{})

	if err := m.UpdateProgress(id, ProgressUpdate{
		CompletedSteps:   []string{"read files"},
		PendingQuestions: []string{"q1", "q2"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateProgress(id, ProgressUpdate{
		CompletedSteps:   []string{"traced calls"},
		PendingQuestions: []string{"q2"},
	}); err != nil {
		t.Fatal(err)
	}

	snap, _ := m.Get(id)
	if len(snap.Progress.CompletedSteps) != 2 {
		t.Errorf("completed steps should accumulate, got %v", snap.Progress.CompletedSteps)
	}
	if len(snap.Progress.PendingQuestions) != 1 {
		t.Errorf("pending questions should be replaced, got %v", snap.Progress.PendingQuestions)
	}
}

func TestIdleTimeoutAbandons(t *testing.T) {
	m := newTestManager(t, DefaultManagerConfig())
	id := m.Create(RequestContext{})

	clock := time.Now()
	m.now = func() time.Time { return clock }
	clock = clock.Add(31 * time.Minute)

	if _, err := m.Get(id); !reasonerr.Is(err, reasonerr.CodeSessionNotFound) {
		t.Fatalf("expected SESSION_NOT_FOUND after idle timeout, got %v", err)
	}
	if m.AcquireLock(id) {
		t.Error("acquired lock on a timed-out session")
	}
}

func TestSweepRemovesDeadSessions(t *testing.T) {
	m := newTestManager(t, DefaultManagerConfig())
	m.Create(RequestContext{})
	m.Create(RequestContext{})

	clock := time.Now()
	m.now = func() time.Time { return clock }
	clock = clock.Add(time.Hour)

	m.sweepOnce()
	if n := m.Count(); n != 0 {
		t.Fatalf("%d sessions left after sweep, want 0", n)
	}
}

func TestTerminalStatusesAbsorb(t *testing.T) {
	m := newTestManager(t, DefaultManagerConfig())
	id := m.Create(RequestContext{})

	m.MarkCompleted(id)
	snap, _ := m.Get(id)
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", snap.Status)
	}

	m.Abandon(id)
	snap, _ = m.Get(id)
	if snap.Status != StatusCompleted {
		t.Error("completed session was moved to abandoned")
	}

	if _, err := m.AddTurn(id, TurnCaller, "x", nil); err == nil {
		t.Error("completed session accepted a turn")
	}
	if m.AcquireLock(id) {
		t.Error("completed session was lockable")
	}
}

func TestShouldCompleteOnNoPendingQuestions(t *testing.T) {
	m := newTestManager(t, DefaultManagerConfig())
	id := m.Create(RequestContext{})

	// A fresh session has no pending questions, so completion is allowed.
	if !m.ShouldComplete(id) {
		t.Error("session with no pending questions should allow completion")
	}

	if err := m.UpdateProgress(id, ProgressUpdate{PendingQuestions: []string{"open q"}}); err != nil {
		t.Fatal(err)
	}
	if m.ShouldComplete(id) {
		t.Error("session with an open question and low confidence should not complete")
	}
}

func TestExtractResults(t *testing.T) {
	m := newTestManager(t, DefaultManagerConfig())
	id := m.Create(RequestContext{})

	m.AddTurn(id, TurnCaller, "what is wrong?", nil)
	m.AddTurn(id, TurnRemote, "The pool leaks.\nI recommend: cap the pool size", map[string]interface{}{
		"insight": "connection pool unbounded",
	})
	m.AddTurn(id, TurnRemote, "Also recommends: add a health check", nil)
	m.UpdateProgress(id, ProgressUpdate{CompletedSteps: []string{"inspected pool"}})

	res, err := m.ExtractResults(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Recommendations) != 2 {
		t.Errorf("recommendations = %v, want 2 mined lines", res.Recommendations)
	}
	if len(res.Insights) != 1 || res.Insights[0] != "connection pool unbounded" {
		t.Errorf("insights = %v", res.Insights)
	}
	if res.Metadata.TurnCount != 3 {
		t.Errorf("turn count = %d, want 3", res.Metadata.TurnCount)
	}
	if res.Metadata.SessionID != id {
		t.Errorf("metadata session id = %s, want %s", res.Metadata.SessionID, id)
	}
}

func TestAttachChatUnknownSession(t *testing.T) {
	m := newTestManager(t, DefaultManagerConfig())
	if err := m.AttachChat("nope", nil); !reasonerr.Is(err, reasonerr.CodeSessionNotFound) {
		t.Fatalf("expected SESSION_NOT_FOUND, got %v", err)
	}
	if _, err := m.ChatOf("nope"); !reasonerr.Is(err, reasonerr.CodeSessionNotFound) {
		t.Fatalf("expected SESSION_NOT_FOUND, got %v", err)
	}
}

func TestParseFindingsQuarantine(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`{"type":"bug","severity":"high","location":{"file":"a.go","line":3},"description":"nil deref"}`),
		json.RawMessage(`{"type":"alien","severity":"high","location":{"file":"a.go","line":3},"description":"bad kind"}`),
		json.RawMessage(`{"type":"bug","severity":"high","location":{"file":"a.go","line":-1},"description":"bad line"}`),
		json.RawMessage(`not json`),
	}
	valid, quarantined := ParseFindings(raw)
	if len(valid) != 1 {
		t.Fatalf("valid = %d, want 1", len(valid))
	}
	if len(quarantined) != 3 {
		t.Fatalf("quarantined = %d, want 3", len(quarantined))
	}
	if string(quarantined[2]) != "not json" {
		t.Error("quarantined blobs must be preserved verbatim")
	}
}
