package session

import (
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"reasongate/internal/gemini"
	"reasongate/internal/logging"
	"reasongate/internal/reasonerr"
)

const (
	// DefaultIdleTimeout abandons sessions with no activity.
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultSweepInterval is how often the sweeper scans for dead sessions.
	DefaultSweepInterval = 5 * time.Minute
	// DefaultTurnCap bounds the conversation length.
	DefaultTurnCap = 50
	// completionConfidence is the progress confidence that forces completion.
	completionConfidence = 0.9
)

// ManagerConfig holds manager tunables.
type ManagerConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	TurnCap       int
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		IdleTimeout:   DefaultIdleTimeout,
		SweepInterval: DefaultSweepInterval,
		TurnCap:       DefaultTurnCap,
	}
}

// entry pairs a session with its own mutex. The manager's map lock guards
// only insertion and lookup; it is never held across an adapter call.
type entry struct {
	mu sync.Mutex
	s  Session
}

// Manager uniquely owns all sessions. Per-session serialization exists
// because a remote chat handle keeps ordered hidden state: concurrent sends
// on one handle are undefined, while distinct sessions may proceed in
// parallel.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry

	idleTimeout   time.Duration
	sweepInterval time.Duration
	turnCap       int

	now  func() time.Time
	done chan struct{}
	wg   sync.WaitGroup
}

// NewManager creates a Manager and starts its background sweeper.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.TurnCap <= 0 {
		cfg.TurnCap = DefaultTurnCap
	}

	m := &Manager{
		entries:       make(map[string]*entry),
		idleTimeout:   cfg.IdleTimeout,
		sweepInterval: cfg.SweepInterval,
		turnCap:       cfg.TurnCap,
		now:           time.Now,
		done:          make(chan struct{}),
	}

	m.wg.Add(1)
	go m.sweep()
	return m
}

// Create registers a new active session and returns its id.
func (m *Manager) Create(ctx RequestContext) string {
	id := uuid.NewString()
	now := m.now()

	m.mu.Lock()
	m.entries[id] = &entry{s: Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
		Status:       StatusActive,
		Context:      ctx,
		Progress:     ProgressRecord{},
	}}
	m.mu.Unlock()

	logging.Session("created session %s (%d focus files)", id, len(ctx.FocusArea.Files))
	return id
}

// lookup fetches the entry without touching session state.
func (m *Manager) lookup(id string) (*entry, bool) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	return e, ok
}

// expired reports idle timeout. Caller holds e.mu.
func (m *Manager) expired(e *entry) bool {
	return m.now().Sub(e.s.LastActivity) > m.idleTimeout
}

// Get returns a snapshot of the session. A missing or idle-timed-out id
// yields SESSION_NOT_FOUND; a timed-out session is marked abandoned first.
func (m *Manager) Get(id string) (Snapshot, error) {
	e, ok := m.lookup(id)
	if !ok {
		return Snapshot{}, reasonerr.New(reasonerr.CodeSessionNotFound, "session %s not found", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if m.expired(e) && !e.s.Status.Terminal() {
		e.s.Status = StatusAbandoned
		logging.Session("session %s abandoned after idle timeout", id)
		return Snapshot{}, reasonerr.New(reasonerr.CodeSessionNotFound, "session %s timed out", id)
	}
	return snapshotLocked(&e.s), nil
}

func snapshotLocked(s *Session) Snapshot {
	turns := make([]Turn, len(s.Turns))
	copy(turns, s.Turns)
	return Snapshot{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		Status:       s.Status,
		Context:      s.Context,
		Turns:        turns,
		Progress:     s.Progress,
	}
}

// AcquireLock atomically moves an active, non-expired session to processing.
// Returns false on contention, terminal status, timeout, or a missing id.
// The lock flag is true iff status is processing.
func (m *Manager) AcquireLock(id string) bool {
	e, ok := m.lookup(id)
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.Status != StatusActive || e.s.Locked || m.expired(e) {
		return false
	}
	e.s.Status = StatusProcessing
	e.s.Locked = true
	e.s.LastActivity = m.now()
	return true
}

// ReleaseLock returns a processing session to active. No-op otherwise;
// never blocks.
func (m *Manager) ReleaseLock(id string) {
	e, ok := m.lookup(id)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.Status == StatusProcessing {
		e.s.Status = StatusActive
		e.s.Locked = false
		e.s.LastActivity = m.now()
	}
}

// AddTurn appends a turn with a fresh dense id. Only permitted while the
// session is active or processing; reaching the turn cap moves the session
// to completing, and the next append is rejected.
func (m *Manager) AddTurn(id string, role TurnRole, content string, metadata map[string]interface{}) (int, error) {
	e, ok := m.lookup(id)
	if !ok {
		return 0, reasonerr.New(reasonerr.CodeSessionNotFound, "session %s not found", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.Status != StatusActive && e.s.Status != StatusProcessing {
		return 0, reasonerr.New(reasonerr.CodeSessionNotFound, "session %s is %s, not accepting turns", id, e.s.Status)
	}

	turnID := len(e.s.Turns) + 1
	e.s.Turns = append(e.s.Turns, Turn{
		ID:        turnID,
		Role:      role,
		Content:   content,
		Timestamp: m.now(),
		Metadata:  metadata,
	})
	e.s.LastActivity = m.now()

	if len(e.s.Turns) >= m.turnCap {
		e.s.Status = StatusCompleting
		e.s.Locked = false
		logging.Session("session %s reached turn cap %d, completing", id, m.turnCap)
	}
	return turnID, nil
}

// ProgressUpdate carries a partial progress merge. Nil slices leave the
// existing value alone; Confidence < 0 leaves confidence alone.
type ProgressUpdate struct {
	CompletedSteps   []string
	PendingQuestions []string
	KeyFindings      []interface{}
	Confidence       float64
	HasConfidence    bool
}

// UpdateProgress merges named fields into the progress record. Confidence
// at or above 0.9 moves the session to completing.
func (m *Manager) UpdateProgress(id string, upd ProgressUpdate) error {
	e, ok := m.lookup(id)
	if !ok {
		return reasonerr.New(reasonerr.CodeSessionNotFound, "session %s not found", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.Status.Terminal() {
		return reasonerr.New(reasonerr.CodeSessionNotFound, "session %s is %s", id, e.s.Status)
	}

	if upd.CompletedSteps != nil {
		e.s.Progress.CompletedSteps = append(e.s.Progress.CompletedSteps, upd.CompletedSteps...)
	}
	if upd.PendingQuestions != nil {
		e.s.Progress.PendingQuestions = upd.PendingQuestions
	}
	if upd.KeyFindings != nil {
		e.s.Progress.KeyFindings = append(e.s.Progress.KeyFindings, upd.KeyFindings...)
	}
	if upd.HasConfidence {
		e.s.Progress.Confidence = upd.Confidence
	}
	e.s.LastActivity = m.now()

	if e.s.Progress.Confidence >= completionConfidence && e.s.Status != StatusCompleting {
		e.s.Status = StatusCompleting
		e.s.Locked = false
		logging.Session("session %s reached confidence %.2f, completing", id, e.s.Progress.Confidence)
	}
	return nil
}

// ShouldComplete reports whether any completion condition holds: completing
// status, no pending questions, confidence >= 0.9, or the turn cap reached.
func (m *Manager) ShouldComplete(id string) bool {
	e, ok := m.lookup(id)
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.Status == StatusCompleting ||
		len(e.s.Progress.PendingQuestions) == 0 ||
		e.s.Progress.Confidence >= completionConfidence ||
		len(e.s.Turns) >= m.turnCap
}

// AttachChat binds the remote chat handle to the session. The handle is
// owned by the session and never shared between sessions.
func (m *Manager) AttachChat(id string, chat gemini.Chat) error {
	e, ok := m.lookup(id)
	if !ok {
		return reasonerr.New(reasonerr.CodeSessionNotFound, "session %s not found", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.s.Chat = chat
	e.s.LastActivity = m.now()
	return nil
}

// ChatOf returns the session's chat handle. Callers must hold the session
// lock (status processing) before sending on it.
func (m *Manager) ChatOf(id string) (gemini.Chat, error) {
	e, ok := m.lookup(id)
	if !ok {
		return nil, reasonerr.New(reasonerr.CodeSessionNotFound, "session %s not found", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.Chat == nil {
		return nil, reasonerr.New(reasonerr.CodeSessionNotFound, "session %s has no chat bound", id)
	}
	return e.s.Chat, nil
}

// MarkCompleted finalizes the session. It stays queryable; GC removes it
// after the idle timeout.
func (m *Manager) MarkCompleted(id string) {
	e, ok := m.lookup(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.s.Status.Terminal() {
		e.s.Status = StatusCompleted
		e.s.Locked = false
		e.s.LastActivity = m.now()
	}
}

// Abandon explicitly abandons a session.
func (m *Manager) Abandon(id string) {
	e, ok := m.lookup(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.s.Status.Terminal() {
		e.s.Status = StatusAbandoned
		e.s.Locked = false
		e.s.LastActivity = m.now()
	}
}

// recommendPattern mines "recommend:"/"recommends:" lines from remote turns.
var recommendPattern = regexp.MustCompile(`(?im)^.*recommend[s]?:\s*(.+)$`)

// Results is the analysis snapshot composed from session state.
type Results struct {
	Insights        []string       `json:"insights"`
	Recommendations []string       `json:"recommendations"`
	Metadata        ResultMetadata `json:"metadata"`
}

// ResultMetadata describes the session the results came from.
type ResultMetadata struct {
	SessionID      string        `json:"session_id"`
	TurnCount      int           `json:"turn_count"`
	Duration       time.Duration `json:"duration"`
	CompletedSteps []string      `json:"completed_steps"`
}

// ExtractResults composes an analysis snapshot: insights mined from turn
// metadata, recommendations mined from remote turns, plus session metadata.
func (m *Manager) ExtractResults(id string) (Results, error) {
	e, ok := m.lookup(id)
	if !ok {
		return Results{}, reasonerr.New(reasonerr.CodeSessionNotFound, "session %s not found", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var res Results
	for _, t := range e.s.Turns {
		if t.Metadata != nil {
			if findings, ok := t.Metadata["findings"].([]string); ok {
				res.Insights = append(res.Insights, findings...)
			}
			if insight, ok := t.Metadata["insight"].(string); ok {
				res.Insights = append(res.Insights, insight)
			}
		}
		if t.Role == TurnRemote {
			for _, match := range recommendPattern.FindAllStringSubmatch(t.Content, -1) {
				res.Recommendations = append(res.Recommendations, match[1])
			}
		}
	}
	res.Metadata = ResultMetadata{
		SessionID:      e.s.ID,
		TurnCount:      len(e.s.Turns),
		Duration:       m.now().Sub(e.s.CreatedAt),
		CompletedSteps: append([]string(nil), e.s.Progress.CompletedSteps...),
	}
	return res, nil
}

// sweep deletes sessions whose last activity exceeds the idle timeout.
func (m *Manager) sweep() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweepOnce()
		case <-m.done:
			return
		}
	}
}

func (m *Manager) sweepOnce() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		e.mu.Lock()
		dead := m.now().Sub(e.s.LastActivity) > m.idleTimeout
		e.mu.Unlock()
		if dead {
			delete(m.entries, id)
			logging.Session("swept session %s", id)
		}
	}
}

// Count returns the number of live sessions (test hook).
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Destroy stops the sweeper and drops all sessions (test hook).
func (m *Manager) Destroy() {
	close(m.done)
	m.wg.Wait()
	m.mu.Lock()
	m.entries = make(map[string]*entry)
	m.mu.Unlock()
}
