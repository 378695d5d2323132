// Package session owns all reasoning-session state. Sessions are reachable
// only through the Manager by id; no other component holds a reference to
// mutable session state beyond a single call.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"reasongate/internal/gemini"
)

// Status is the lifecycle state of a session. Transitions are monotone
// except active<->processing; completed and abandoned are absorbing.
type Status string

const (
	StatusActive     Status = "active"
	StatusProcessing Status = "processing"
	StatusCompleting Status = "completing"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether the status absorbs all further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// TurnRole identifies the author of a turn.
type TurnRole string

const (
	TurnCaller TurnRole = "caller"
	TurnRemote TurnRole = "remote"
	TurnSystem TurnRole = "system"
)

// Turn is one appended utterance within a session. Turn ids are dense and
// strictly increasing from 1 within a session.
type Turn struct {
	ID        int                    `json:"id"`
	Role      TurnRole               `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ProgressRecord tracks observable analysis progress.
type ProgressRecord struct {
	CompletedSteps   []string      `json:"completed_steps"`
	PendingQuestions []string      `json:"pending_questions"`
	KeyFindings      []interface{} `json:"key_findings"`
	Confidence       float64       `json:"confidence"`
}

// FindingKind tags a validated finding.
type FindingKind string

const (
	FindingBug          FindingKind = "bug"
	FindingPerformance  FindingKind = "performance"
	FindingArchitecture FindingKind = "architecture"
	FindingSecurity     FindingKind = "security"
)

// Severity orders findings for reporting.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank supports >= comparisons on severities.
var severityRank = map[Severity]int{
	SeverityLow: 0, SeverityMedium: 1, SeverityHigh: 2, SeverityCritical: 3,
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// CodeLocation points into the project source.
type CodeLocation struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column,omitempty"`
	Function string `json:"function_name,omitempty"`
}

// Finding is a validated analysis finding.
type Finding struct {
	Kind        FindingKind  `json:"type"`
	Severity    Severity     `json:"severity"`
	Location    CodeLocation `json:"location"`
	Description string       `json:"description"`
	Evidence    []string     `json:"evidence,omitempty"`
}

// Validate rejects findings with out-of-range fields rather than guessing.
func (f Finding) Validate() error {
	switch f.Kind {
	case FindingBug, FindingPerformance, FindingArchitecture, FindingSecurity:
	default:
		return fmt.Errorf("unknown finding kind %q", f.Kind)
	}
	switch f.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
	default:
		return fmt.Errorf("unknown severity %q", f.Severity)
	}
	if f.Location.Line < 0 {
		return fmt.Errorf("negative line %d", f.Location.Line)
	}
	if f.Description == "" {
		return fmt.Errorf("empty description")
	}
	return nil
}

// FocusArea names the code the analysis should concentrate on.
type FocusArea struct {
	Files        []string       `json:"files"`
	EntryPoints  []CodeLocation `json:"entry_points,omitempty"`
	ServiceNames []string       `json:"service_names,omitempty"`
}

// RequestContext is the caller-supplied analysis context. Findings that fail
// validation land in Quarantined untouched instead of being guessed at.
type RequestContext struct {
	AttemptedApproaches []string          `json:"attempted_approaches"`
	PartialFindings     []Finding         `json:"partial_findings"`
	Quarantined         []json.RawMessage `json:"-"`
	StuckPoints         []string          `json:"stuck_points"`
	FocusArea           FocusArea         `json:"focus_area"`
	BudgetSeconds       int               `json:"time_budget_seconds"`
}

// ParseFindings splits raw finding blobs into validated findings and a
// quarantine list of the entries that did not validate.
func ParseFindings(raw []json.RawMessage) (valid []Finding, quarantined []json.RawMessage) {
	for _, blob := range raw {
		var f Finding
		if err := json.Unmarshal(blob, &f); err != nil || f.Validate() != nil {
			quarantined = append(quarantined, blob)
			continue
		}
		valid = append(valid, f)
	}
	return valid, quarantined
}

// Session is the in-memory context of one multi-turn dialogue. All fields
// are owned by the Manager and mutated only under the session's entry lock.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
	Status       Status
	Context      RequestContext
	Turns        []Turn
	Progress     ProgressRecord
	Chat         gemini.Chat
	Locked       bool
}

// Snapshot is a copy of session state safe to hold outside the manager.
type Snapshot struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
	Status       Status
	Context      RequestContext
	Turns        []Turn
	Progress     ProgressRecord
}
