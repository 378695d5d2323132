// Package tournament runs parallel hypothesis tournaments: several sessions
// explore competing root-cause theories in bounded-parallel rounds, weak
// theories are eliminated, strong sessions cross-pollinate insights into
// struggling ones, and the survivors are ranked into a winner.
package tournament

import (
	"time"

	"reasongate/internal/session"
)

// Category tags a hypothesis by the kind of defect it proposes.
type Category string

const (
	CategoryPerformance  Category = "performance"
	CategoryBug          Category = "bug"
	CategorySecurity     Category = "security"
	CategoryArchitecture Category = "architecture"
	CategoryIntegration  Category = "integration"
)

// Hypothesis is a theory about the root cause of an issue.
type Hypothesis struct {
	ID           string   `json:"id"`
	Theory       string   `json:"theory"`
	TestApproach string   `json:"test_approach"`
	Category     Category `json:"category"`
	Priority     float64  `json:"priority"` // prior, in [0,1]
}

// Polarity classifies evidence relative to its hypothesis.
type Polarity string

const (
	Supporting    Polarity = "supporting"
	Contradicting Polarity = "contradicting"
	Neutral       Polarity = "neutral"
)

// Evidence is one observation gathered while exploring a hypothesis.
type Evidence struct {
	Polarity     Polarity              `json:"polarity"`
	Description  string                `json:"description"`
	Location     *session.CodeLocation `json:"location,omitempty"`
	Confidence   float64               `json:"confidence"`
	DiscoveredAt time.Time             `json:"discovered_at"`
}

// ExplorationResult is the outcome of one hypothesis exploration.
type ExplorationResult struct {
	Hypothesis        Hypothesis        `json:"hypothesis"`
	SessionID         string            `json:"session_id"`
	Evidence          []Evidence        `json:"evidence"`
	Confidence        float64           `json:"confidence"`
	Depth             int               `json:"exploration_depth"` // remote round-trips
	KeyInsights       []string          `json:"key_insights"`
	ReproductionSteps []string          `json:"reproduction_steps,omitempty"`
	RelatedFindings   []session.Finding `json:"related_findings,omitempty"`
}

// Round records one elimination pass.
type Round struct {
	Number        int                  `json:"number"`
	Hypotheses    []Hypothesis         `json:"hypotheses"`
	Results       []*ExplorationResult `json:"results"`
	EliminatedIDs []string             `json:"eliminated_ids"`
	CrossInsights []string             `json:"cross_round_insights,omitempty"`
}

// Recommendation is one suggested action out of the tournament.
type Recommendation struct {
	Priority  string `json:"priority"` // critical | high | medium | low
	Action    string `json:"action"`
	Rationale string `json:"rationale,omitempty"`
}

// Result is the full tournament outcome.
type Result struct {
	Issue              string             `json:"issue"`
	Status             string             `json:"status"` // complete | partial
	TotalHypotheses    int                `json:"total_hypotheses"`
	Rounds             []Round            `json:"rounds"`
	Winner             *ExplorationResult `json:"winner,omitempty"`
	RunnerUp           *ExplorationResult `json:"runner_up,omitempty"`
	Findings           []session.Finding  `json:"findings,omitempty"`
	Primary            []Recommendation   `json:"primary_recommendations"`
	Secondary          []Recommendation   `json:"secondary_recommendations,omitempty"`
	Duration           time.Duration      `json:"duration"`
	ParallelEfficiency float64            `json:"parallel_efficiency"`
}

// Config holds the tournament tunables.
type Config struct {
	MaxHypotheses        int
	MaxRounds            int
	EliminationThreshold float64
	Parallelism          int
	CrossPollination     bool
}

// DefaultConfig returns the stock tournament shape.
func DefaultConfig() Config {
	return Config{
		MaxHypotheses:        6,
		MaxRounds:            3,
		EliminationThreshold: 0.3,
		Parallelism:          4,
		CrossPollination:     true,
	}
}

// normalize clamps a config into its legal ranges.
func (c Config) normalize() Config {
	if c.MaxHypotheses < 2 {
		c.MaxHypotheses = 2
	}
	if c.MaxHypotheses > 20 {
		c.MaxHypotheses = 20
	}
	if c.MaxRounds < 1 {
		c.MaxRounds = 1
	}
	if c.MaxRounds > 5 {
		c.MaxRounds = 5
	}
	if c.EliminationThreshold <= 0 {
		c.EliminationThreshold = 0.3
	}
	if c.Parallelism < 1 {
		c.Parallelism = 1
	}
	if c.Parallelism > 10 {
		c.Parallelism = 10
	}
	return c
}
