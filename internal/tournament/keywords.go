package tournament

// Keyword tables for evidence extraction and insight gating. Kept together
// as data so polarity detection can be tuned and tested without touching the
// scheduler.

// supportingKeywords mark a line as supporting evidence.
var supportingKeywords = []string{
	"confirm", "validate", "support", "consistent with", "aligns with",
	"indicates", "found", "discovered", "identified", "observed",
}

// contradictingKeywords mark a line as contradicting evidence.
var contradictingKeywords = []string{
	"contradict", "disprove", "inconsistent", "rules out", "unlikely",
	"no evidence", "not found", "absence of",
}

// strengthWords map hedging vocabulary to evidence confidence.
var strengthWords = []struct {
	words []string
	conf  float64
}{
	{[]string{"certainly", "definitely", "clearly", "confirmed"}, 0.85},
	{[]string{"likely", "probably", "strongly suggests"}, 0.6},
	{[]string{"possibly", "might", "may", "could be"}, 0.3},
}

// defaultEvidenceConfidence applies when no strength word matches.
const defaultEvidenceConfidence = 0.5

// significantInsightWords gate cross-pollination: only pattern-level
// insights travel between sessions.
var significantInsightWords = []string{"pattern", "common", "related", "system-wide"}

// categoryKeywords map hypothesis text to a category.
var categoryKeywords = []struct {
	words []string
	cat   Category
}{
	{[]string{"performance", "slow", "latency", "n+1", "bottleneck", "memory", "leak"}, CategoryPerformance},
	{[]string{"security", "injection", "auth", "vulnerab", "exploit"}, CategorySecurity},
	{[]string{"architecture", "design", "coupling", "structure", "layering"}, CategoryArchitecture},
	{[]string{"integration", "boundary", "api contract", "service", "cross-system"}, CategoryIntegration},
}

// reproductionSuccessWords mark a response as a successful reproduction.
var reproductionSuccessWords = []string{
	"reproduce", "reproduction", "steps to trigger", "triggered", "manifests",
}
