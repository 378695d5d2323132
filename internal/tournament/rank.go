package tournament

import (
	"math"
	"sort"
)

// confidenceEpsilon is the band within which two confidences count as equal.
const confidenceEpsilon = 1e-6

// supportingCount tallies a result's supporting evidence for tie-breaking.
func supportingCount(r *ExplorationResult) int {
	n := 0
	for _, ev := range r.Evidence {
		if ev.Polarity == Supporting {
			n++
		}
	}
	return n
}

// rankResults sorts results by confidence, best first. Confidences equal
// within epsilon break first on supporting-evidence count, then on the
// lower hypothesis ordinal, making the ranking deterministic.
func rankResults(results []*ExplorationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if math.Abs(a.Confidence-b.Confidence) > confidenceEpsilon {
			return a.Confidence > b.Confidence
		}
		sa, sb := supportingCount(a), supportingCount(b)
		if sa != sb {
			return sa > sb
		}
		return ordinal(a.Hypothesis.ID) < ordinal(b.Hypothesis.ID)
	})
}

// eliminate applies one round of elimination: drop results below the
// threshold, then keep the top half (ceil) of the round's field, ranked.
// Returns the surviving results and the eliminated hypothesis ids.
func eliminate(results []*ExplorationResult, threshold float64, fieldSize int) (survivors []*ExplorationResult, eliminated []string) {
	ranked := make([]*ExplorationResult, len(results))
	copy(ranked, results)
	rankResults(ranked)

	keep := (fieldSize + 1) / 2
	for _, r := range ranked {
		if r.Confidence >= threshold && len(survivors) < keep {
			survivors = append(survivors, r)
		} else {
			eliminated = append(eliminated, r.Hypothesis.ID)
		}
	}
	return survivors, eliminated
}
