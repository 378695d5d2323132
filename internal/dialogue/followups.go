package dialogue

import (
	"regexp"
	"strings"
)

// maxFollowUps bounds the suggested follow-up questions returned per turn.
const maxFollowUps = 3

// questionPattern matches sentence-like fragments that end in a question
// mark.
var questionPattern = regexp.MustCompile(`[^.!?\n]+\?`)

// topicalQuestions maps response keywords to stock category questions,
// appended when the extracted questions leave room.
var topicalQuestions = []struct {
	keywords []string
	question string
}{
	{[]string{"async", "concurrent", "goroutine", "thread"},
		"Are there synchronization issues between the concurrent operations?"},
	{[]string{"database", "query", "sql"},
		"What is the expected data volume for these queries?"},
	{[]string{"memory", "allocation", "leak"},
		"Is memory usage growing over the lifetime of the process?"},
	{[]string{"cache", "stale"},
		"How is cache invalidation handled on the affected path?"},
}

// ExtractFollowUps returns up to three follow-up questions: every question
// found in the response, supplemented by topical suggestions gated on
// keyword presence.
func ExtractFollowUps(response string) []string {
	var out []string
	seen := make(map[string]bool)

	for _, q := range questionPattern.FindAllString(response, -1) {
		q = strings.TrimSpace(q)
		if len(q) < 8 || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
		if len(out) >= maxFollowUps {
			return out
		}
	}

	lower := strings.ToLower(response)
	for _, tq := range topicalQuestions {
		if len(out) >= maxFollowUps {
			break
		}
		for _, kw := range tq.keywords {
			if strings.Contains(lower, kw) && !seen[tq.question] {
				seen[tq.question] = true
				out = append(out, tq.question)
				break
			}
		}
	}
	return out
}
