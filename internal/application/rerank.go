package application

import (
	"cmp"
	"slices"
	"strings"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
)

// RankedSuggestion is a suggestion annotated with the feedback score that
// placed it.
type RankedSuggestion struct {
	model.Suggestion
	FeedbackScore int
}

// Rerank orders suggestions for display: feedback score descending, then
// severity weight descending, then oldest first. ID breaks any remaining tie.
// scores maps fingerprint to aggregate vote score; missing entries score 0.
func Rerank(suggestions []model.Suggestion, scores map[string]int) []RankedSuggestion {
	ranked := make([]RankedSuggestion, 0, len(suggestions))
	for _, s := range suggestions {
		ranked = append(ranked, RankedSuggestion{Suggestion: s, FeedbackScore: scores[s.Fingerprint]})
	}

	slices.SortStableFunc(ranked, func(a, b RankedSuggestion) int {
		if c := cmp.Compare(b.FeedbackScore, a.FeedbackScore); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Severity.Weight(), a.Severity.Weight()); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	return ranked
}
