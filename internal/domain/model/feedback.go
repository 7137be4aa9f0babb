package model

import "time"

// FeedbackVote is one user's vote on a published comment. (CommentID, UserID)
// is unique; revoting updates the existing row.
type FeedbackVote struct {
	ID        string
	CommentID string
	UserID    string
	Vote      Vote
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Score aggregates votes as up minus down.
type Score struct {
	Up    int `json:"up"`
	Down  int `json:"down"`
	Total int `json:"score"`
}

// Add folds one vote into the score.
func (s *Score) Add(v Vote) {
	switch v {
	case VoteUp:
		s.Up++
	case VoteDown:
		s.Down++
	}
	s.Total = s.Up - s.Down
}

// PRFeedbackSummary aggregates vote scores for a pull request.
type PRFeedbackSummary struct {
	Overall    Score
	ByFile     map[string]Score
	ByCategory map[Category]Score
	BySeverity map[Severity]Score
}
