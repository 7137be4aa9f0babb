package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
	"github.com/ericfisherdev/reviewloop/internal/id"
)

// FeedbackInput is one user's vote on a published comment.
type FeedbackInput struct {
	CommentID string
	UserID    string
	Vote      model.Vote
	Reason    string
}

// FeedbackService records votes on published comments and aggregates them
// into the scores that drive suggestion ranking.
type FeedbackService struct {
	prStore       driven.PRStore
	publishStore  driven.PublishStore
	feedbackStore driven.FeedbackStore
	ids           IDGenerator
	now           clock
}

// NewFeedbackService creates a FeedbackService.
func NewFeedbackService(
	prStore driven.PRStore,
	publishStore driven.PublishStore,
	feedbackStore driven.FeedbackStore,
	ids IDGenerator,
) *FeedbackService {
	return &FeedbackService{
		prStore:       prStore,
		publishStore:  publishStore,
		feedbackStore: feedbackStore,
		ids:           ids,
		now:           utcNow,
	}
}

// UpsertFeedback records the user's vote on a comment. Voting again on the
// same comment updates the existing vote instead of adding another.
func (s *FeedbackService) UpsertFeedback(ctx context.Context, in FeedbackInput) (*model.FeedbackVote, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return nil, fmt.Errorf("user id is required: %w", model.ErrValidation)
	}
	if !in.Vote.IsValid() {
		return nil, fmt.Errorf("vote must be up or down, got %q: %w", in.Vote, model.ErrValidation)
	}

	if _, err := s.loadComment(ctx, in.CommentID); err != nil {
		return nil, err
	}

	now := s.now()
	stored, err := s.feedbackStore.UpsertVote(ctx, model.FeedbackVote{
		ID:        s.ids.New(id.KindFeedback),
		CommentID: in.CommentID,
		UserID:    in.UserID,
		Vote:      in.Vote,
		Reason:    in.Reason,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert vote on %s: %w", in.CommentID, err)
	}
	return &stored, nil
}

// CommentScore returns the aggregate vote score of a comment.
func (s *FeedbackService) CommentScore(ctx context.Context, commentID string) (model.Score, error) {
	if _, err := s.loadComment(ctx, commentID); err != nil {
		return model.Score{}, err
	}

	votes, err := s.feedbackStore.ListVotesByComment(ctx, commentID)
	if err != nil {
		return model.Score{}, fmt.Errorf("list votes on %s: %w", commentID, err)
	}

	var score model.Score
	for _, v := range votes {
		score.Add(v.Vote)
	}
	return score, nil
}

// PRScore aggregates every vote on the pull request's comments overall and
// per file, category and severity.
func (s *FeedbackService) PRScore(ctx context.Context, prID string) (*model.PRFeedbackSummary, error) {
	comments, votes, err := s.prVotes(ctx, prID)
	if err != nil {
		return nil, err
	}

	summary := &model.PRFeedbackSummary{
		ByFile:     make(map[string]model.Score),
		ByCategory: make(map[model.Category]model.Score),
		BySeverity: make(map[model.Severity]model.Score),
	}
	for _, v := range votes {
		c, ok := comments[v.CommentID]
		if !ok {
			continue
		}
		summary.Overall.Add(v.Vote)
		summary.ByFile[c.FilePath] = addVote(summary.ByFile[c.FilePath], v.Vote)
		summary.ByCategory[c.Category] = addVote(summary.ByCategory[c.Category], v.Vote)
		summary.BySeverity[c.Severity] = addVote(summary.BySeverity[c.Severity], v.Vote)
	}
	return summary, nil
}

// ScoresByFingerprint sums vote scores per suggestion fingerprint across all
// of the pull request's published comments.
func (s *FeedbackService) ScoresByFingerprint(ctx context.Context, prID string) (map[string]int, error) {
	comments, votes, err := s.prVotes(ctx, prID)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]int)
	for _, v := range votes {
		if c, ok := comments[v.CommentID]; ok {
			scores[c.Fingerprint] += v.Vote.Score()
		}
	}
	return scores, nil
}

func (s *FeedbackService) prVotes(ctx context.Context, prID string) (map[string]model.PublishedComment, []model.FeedbackVote, error) {
	pr, err := s.prStore.GetByID(ctx, prID)
	if err != nil {
		return nil, nil, fmt.Errorf("get pull request %s: %w", prID, err)
	}
	if pr == nil {
		return nil, nil, fmt.Errorf("pull request %s: %w", prID, model.ErrNotFound)
	}

	list, err := s.publishStore.ListCommentsByPR(ctx, prID)
	if err != nil {
		return nil, nil, fmt.Errorf("list comments of %s: %w", prID, err)
	}
	comments := make(map[string]model.PublishedComment, len(list))
	for _, c := range list {
		comments[c.ID] = c
	}

	votes, err := s.feedbackStore.ListVotesByPR(ctx, prID)
	if err != nil {
		return nil, nil, fmt.Errorf("list votes of %s: %w", prID, err)
	}
	return comments, votes, nil
}

func (s *FeedbackService) loadComment(ctx context.Context, commentID string) (*model.PublishedComment, error) {
	c, err := s.publishStore.GetComment(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("get comment %s: %w", commentID, err)
	}
	if c == nil {
		return nil, fmt.Errorf("comment %s: %w", commentID, model.ErrNotFound)
	}
	return c, nil
}

func addVote(s model.Score, v model.Vote) model.Score {
	s.Add(v)
	return s
}
