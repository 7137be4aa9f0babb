package driven

import (
	"context"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
)

// FeedbackStore defines the driven port for comment votes.
type FeedbackStore interface {
	// UpsertVote inserts the vote or, when (CommentID, UserID) already has one,
	// updates its vote, reason and UpdatedAt. The stored row is returned; on
	// update it keeps its original ID and CreatedAt.
	UpsertVote(ctx context.Context, vote model.FeedbackVote) (model.FeedbackVote, error)
	ListVotesByComment(ctx context.Context, commentID string) ([]model.FeedbackVote, error)
	// ListVotesByPR returns the votes on every comment of the pull request.
	ListVotesByPR(ctx context.Context, prID string) ([]model.FeedbackVote, error)
}
