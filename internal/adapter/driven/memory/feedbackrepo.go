package memory

import (
	"context"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.FeedbackStore = (*FeedbackRepo)(nil)

// FeedbackRepo is the in-memory implementation of the FeedbackStore port.
type FeedbackRepo struct {
	db *DB
}

// NewFeedbackRepo creates a FeedbackRepo backed by db.
func NewFeedbackRepo(db *DB) *FeedbackRepo {
	return &FeedbackRepo{db: db}
}

// UpsertVote inserts the vote or updates the existing one for the same
// (comment, user), keeping its ID and CreatedAt.
func (r *FeedbackRepo) UpsertVote(_ context.Context, vote model.FeedbackVote) (model.FeedbackVote, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := voteKey{commentID: vote.CommentID, userID: vote.UserID}
	if existing, ok := r.db.votes[key]; ok {
		existing.Vote = vote.Vote
		existing.Reason = vote.Reason
		existing.UpdatedAt = vote.UpdatedAt
		r.db.votes[key] = existing
		return existing, nil
	}

	r.db.votes[key] = vote
	r.db.voteOrder = append(r.db.voteOrder, key)
	return vote, nil
}

// ListVotesByComment returns the comment's votes in creation order.
func (r *FeedbackRepo) ListVotesByComment(_ context.Context, commentID string) ([]model.FeedbackVote, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []model.FeedbackVote
	for _, key := range r.db.voteOrder {
		if key.commentID == commentID {
			out = append(out, r.db.votes[key])
		}
	}
	return out, nil
}

// ListVotesByPR returns the votes on every comment of the pull request.
func (r *FeedbackRepo) ListVotesByPR(_ context.Context, prID string) ([]model.FeedbackVote, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []model.FeedbackVote
	for _, key := range r.db.voteOrder {
		if c, ok := r.db.comments[key.commentID]; ok && c.PRID == prID {
			out = append(out, r.db.votes[key])
		}
	}
	return out, nil
}
