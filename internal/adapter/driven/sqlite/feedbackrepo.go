package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.FeedbackStore = (*FeedbackRepo)(nil)

// FeedbackRepo is the SQLite implementation of the FeedbackStore port.
type FeedbackRepo struct {
	db *DB
}

// NewFeedbackRepo creates a new FeedbackRepo backed by the given DB.
func NewFeedbackRepo(db *DB) *FeedbackRepo {
	return &FeedbackRepo{db: db}
}

const voteColumns = `v.id, v.comment_id, v.user_id, v.vote, v.reason, v.created_at, v.updated_at`

// UpsertVote inserts the vote or updates the existing (comment_id, user_id)
// row, then returns the stored row.
func (r *FeedbackRepo) UpsertVote(ctx context.Context, vote model.FeedbackVote) (model.FeedbackVote, error) {
	const upsert = `
		INSERT INTO feedback_votes (id, comment_id, user_id, vote, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(comment_id, user_id) DO UPDATE SET
			vote = excluded.vote,
			reason = excluded.reason,
			updated_at = excluded.updated_at
	`
	const selectQuery = `SELECT ` + voteColumns + ` FROM feedback_votes v WHERE v.comment_id = ? AND v.user_id = ?`

	var stored model.FeedbackVote
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsert,
			vote.ID, vote.CommentID, vote.UserID, string(vote.Vote), vote.Reason,
			formatTime(vote.CreatedAt), formatTime(vote.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("upsert vote on %s by %s: %w", vote.CommentID, vote.UserID, err)
		}

		v, err := scanVote(tx.QueryRowContext(ctx, selectQuery, vote.CommentID, vote.UserID))
		if err != nil {
			return fmt.Errorf("read back vote: %w", err)
		}
		stored = *v
		return nil
	})
	if err != nil {
		return model.FeedbackVote{}, err
	}
	return stored, nil
}

// ListVotesByComment returns the comment's votes in insertion order.
func (r *FeedbackRepo) ListVotesByComment(ctx context.Context, commentID string) ([]model.FeedbackVote, error) {
	const query = `SELECT ` + voteColumns + ` FROM feedback_votes v WHERE v.comment_id = ? ORDER BY v.rowid`
	return r.queryVotes(ctx, query, commentID)
}

// ListVotesByPR returns the votes on every comment of the pull request.
func (r *FeedbackRepo) ListVotesByPR(ctx context.Context, prID string) ([]model.FeedbackVote, error) {
	const query = `
		SELECT ` + voteColumns + `
		FROM feedback_votes v
		JOIN published_comments c ON c.id = v.comment_id
		WHERE c.pr_id = ?
		ORDER BY v.rowid
	`
	return r.queryVotes(ctx, query, prID)
}

func (r *FeedbackRepo) queryVotes(ctx context.Context, query string, args ...any) ([]model.FeedbackVote, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	var votes []model.FeedbackVote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return votes, nil
}

func scanVote(s scanner) (*model.FeedbackVote, error) {
	var v model.FeedbackVote
	var vote, createdAt, updatedAt string

	if err := s.Scan(&v.ID, &v.CommentID, &v.UserID, &vote, &v.Reason, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	v.Vote = model.Vote(vote)
	var err error
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if v.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &v, nil
}
