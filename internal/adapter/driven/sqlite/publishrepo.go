package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PublishStore = (*PublishRepo)(nil)

// PublishRepo is the SQLite implementation of the PublishStore port.
type PublishRepo struct {
	db *DB
}

// NewPublishRepo creates a new PublishRepo backed by the given DB.
func NewPublishRepo(db *DB) *PublishRepo {
	return &PublishRepo{db: db}
}

const publishRunColumns = `id, pr_id, job_id, mode, dry_run, published_comment_ids, created_at`

const commentColumns = `
	id, pr_id, job_id, publish_run_id, suggestion_id, fingerprint, file_path, line,
	severity, category, body, external_id, state, created_at`

// CreateRun writes the run and its comments in one transaction.
// Returns driven.ErrPublishRunExists if (pr_id, job_id, mode) is taken.
func (r *PublishRepo) CreateRun(ctx context.Context, run model.PublishRun, comments []model.PublishedComment) error {
	const runQuery = `INSERT INTO publish_runs (` + publishRunColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	const commentQuery = `INSERT INTO published_comments (` + commentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	ids, err := marshalJSONArray(run.PublishedCommentIDs)
	if err != nil {
		return fmt.Errorf("marshal published comment ids: %w", err)
	}

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, runQuery,
			run.ID, run.PRID, run.JobID, string(run.Mode), boolToInt(run.DryRun), ids, formatTime(run.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("create publish run %s: %w", run.ID, driven.ErrPublishRunExists)
			}
			return fmt.Errorf("create publish run %s: %w", run.ID, err)
		}

		if len(comments) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, commentQuery)
		if err != nil {
			return fmt.Errorf("prepare comment insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range comments {
			_, err := stmt.ExecContext(ctx,
				c.ID, c.PRID, c.JobID, run.ID, c.SuggestionID, c.Fingerprint, c.FilePath, c.Line,
				string(c.Severity), string(c.Category), c.Body, c.ExternalID, string(c.State),
				formatTime(c.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("insert comment %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// GetRunByKey returns the run for key. Returns nil, nil if none exists.
func (r *PublishRepo) GetRunByKey(ctx context.Context, key model.PublishKey) (*model.PublishRun, error) {
	const query = `SELECT ` + publishRunColumns + ` FROM publish_runs WHERE pr_id = ? AND job_id = ? AND mode = ?`

	var run model.PublishRun
	var mode, ids, createdAt string
	var dryRun int

	err := r.db.Reader.QueryRowContext(ctx, query, key.PRID, key.JobID, string(key.Mode)).Scan(
		&run.ID, &run.PRID, &run.JobID, &mode, &dryRun, &ids, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get publish run %s/%s/%s: %w", key.PRID, key.JobID, key.Mode, err)
	}

	run.Mode = model.PublishMode(mode)
	run.DryRun = dryRun != 0
	if err := json.Unmarshal([]byte(ids), &run.PublishedCommentIDs); err != nil {
		return nil, fmt.Errorf("unmarshal published comment ids: %w", err)
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &run, nil
}

// ListCommentsByRun returns the run's comments in insertion order.
func (r *PublishRepo) ListCommentsByRun(ctx context.Context, runID string) ([]model.PublishedComment, error) {
	const query = `SELECT ` + commentColumns + ` FROM published_comments WHERE publish_run_id = ? ORDER BY rowid`
	return r.queryComments(ctx, query, runID)
}

// ListCommentsByPR returns the pull request's comments, oldest first.
func (r *PublishRepo) ListCommentsByPR(ctx context.Context, prID string) ([]model.PublishedComment, error) {
	const query = `SELECT ` + commentColumns + ` FROM published_comments WHERE pr_id = ? ORDER BY rowid`
	return r.queryComments(ctx, query, prID)
}

// GetComment retrieves a comment by ID. Returns nil, nil if it does not exist.
func (r *PublishRepo) GetComment(ctx context.Context, id string) (*model.PublishedComment, error) {
	const query = `SELECT ` + commentColumns + ` FROM published_comments WHERE id = ?`

	c, err := scanComment(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comment %s: %w", id, err)
	}
	return c, nil
}

func (r *PublishRepo) queryComments(ctx context.Context, query string, args ...any) ([]model.PublishedComment, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []model.PublishedComment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

func scanComment(s scanner) (*model.PublishedComment, error) {
	var c model.PublishedComment
	var severity, category, state, createdAt string

	err := s.Scan(
		&c.ID, &c.PRID, &c.JobID, &c.PublishRunID, &c.SuggestionID, &c.Fingerprint, &c.FilePath,
		&c.Line, &severity, &category, &c.Body, &c.ExternalID, &state, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	c.Severity = model.Severity(severity)
	c.Category = model.Category(category)
	c.State = model.CommentState(state)
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &c, nil
}
