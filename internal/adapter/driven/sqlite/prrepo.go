package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PRStore = (*PRRepo)(nil)

// PRRepo is the SQLite implementation of the PRStore port interface.
type PRRepo struct {
	db *DB
}

// NewPRRepo creates a new PRRepo backed by the given DB.
func NewPRRepo(db *DB) *PRRepo {
	return &PRRepo{db: db}
}

const prColumns = `
	id, repo_id, number, title, author, head_sha, base_sha, head_branch, base_branch,
	latest_snapshot_id, files_count, additions, deletions, created_at, updated_at`

const upsertPRQuery = `
	INSERT INTO pull_requests (` + prColumns + `
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		author = excluded.author,
		head_sha = excluded.head_sha,
		base_sha = excluded.base_sha,
		head_branch = excluded.head_branch,
		base_branch = excluded.base_branch,
		latest_snapshot_id = excluded.latest_snapshot_id,
		files_count = excluded.files_count,
		additions = excluded.additions,
		deletions = excluded.deletions,
		updated_at = excluded.updated_at
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Upsert inserts a pull request or updates the row with the same ID.
// created_at is never overwritten.
func (r *PRRepo) Upsert(ctx context.Context, pr model.PullRequest) error {
	return upsertPR(ctx, r.db.Writer, pr)
}

func upsertPR(ctx context.Context, exec execer, pr model.PullRequest) error {
	_, err := exec.ExecContext(ctx, upsertPRQuery,
		pr.ID, pr.RepoID, pr.Number, pr.Title, pr.Author, pr.HeadSHA, pr.BaseSHA,
		pr.HeadBranch, pr.BaseBranch, pr.LatestSnapshotID, pr.FilesCount,
		pr.Additions, pr.Deletions, formatTime(pr.CreatedAt), formatTime(pr.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert pull request %s#%d: %w", pr.RepoID, pr.Number, err)
	}
	return nil
}

// GetByID retrieves a pull request by ID. Returns nil, nil if it does not exist.
func (r *PRRepo) GetByID(ctx context.Context, id string) (*model.PullRequest, error) {
	query := `SELECT ` + prColumns + ` FROM pull_requests WHERE id = ?`

	pr, err := scanPR(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get PR %s: %w", id, err)
	}

	return pr, nil
}

// GetByNumber retrieves a single pull request by repository and number.
// Returns nil, nil if the pull request does not exist.
func (r *PRRepo) GetByNumber(ctx context.Context, repoID string, number int) (*model.PullRequest, error) {
	query := `SELECT ` + prColumns + ` FROM pull_requests WHERE repo_id = ? AND number = ?`

	pr, err := scanPR(r.db.Reader.QueryRowContext(ctx, query, repoID, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get PR %s#%d: %w", repoID, number, err)
	}

	return pr, nil
}

// ListByRepo returns the repository's pull requests ordered by number.
func (r *PRRepo) ListByRepo(ctx context.Context, repoID string) ([]model.PullRequest, error) {
	query := `SELECT ` + prColumns + ` FROM pull_requests WHERE repo_id = ? ORDER BY number`

	rows, err := r.db.Reader.QueryContext(ctx, query, repoID)
	if err != nil {
		return nil, fmt.Errorf("query pull requests: %w", err)
	}
	defer rows.Close()

	var prs []model.PullRequest
	for rows.Next() {
		pr, err := scanPR(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pull request: %w", err)
		}
		prs = append(prs, *pr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pull requests: %w", err)
	}

	return prs, nil
}

func scanPR(s scanner) (*model.PullRequest, error) {
	var pr model.PullRequest
	var createdAt, updatedAt string

	err := s.Scan(
		&pr.ID, &pr.RepoID, &pr.Number, &pr.Title, &pr.Author, &pr.HeadSHA, &pr.BaseSHA,
		&pr.HeadBranch, &pr.BaseBranch, &pr.LatestSnapshotID, &pr.FilesCount,
		&pr.Additions, &pr.Deletions, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	pr.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	pr.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &pr, nil
}
