package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ericfisherdev/reviewloop/internal/domain/diff"
	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SnapshotStore = (*SnapshotRepo)(nil)

// SnapshotRepo is the SQLite implementation of the SnapshotStore port.
// Hunks and line maps are stored as JSON arrays in TEXT columns.
type SnapshotRepo struct {
	db *DB
}

// NewSnapshotRepo creates a new SnapshotRepo backed by the given DB.
func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

const snapshotColumns = `id, pr_id, head_sha, base_sha, files_count, additions, deletions, created_at`

// CreateSnapshot writes the pull request, the snapshot and its files in one
// transaction. Returns driven.ErrSnapshotExists if (pr_id, head_sha) is taken.
func (r *SnapshotRepo) CreateSnapshot(ctx context.Context, pr model.PullRequest, snapshot model.Snapshot, files []model.SnapshotFile) error {
	const snapQuery = `INSERT INTO snapshots (` + snapshotColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	const fileQuery = `
		INSERT INTO snapshot_files (
			id, snapshot_id, path, status, language, patch, patch_hash,
			hunks, line_map, additions, deletions, is_too_large
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		// The snapshot row references the pull request.
		if err := upsertPR(ctx, tx, pr); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, snapQuery,
			snapshot.ID, snapshot.PRID, snapshot.HeadSHA, snapshot.BaseSHA,
			snapshot.FilesCount, snapshot.Additions, snapshot.Deletions, formatTime(snapshot.CreatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("create snapshot %s: %w", snapshot.ID, driven.ErrSnapshotExists)
			}
			return fmt.Errorf("create snapshot %s: %w", snapshot.ID, err)
		}

		stmt, err := tx.PrepareContext(ctx, fileQuery)
		if err != nil {
			return fmt.Errorf("prepare snapshot file insert: %w", err)
		}
		defer stmt.Close()

		for _, f := range files {
			hunks, err := marshalJSONArray(f.Hunks)
			if err != nil {
				return fmt.Errorf("marshal hunks of %s: %w", f.Path, err)
			}
			lineMap, err := marshalJSONArray(f.LineMap)
			if err != nil {
				return fmt.Errorf("marshal line map of %s: %w", f.Path, err)
			}

			_, err = stmt.ExecContext(ctx,
				f.ID, snapshot.ID, f.Path, string(f.Status), f.Language, f.Patch, f.PatchHash,
				hunks, lineMap, f.Additions, f.Deletions, boolToInt(f.IsTooLarge),
			)
			if err != nil {
				return fmt.Errorf("insert snapshot file %s: %w", f.Path, err)
			}
		}

		return nil
	})
}

// GetSnapshot retrieves a snapshot by ID. Returns nil, nil if it does not exist.
func (r *SnapshotRepo) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	const query = `SELECT ` + snapshotColumns + ` FROM snapshots WHERE id = ?`

	snap, err := scanSnapshot(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	return snap, nil
}

// GetSnapshotByHead retrieves the pull request's snapshot for headSHA.
// Returns nil, nil if none exists.
func (r *SnapshotRepo) GetSnapshotByHead(ctx context.Context, prID, headSHA string) (*model.Snapshot, error) {
	const query = `SELECT ` + snapshotColumns + ` FROM snapshots WHERE pr_id = ? AND head_sha = ?`

	snap, err := scanSnapshot(r.db.Reader.QueryRowContext(ctx, query, prID, headSHA))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s@%s: %w", prID, headSHA, err)
	}
	return snap, nil
}

// ListFiles returns the snapshot's files in insertion order.
func (r *SnapshotRepo) ListFiles(ctx context.Context, snapshotID string) ([]model.SnapshotFile, error) {
	const query = `
		SELECT id, snapshot_id, path, status, language, patch, patch_hash,
		       hunks, line_map, additions, deletions, is_too_large
		FROM snapshot_files
		WHERE snapshot_id = ?
		ORDER BY rowid
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("list files of snapshot %s: %w", snapshotID, err)
	}
	defer rows.Close()

	var files []model.SnapshotFile
	for rows.Next() {
		var f model.SnapshotFile
		var status, hunks, lineMap string
		var tooLarge int

		err := rows.Scan(
			&f.ID, &f.SnapshotID, &f.Path, &status, &f.Language, &f.Patch, &f.PatchHash,
			&hunks, &lineMap, &f.Additions, &f.Deletions, &tooLarge,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot file: %w", err)
		}

		f.Status = model.FileStatus(status)
		f.IsTooLarge = tooLarge != 0
		f.Hunks = []diff.Hunk{}
		if err := json.Unmarshal([]byte(hunks), &f.Hunks); err != nil {
			return nil, fmt.Errorf("unmarshal hunks of %s: %w", f.Path, err)
		}
		f.LineMap = []diff.LineMapEntry{}
		if err := json.Unmarshal([]byte(lineMap), &f.LineMap); err != nil {
			return nil, fmt.Errorf("unmarshal line map of %s: %w", f.Path, err)
		}

		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot files: %w", err)
	}

	return files, nil
}

func scanSnapshot(s scanner) (*model.Snapshot, error) {
	var snap model.Snapshot
	var createdAt string

	err := s.Scan(
		&snap.ID, &snap.PRID, &snap.HeadSHA, &snap.BaseSHA,
		&snap.FilesCount, &snap.Additions, &snap.Deletions, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	snap.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &snap, nil
}

// marshalJSONArray encodes v, writing "[]" for a nil slice.
func marshalJSONArray[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
