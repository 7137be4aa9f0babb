package memory

import (
	"context"
	"slices"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SnapshotStore = (*SnapshotRepo)(nil)

// SnapshotRepo is the in-memory implementation of the SnapshotStore port.
type SnapshotRepo struct {
	db *DB
}

// NewSnapshotRepo creates a SnapshotRepo backed by db.
func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// CreateSnapshot stores the snapshot, its files and the pull request under one lock.
func (r *SnapshotRepo) CreateSnapshot(_ context.Context, pr model.PullRequest, snapshot model.Snapshot, files []model.SnapshotFile) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.snapshots {
		if existing.PRID == snapshot.PRID && existing.HeadSHA == snapshot.HeadSHA {
			return driven.ErrSnapshotExists
		}
	}

	r.db.snapshots[snapshot.ID] = snapshot
	r.db.snapshotFiles[snapshot.ID] = slices.Clone(files)
	r.db.putPR(pr)
	return nil
}

// GetSnapshot returns the snapshot with the given ID, or nil, nil.
func (r *SnapshotRepo) GetSnapshot(_ context.Context, id string) (*model.Snapshot, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	snap, ok := r.db.snapshots[id]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// GetSnapshotByHead returns the pull request's snapshot for headSHA, or nil, nil.
func (r *SnapshotRepo) GetSnapshotByHead(_ context.Context, prID, headSHA string) (*model.Snapshot, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, snap := range r.db.snapshots {
		if snap.PRID == prID && snap.HeadSHA == headSHA {
			return &snap, nil
		}
	}
	return nil, nil
}

// ListFiles returns the snapshot's files in insertion order.
func (r *SnapshotRepo) ListFiles(_ context.Context, snapshotID string) ([]model.SnapshotFile, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	return slices.Clone(r.db.snapshotFiles[snapshotID]), nil
}
