package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
)

// ErrSnapshotExists indicates a snapshot for the same (PR, head SHA) already exists.
var ErrSnapshotExists = errors.New("snapshot already exists")

// SnapshotStore defines the driven port for snapshot persistence.
// Snapshots and their files are immutable once created.
type SnapshotStore interface {
	// CreateSnapshot writes the snapshot, all of its files and pr (already
	// pointing at the snapshot) atomically. Nothing is written when it fails.
	CreateSnapshot(ctx context.Context, pr model.PullRequest, snapshot model.Snapshot, files []model.SnapshotFile) error
	// GetSnapshot returns nil, nil when the snapshot does not exist.
	GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error)
	// GetSnapshotByHead returns nil, nil when the pull request has no snapshot
	// for headSHA.
	GetSnapshotByHead(ctx context.Context, prID, headSHA string) (*model.Snapshot, error)
	// ListFiles returns the snapshot's files in insertion order.
	ListFiles(ctx context.Context, snapshotID string) ([]model.SnapshotFile, error)
}
