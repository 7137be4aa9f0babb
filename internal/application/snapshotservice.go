package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ericfisherdev/reviewloop/internal/domain/diff"
	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/pagination"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
	"github.com/ericfisherdev/reviewloop/internal/id"
)

const (
	// MaxFilesPerSnapshot is the largest file set a single sync accepts.
	MaxFilesPerSnapshot = 500
	// MaxPatchBytes is the largest patch that is parsed and stored. Larger
	// patches are kept as too-large placeholders.
	MaxPatchBytes = 300 * 1024
)

// SyncInput is one pull request state pushed into the engine.
type SyncInput struct {
	RepoID string
	Number int
	Meta   model.PRMetadata
	Files  []model.FileInput
}

// SyncCounts aggregates the files of the resulting snapshot.
type SyncCounts struct {
	Files     int `json:"files"`
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	TooLarge  int `json:"too_large"`
}

// SyncResult is the outcome of a sync. Idempotent is true when the pull
// request's latest snapshot already matched the incoming head SHA and nothing
// was written.
type SyncResult struct {
	PR         model.PullRequest
	Snapshot   model.Snapshot
	Counts     SyncCounts
	Idempotent bool
}

// SnapshotService turns pull request file sets into immutable snapshots.
type SnapshotService struct {
	repoStore     driven.RepoStore
	prStore       driven.PRStore
	snapshotStore driven.SnapshotStore
	ids           IDGenerator
	locks         *keyedMutex
	now           clock
}

// NewSnapshotService creates a SnapshotService.
func NewSnapshotService(
	repoStore driven.RepoStore,
	prStore driven.PRStore,
	snapshotStore driven.SnapshotStore,
	ids IDGenerator,
) *SnapshotService {
	return &SnapshotService{
		repoStore:     repoStore,
		prStore:       prStore,
		snapshotStore: snapshotStore,
		ids:           ids,
		locks:         newKeyedMutex(),
		now:           utcNow,
	}
}

// Sync records the pull request state described by in. A sync whose head SHA
// matches the latest snapshot is a no-op. Concurrent syncs of the same pull
// request are serialized.
func (s *SnapshotService) Sync(ctx context.Context, in SyncInput) (*SyncResult, error) {
	if err := validateSyncInput(in); err != nil {
		return nil, err
	}

	repo, err := s.repoStore.GetByID(ctx, in.RepoID)
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", in.RepoID, err)
	}
	if repo == nil {
		return nil, fmt.Errorf("repository %s: %w", in.RepoID, model.ErrNotFound)
	}

	unlock := s.locks.Lock("pr:" + in.RepoID + "#" + strconv.Itoa(in.Number))
	defer unlock()

	pr, err := s.prStore.GetByNumber(ctx, in.RepoID, in.Number)
	if err != nil {
		return nil, fmt.Errorf("get pull request %s#%d: %w", repo.FullName, in.Number, err)
	}

	if pr != nil && pr.LatestSnapshotID != "" {
		latest, err := s.snapshotStore.GetSnapshot(ctx, pr.LatestSnapshotID)
		if err != nil {
			return nil, fmt.Errorf("get snapshot %s: %w", pr.LatestSnapshotID, err)
		}
		if latest != nil && latest.HeadSHA == in.Meta.HeadSHA {
			counts, err := s.countsFor(ctx, *latest)
			if err != nil {
				return nil, err
			}
			return &SyncResult{PR: *pr, Snapshot: *latest, Counts: counts, Idempotent: true}, nil
		}
	}

	if len(in.Files) > MaxFilesPerSnapshot {
		return nil, fmt.Errorf("sync %s#%d: %d files exceeds cap of %d: %w",
			repo.FullName, in.Number, len(in.Files), MaxFilesPerSnapshot, model.ErrLimitExceeded)
	}

	now := s.now()

	if pr == nil {
		// Written together with its first snapshot.
		pr = &model.PullRequest{
			ID:        s.ids.New(id.KindPullRequest),
			RepoID:    in.RepoID,
			Number:    in.Number,
			Title:     in.Meta.Title,
			Author:    in.Meta.Author,
			CreatedAt: now,
			UpdatedAt: now,
		}
	} else {
		// The head moved back to a commit that was already captured.
		revisited, err := s.snapshotStore.GetSnapshotByHead(ctx, pr.ID, in.Meta.HeadSHA)
		if err != nil {
			return nil, fmt.Errorf("get snapshot for head %s: %w", in.Meta.HeadSHA, err)
		}
		if revisited != nil {
			counts, err := s.countsFor(ctx, *revisited)
			if err != nil {
				return nil, err
			}
			updated := applySnapshot(*pr, in.Meta, *revisited, now)
			if err := s.prStore.Upsert(ctx, updated); err != nil {
				return nil, fmt.Errorf("update pull request %s: %w", pr.ID, err)
			}
			slog.Info("pull request head returned to earlier snapshot",
				"pr_id", pr.ID, "snapshot_id", revisited.ID, "head_sha", in.Meta.HeadSHA)
			return &SyncResult{PR: updated, Snapshot: *revisited, Counts: counts}, nil
		}
	}

	snap := model.Snapshot{
		ID:        s.ids.New(id.KindSnapshot),
		PRID:      pr.ID,
		HeadSHA:   in.Meta.HeadSHA,
		BaseSHA:   in.Meta.BaseSHA,
		CreatedAt: now,
	}

	files := make([]model.SnapshotFile, 0, len(in.Files))
	var counts SyncCounts
	for _, f := range in.Files {
		sf := s.buildFile(snap.ID, f)
		files = append(files, sf)

		counts.Additions += sf.Additions
		counts.Deletions += sf.Deletions
		if sf.IsTooLarge {
			counts.TooLarge++
		}
	}
	counts.Files = len(files)

	snap.FilesCount = counts.Files
	snap.Additions = counts.Additions
	snap.Deletions = counts.Deletions

	updated := applySnapshot(*pr, in.Meta, snap, now)
	if err := s.snapshotStore.CreateSnapshot(ctx, updated, snap, files); err != nil {
		if errors.Is(err, driven.ErrSnapshotExists) {
			// Another process sharing the store captured this head first.
			if res, getErr := s.existingSnapshot(ctx, pr.ID, snap.HeadSHA); getErr == nil && res != nil {
				return res, nil
			}
		}
		return nil, fmt.Errorf("create snapshot for %s@%s: %w", pr.ID, snap.HeadSHA, err)
	}

	slog.Info("snapshot created",
		"pr_id", pr.ID,
		"snapshot_id", snap.ID,
		"head_sha", snap.HeadSHA,
		"files", counts.Files,
		"too_large", counts.TooLarge,
	)

	return &SyncResult{PR: updated, Snapshot: snap, Counts: counts}, nil
}

// existingSnapshot loads the pull request's snapshot for headSHA as an
// idempotent sync result. Returns nil, nil when either row is missing.
func (s *SnapshotService) existingSnapshot(ctx context.Context, prID, headSHA string) (*SyncResult, error) {
	snap, err := s.snapshotStore.GetSnapshotByHead(ctx, prID, headSHA)
	if err != nil || snap == nil {
		return nil, err
	}
	pr, err := s.prStore.GetByID(ctx, prID)
	if err != nil || pr == nil {
		return nil, err
	}
	counts, err := s.countsFor(ctx, *snap)
	if err != nil {
		return nil, err
	}
	return &SyncResult{PR: *pr, Snapshot: *snap, Counts: counts, Idempotent: true}, nil
}

// GetSnapshot returns the snapshot with the given ID.
func (s *SnapshotService) GetSnapshot(ctx context.Context, snapshotID string) (*model.Snapshot, error) {
	snap, err := s.snapshotStore.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", snapshotID, err)
	}
	if snap == nil {
		return nil, fmt.Errorf("snapshot %s: %w", snapshotID, model.ErrNotFound)
	}
	return snap, nil
}

// ListSnapshotFiles returns one page of the snapshot's files.
func (s *SnapshotService) ListSnapshotFiles(ctx context.Context, snapshotID string, req pagination.Request) (pagination.Page[model.SnapshotFile], error) {
	if _, err := s.GetSnapshot(ctx, snapshotID); err != nil {
		return pagination.Page[model.SnapshotFile]{}, err
	}

	files, err := s.snapshotStore.ListFiles(ctx, snapshotID)
	if err != nil {
		return pagination.Page[model.SnapshotFile]{}, fmt.Errorf("list files of snapshot %s: %w", snapshotID, err)
	}
	return pagination.Paginate(files, req), nil
}

func (s *SnapshotService) buildFile(snapshotID string, in model.FileInput) model.SnapshotFile {
	sum := sha256.Sum256([]byte(in.Patch))
	adds, dels := diff.CountChanges(in.Patch)

	status := in.Status
	if status == "" {
		status = model.FileStatusModified
	}

	sf := model.SnapshotFile{
		ID:         s.ids.New(id.KindSnapshotFile),
		SnapshotID: snapshotID,
		Path:       in.Path,
		Status:     status,
		Language:   diff.DetectLanguage(in.Path),
		PatchHash:  hex.EncodeToString(sum[:]),
		Additions:  adds,
		Deletions:  dels,
	}

	if len(in.Patch) > MaxPatchBytes {
		sf.IsTooLarge = true
		sf.Hunks = []diff.Hunk{}
		sf.LineMap = []diff.LineMapEntry{}
		return sf
	}

	res := diff.Parse(in.Patch)
	if res.Orphans > 0 {
		slog.Warn("patch lines outside any hunk ignored",
			"snapshot_id", snapshotID, "path", in.Path, "lines", res.Orphans)
	}

	sf.Patch = in.Patch
	sf.Hunks = res.Hunks
	sf.LineMap = res.LineMap
	return sf
}

func (s *SnapshotService) countsFor(ctx context.Context, snap model.Snapshot) (SyncCounts, error) {
	files, err := s.snapshotStore.ListFiles(ctx, snap.ID)
	if err != nil {
		return SyncCounts{}, fmt.Errorf("list files of snapshot %s: %w", snap.ID, err)
	}

	counts := SyncCounts{
		Files:     snap.FilesCount,
		Additions: snap.Additions,
		Deletions: snap.Deletions,
	}
	for _, f := range files {
		if f.IsTooLarge {
			counts.TooLarge++
		}
	}
	return counts, nil
}

func applySnapshot(pr model.PullRequest, meta model.PRMetadata, snap model.Snapshot, now time.Time) model.PullRequest {
	pr.Title = meta.Title
	pr.Author = meta.Author
	pr.HeadSHA = snap.HeadSHA
	pr.BaseSHA = snap.BaseSHA
	pr.HeadBranch = meta.HeadBranch
	pr.BaseBranch = meta.BaseBranch
	pr.LatestSnapshotID = snap.ID
	pr.FilesCount = snap.FilesCount
	pr.Additions = snap.Additions
	pr.Deletions = snap.Deletions
	pr.UpdatedAt = now
	return pr
}

func validateSyncInput(in SyncInput) error {
	if in.RepoID == "" {
		return fmt.Errorf("repo id is required: %w", model.ErrValidation)
	}
	if in.Number <= 0 {
		return fmt.Errorf("pull request number must be positive, got %d: %w", in.Number, model.ErrValidation)
	}
	if in.Meta.HeadSHA == "" {
		return fmt.Errorf("head sha is required: %w", model.ErrValidation)
	}

	seen := make(map[string]struct{}, len(in.Files))
	for i, f := range in.Files {
		if f.Path == "" {
			return fmt.Errorf("file %d: path is required: %w", i, model.ErrValidation)
		}
		if f.Status != "" && !f.Status.IsValid() {
			return fmt.Errorf("file %s: unknown status %q: %w", f.Path, f.Status, model.ErrValidation)
		}
		if _, dup := seen[f.Path]; dup {
			return fmt.Errorf("file %s: duplicate path: %w", f.Path, model.ErrValidation)
		}
		seen[f.Path] = struct{}{}
	}
	return nil
}
