package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/reviewloop/internal/domain/diff"
	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

const samplePatch = "@@ -1,2 +1,3 @@\n line one\n-line two\n+line 2\n+line three"

func TestSnapshotRepo_CreateAndListFiles(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSnapshotRepo(db)
	ctx := context.Background()

	pr := seedPR(t, db, "pr_1")
	parsed := diff.Parse(samplePatch)

	snap := model.Snapshot{
		ID: "snap_1", PRID: pr.ID, HeadSHA: "aaa111", BaseSHA: "base0",
		FilesCount: 3, Additions: 2, Deletions: 1, CreatedAt: testTime,
	}
	files := []model.SnapshotFile{
		{
			ID: "file_z", Path: "z/last.go", Status: model.FileStatusModified, Language: "go",
			Patch: samplePatch, PatchHash: "h1", Hunks: parsed.Hunks, LineMap: parsed.LineMap,
			Additions: 2, Deletions: 1,
		},
		{ID: "file_a", Path: "a/first.md", Status: model.FileStatusAdded, Language: "markdown", PatchHash: "h2"},
		{ID: "file_m", Path: "big.json", Status: model.FileStatusModified, Language: "json", PatchHash: "h3", IsTooLarge: true},
	}
	require.NoError(t, repo.CreateSnapshot(ctx, pr, snap, files))

	got, err := repo.GetSnapshot(ctx, "snap_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "aaa111", got.HeadSHA)
	assert.Equal(t, "base0", got.BaseSHA)
	assert.Equal(t, 3, got.FilesCount)
	assert.True(t, got.CreatedAt.Equal(testTime))

	listed, err := repo.ListFiles(ctx, "snap_1")
	require.NoError(t, err)
	require.Len(t, listed, 3)

	// Insertion order, not path order.
	assert.Equal(t, "z/last.go", listed[0].Path)
	assert.Equal(t, "a/first.md", listed[1].Path)
	assert.Equal(t, "big.json", listed[2].Path)

	assert.Equal(t, "snap_1", listed[0].SnapshotID)
	assert.Equal(t, parsed.Hunks, listed[0].Hunks)
	assert.Equal(t, parsed.LineMap, listed[0].LineMap)
	assert.Empty(t, listed[1].Hunks)
	assert.NotNil(t, listed[1].Hunks)
	assert.True(t, listed[2].IsTooLarge)
	assert.False(t, listed[0].IsTooLarge)
}

func TestSnapshotRepo_DuplicateHead(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSnapshotRepo(db)
	ctx := context.Background()

	snap := seedSnapshot(t, db)
	snap.ID = "snap_2"
	pr, err := NewPRRepo(db).GetByID(ctx, snap.PRID)
	require.NoError(t, err)

	err = repo.CreateSnapshot(ctx, *pr, snap, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrSnapshotExists)
}

func TestSnapshotRepo_FailedFileInsertRollsBack(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSnapshotRepo(db)
	ctx := context.Background()

	pr := seedPR(t, db, "pr_1")
	snap := model.Snapshot{ID: "snap_1", PRID: pr.ID, HeadSHA: "aaa111", CreatedAt: testTime}
	files := []model.SnapshotFile{
		{ID: "file_1", Path: "a.go", Status: model.FileStatusAdded, Language: "go", PatchHash: "h"},
		{ID: "file_2", Path: "a.go", Status: model.FileStatusAdded, Language: "go", PatchHash: "h"},
	}

	require.Error(t, repo.CreateSnapshot(ctx, pr, snap, files))

	got, err := repo.GetSnapshot(ctx, "snap_1")
	require.NoError(t, err)
	assert.Nil(t, got, "snapshot row must not survive a failed file insert")
}

func TestSnapshotRepo_CreateSnapshotWritesPullRequest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSnapshotRepo(db)
	prs := NewPRRepo(db)
	ctx := context.Background()

	seedRepo(t, db, "repo_1", "octocat/hello-world")
	pr := model.PullRequest{
		ID: "pr_1", RepoID: "repo_1", Number: 7, HeadSHA: "aaa111",
		LatestSnapshotID: "snap_1", FilesCount: 1, CreatedAt: testTime, UpdatedAt: testTime,
	}
	snap := model.Snapshot{ID: "snap_1", PRID: pr.ID, HeadSHA: "aaa111", FilesCount: 1, CreatedAt: testTime}
	dup := []model.SnapshotFile{
		{ID: "file_1", Path: "a.go", Status: model.FileStatusAdded, Language: "go", PatchHash: "h"},
		{ID: "file_2", Path: "a.go", Status: model.FileStatusAdded, Language: "go", PatchHash: "h"},
	}

	require.Error(t, repo.CreateSnapshot(ctx, pr, snap, dup))
	missing, err := prs.GetByID(ctx, "pr_1")
	require.NoError(t, err)
	assert.Nil(t, missing, "pull request must not survive a failed snapshot")

	require.NoError(t, repo.CreateSnapshot(ctx, pr, snap, dup[:1]))
	stored, err := prs.GetByID(ctx, "pr_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "snap_1", stored.LatestSnapshotID)
}

func TestSnapshotRepo_GetSnapshotByHead(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSnapshotRepo(db)
	ctx := context.Background()

	snap := seedSnapshot(t, db)

	got, err := repo.GetSnapshotByHead(ctx, snap.PRID, snap.HeadSHA)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.ID, got.ID)

	missing, err := repo.GetSnapshotByHead(ctx, snap.PRID, "zzz999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
