package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via cache=shared.
// A unique name derived from t.Name() ensures isolation between parallel tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it's a safe SQLite URI filename component
	// and cannot be misinterpreted as query parameters in the "file:%s?..." DSN.
	safeName := url.PathEscape(t.Name())
	// WAL mode is not applicable to in-memory databases; omit journal_mode pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		safeName,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("create test db writer: %v", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(context.Background()); err != nil {
		_ = writer.Close()
		t.Fatalf("ping test db writer: %v", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("create test db reader: %v", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(context.Background()); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		t.Fatalf("ping test db reader: %v", err)
	}

	db := &DB{Writer: writer, Reader: reader, path: dsn}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// seedRepo inserts a repository so foreign keys on pull_requests hold.
func seedRepo(t *testing.T, db *DB, id, fullName string) model.Repository {
	t.Helper()
	owner, name, _ := strings.Cut(fullName, "/")
	repo := model.Repository{ID: id, Owner: owner, Name: name, FullName: fullName, CreatedAt: testTime}
	require.NoError(t, NewRepoRepo(db).Create(context.Background(), repo))
	return repo
}

// seedPR inserts a repository and one pull request on it.
func seedPR(t *testing.T, db *DB, prID string) model.PullRequest {
	t.Helper()
	seedRepo(t, db, "repo_1", "octocat/hello-world")
	pr := model.PullRequest{
		ID:        prID,
		RepoID:    "repo_1",
		Number:    7,
		Title:     "Add feature",
		Author:    "octocat",
		HeadSHA:   "aaa111",
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
	require.NoError(t, NewPRRepo(db).Upsert(context.Background(), pr))
	return pr
}

// seedSnapshot inserts a pull request and an empty snapshot for it.
func seedSnapshot(t *testing.T, db *DB) model.Snapshot {
	t.Helper()
	pr := seedPR(t, db, "pr_1")
	snap := model.Snapshot{ID: "snap_1", PRID: pr.ID, HeadSHA: pr.HeadSHA, CreatedAt: testTime}
	pr.LatestSnapshotID = snap.ID
	require.NoError(t, NewSnapshotRepo(db).CreateSnapshot(context.Background(), pr, snap, nil))
	return snap
}

// seedJob inserts the snapshot chain and a queued job.
func seedJob(t *testing.T, db *DB) model.AnalysisJob {
	t.Helper()
	snap := seedSnapshot(t, db)
	job := model.AnalysisJob{
		ID:          "job_1",
		PRID:        snap.PRID,
		SnapshotID:  snap.ID,
		Status:      model.JobStatusQueued,
		Scope:       []model.Category{model.CategoryBug},
		Files:       []string{"main.go"},
		MaxComments: 10,
		Progress:    model.JobProgress{Total: 1},
		CreatedAt:   testTime,
		UpdatedAt:   testTime,
	}
	require.NoError(t, NewJobRepo(db).CreateJob(context.Background(), job))
	return job
}

func makeSuggestion(id, jobID, fingerprint string) model.Suggestion {
	return model.Suggestion{
		ID:          id,
		JobID:       jobID,
		Fingerprint: fingerprint,
		FilePath:    "main.go",
		LineStart:   3,
		LineEnd:     4,
		Severity:    model.SeverityHigh,
		Category:    model.CategoryBug,
		Title:       "Nil dereference",
		Body:        "x may be nil",
		Citations:   []string{"main.go:3"},
		Confidence:  0.8,
		CreatedAt:   testTime,
	}
}
