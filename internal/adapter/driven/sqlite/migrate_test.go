package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_FileDatabaseIsIdempotent(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "reviewloop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, RunMigrations(db.Writer))
	require.NoError(t, RunMigrations(db.Writer), "second run must be a no-op")
	require.NoError(t, db.Ping(context.Background()))

	tables := []string{
		"repositories", "pull_requests", "snapshots", "snapshot_files",
		"analysis_jobs", "job_events", "suggestions",
		"publish_runs", "published_comments", "feedback_votes",
	}
	for _, table := range tables {
		var name string
		err := db.Reader.QueryRowContext(context.Background(),
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
		assert.Equal(t, table, name)
	}
}
