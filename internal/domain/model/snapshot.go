package model

import (
	"time"

	"github.com/ericfisherdev/reviewloop/internal/domain/diff"
)

// Snapshot is an immutable capture of a pull request's changed files at one
// head commit. (PRID, HeadSHA) is unique.
type Snapshot struct {
	ID         string
	PRID       string
	HeadSHA    string
	BaseSHA    string
	FilesCount int
	Additions  int
	Deletions  int
	CreatedAt  time.Time
}

// SnapshotFile is one changed file within a snapshot. When IsTooLarge is set
// the patch, hunks and line map are empty; PatchHash still reflects the
// original patch.
type SnapshotFile struct {
	ID         string
	SnapshotID string
	Path       string
	Status     FileStatus
	Language   string
	Patch      string
	PatchHash  string
	Hunks      []diff.Hunk
	LineMap    []diff.LineMapEntry
	Additions  int
	Deletions  int
	IsTooLarge bool
}

// FileInput is one changed file handed to a sync.
type FileInput struct {
	Path   string
	Status FileStatus
	Patch  string
}
