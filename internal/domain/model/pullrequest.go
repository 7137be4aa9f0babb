package model

import "time"

// PullRequest is a pull request tracked by reviewloop. It is created lazily on
// the first sync and updated on every sync that produces a new snapshot.
type PullRequest struct {
	ID               string
	RepoID           string
	Number           int
	Title            string
	Author           string
	HeadSHA          string
	BaseSHA          string
	HeadBranch       string
	BaseBranch       string
	LatestSnapshotID string // Empty until the first snapshot exists.

	// Denormalized from the latest snapshot.
	FilesCount int
	Additions  int
	Deletions  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PRMetadata is the caller-supplied description of a pull request at sync time.
type PRMetadata struct {
	Title      string
	Author     string
	HeadSHA    string
	BaseSHA    string
	HeadBranch string
	BaseBranch string
}
