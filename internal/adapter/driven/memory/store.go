// Package memory implements every store port in process memory. It backs
// tests and ephemeral deployments (REVIEWLOOP_STORE=memory). The repo types
// mirror the sqlite adapter: each wraps a shared *DB.
package memory

import (
	"sync"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
)

// DB holds all entities in maps guarded by a single RWMutex. Repos return
// copies so callers never share backing arrays with the store.
type DB struct {
	mu sync.RWMutex

	repos     map[string]model.Repository
	repoOrder []string

	prs     map[string]model.PullRequest
	prOrder []string

	snapshots     map[string]model.Snapshot
	snapshotFiles map[string][]model.SnapshotFile

	jobs        map[string]model.AnalysisJob
	jobOrder    []string
	events      map[string][]model.JobEvent
	suggestions map[string][]model.Suggestion

	runs         map[model.PublishKey]model.PublishRun
	comments     map[string]model.PublishedComment
	commentOrder []string

	votes     map[voteKey]model.FeedbackVote
	voteOrder []voteKey
}

type voteKey struct {
	commentID string
	userID    string
}

// NewDB returns an empty in-memory database.
func NewDB() *DB {
	return &DB{
		repos:         make(map[string]model.Repository),
		prs:           make(map[string]model.PullRequest),
		snapshots:     make(map[string]model.Snapshot),
		snapshotFiles: make(map[string][]model.SnapshotFile),
		jobs:          make(map[string]model.AnalysisJob),
		events:        make(map[string][]model.JobEvent),
		suggestions:   make(map[string][]model.Suggestion),
		runs:          make(map[model.PublishKey]model.PublishRun),
		comments:      make(map[string]model.PublishedComment),
		votes:         make(map[voteKey]model.FeedbackVote),
	}
}
