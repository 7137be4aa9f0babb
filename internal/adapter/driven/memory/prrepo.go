package memory

import (
	"context"
	"slices"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PRStore = (*PRRepo)(nil)

// PRRepo is the in-memory implementation of the PRStore port.
type PRRepo struct {
	db *DB
}

// NewPRRepo creates a PRRepo backed by db.
func NewPRRepo(db *DB) *PRRepo {
	return &PRRepo{db: db}
}

// Upsert inserts or replaces a pull request by ID.
func (r *PRRepo) Upsert(_ context.Context, pr model.PullRequest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.putPR(pr)
	return nil
}

// putPR inserts or replaces pr. Callers hold db.mu.
func (db *DB) putPR(pr model.PullRequest) {
	if _, ok := db.prs[pr.ID]; !ok {
		db.prOrder = append(db.prOrder, pr.ID)
	}
	db.prs[pr.ID] = pr
}

// GetByID returns the pull request with the given ID, or nil, nil.
func (r *PRRepo) GetByID(_ context.Context, id string) (*model.PullRequest, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	pr, ok := r.db.prs[id]
	if !ok {
		return nil, nil
	}
	return &pr, nil
}

// GetByNumber returns the pull request with the given repository and number, or nil, nil.
func (r *PRRepo) GetByNumber(_ context.Context, repoID string, number int) (*model.PullRequest, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, pr := range r.db.prs {
		if pr.RepoID == repoID && pr.Number == number {
			return &pr, nil
		}
	}
	return nil, nil
}

// ListByRepo returns the repository's pull requests ordered by number.
func (r *PRRepo) ListByRepo(_ context.Context, repoID string) ([]model.PullRequest, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var prs []model.PullRequest
	for _, id := range r.db.prOrder {
		if pr := r.db.prs[id]; pr.RepoID == repoID {
			prs = append(prs, pr)
		}
	}
	slices.SortStableFunc(prs, func(a, b model.PullRequest) int { return a.Number - b.Number })
	return prs, nil
}
