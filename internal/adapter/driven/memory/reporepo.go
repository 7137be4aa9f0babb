package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoStore = (*RepoRepo)(nil)

// RepoRepo is the in-memory implementation of the RepoStore port.
type RepoRepo struct {
	db *DB
}

// NewRepoRepo creates a RepoRepo backed by db.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{db: db}
}

// Create inserts a repository. Returns driven.ErrRepoAlreadyExists when the
// full name is taken.
func (r *RepoRepo) Create(_ context.Context, repo model.Repository) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.repos {
		if existing.FullName == repo.FullName {
			return driven.ErrRepoAlreadyExists
		}
	}
	r.db.repos[repo.ID] = repo
	r.db.repoOrder = append(r.db.repoOrder, repo.ID)
	return nil
}

// GetByID returns the repository with the given ID, or nil, nil.
func (r *RepoRepo) GetByID(_ context.Context, id string) (*model.Repository, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	repo, ok := r.db.repos[id]
	if !ok {
		return nil, nil
	}
	return &repo, nil
}

// GetByFullName returns the repository with the given owner/name, or nil, nil.
func (r *RepoRepo) GetByFullName(_ context.Context, fullName string) (*model.Repository, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, repo := range r.db.repos {
		if repo.FullName == fullName {
			return &repo, nil
		}
	}
	return nil, nil
}

// ListAll returns all repositories ordered by full name.
func (r *RepoRepo) ListAll(_ context.Context) ([]model.Repository, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	repos := make([]model.Repository, 0, len(r.db.repoOrder))
	for _, id := range r.db.repoOrder {
		repos = append(repos, r.db.repos[id])
	}
	slices.SortStableFunc(repos, func(a, b model.Repository) int {
		return strings.Compare(a.FullName, b.FullName)
	})
	return repos, nil
}
