package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/pagination"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
	"github.com/ericfisherdev/reviewloop/internal/id"
)

// RepoService manages tracked repositories and exposes their pull requests.
type RepoService struct {
	repoStore driven.RepoStore
	prStore   driven.PRStore
	ids       IDGenerator
	now       clock
}

// NewRepoService creates a RepoService.
func NewRepoService(repoStore driven.RepoStore, prStore driven.PRStore, ids IDGenerator) *RepoService {
	return &RepoService{
		repoStore: repoStore,
		prStore:   prStore,
		ids:       ids,
		now:       utcNow,
	}
}

// EnsureRepository returns the repository named fullName ("owner/name"),
// creating it on first use.
func (s *RepoService) EnsureRepository(ctx context.Context, fullName string) (*model.Repository, error) {
	fullName = strings.TrimSpace(fullName)
	if !isValidRepoName(fullName) {
		return nil, fmt.Errorf("repository %q: expected owner/repo format: %w", fullName, model.ErrValidation)
	}

	existing, err := s.repoStore.GetByFullName(ctx, fullName)
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", fullName, err)
	}
	if existing != nil {
		return existing, nil
	}

	owner, name, _ := strings.Cut(fullName, "/")
	repo := model.Repository{
		ID:        s.ids.New(id.KindRepository),
		Owner:     owner,
		Name:      name,
		FullName:  fullName,
		CreatedAt: s.now(),
	}

	if err := s.repoStore.Create(ctx, repo); err != nil {
		if errors.Is(err, driven.ErrRepoAlreadyExists) {
			// Lost a race with a concurrent create; the winner's row is authoritative.
			winner, getErr := s.repoStore.GetByFullName(ctx, fullName)
			if getErr != nil {
				return nil, fmt.Errorf("get repository %s: %w", fullName, getErr)
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, fmt.Errorf("create repository %s: %w", fullName, err)
	}

	slog.Info("repository created", "repo", fullName, "id", repo.ID)
	return &repo, nil
}

// GetRepository returns the repository with the given ID.
func (s *RepoService) GetRepository(ctx context.Context, repoID string) (*model.Repository, error) {
	repo, err := s.repoStore.GetByID(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", repoID, err)
	}
	if repo == nil {
		return nil, fmt.Errorf("repository %s: %w", repoID, model.ErrNotFound)
	}
	return repo, nil
}

// ListRepositories returns one page of repositories ordered by full name.
func (s *RepoService) ListRepositories(ctx context.Context, req pagination.Request) (pagination.Page[model.Repository], error) {
	repos, err := s.repoStore.ListAll(ctx)
	if err != nil {
		return pagination.Page[model.Repository]{}, fmt.Errorf("list repositories: %w", err)
	}
	return pagination.Paginate(repos, req), nil
}

// ListPullRequests returns one page of the repository's pull requests.
func (s *RepoService) ListPullRequests(ctx context.Context, repoID string, req pagination.Request) (pagination.Page[model.PullRequest], error) {
	if _, err := s.GetRepository(ctx, repoID); err != nil {
		return pagination.Page[model.PullRequest]{}, err
	}

	prs, err := s.prStore.ListByRepo(ctx, repoID)
	if err != nil {
		return pagination.Page[model.PullRequest]{}, fmt.Errorf("list pull requests for %s: %w", repoID, err)
	}
	return pagination.Paginate(prs, req), nil
}

// GetPullRequest returns the pull request with the given ID.
func (s *RepoService) GetPullRequest(ctx context.Context, prID string) (*model.PullRequest, error) {
	pr, err := s.prStore.GetByID(ctx, prID)
	if err != nil {
		return nil, fmt.Errorf("get pull request %s: %w", prID, err)
	}
	if pr == nil {
		return nil, fmt.Errorf("pull request %s: %w", prID, model.ErrNotFound)
	}
	return pr, nil
}

// isValidRepoName validates that name is in owner/repo format where each part
// contains only alphanumeric characters, hyphens, dots, or underscores.
func isValidRepoName(name string) bool {
	parts := strings.SplitN(name, "/", 3)
	if len(parts) != 2 {
		return false
	}

	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, ch := range part {
			if !isValidRepoChar(ch) {
				return false
			}
		}
	}

	return true
}

func isValidRepoChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '.' || ch == '_'
}
