package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// ErrNoPRSource indicates no code host client is configured.
var ErrNoPRSource = errors.New("no pull request source configured")

// GitHubSyncService pulls a pull request from the code host and syncs it
// into a snapshot.
type GitHubSyncService struct {
	provider  *PRSourceProvider
	repoStore driven.RepoStore
	snapshots *SnapshotService
}

// NewGitHubSyncService creates a GitHubSyncService.
func NewGitHubSyncService(provider *PRSourceProvider, repoStore driven.RepoStore, snapshots *SnapshotService) *GitHubSyncService {
	return &GitHubSyncService{
		provider:  provider,
		repoStore: repoStore,
		snapshots: snapshots,
	}
}

// SyncFromGitHub fetches pull request number of the repository and runs a
// regular sync with the result.
func (s *GitHubSyncService) SyncFromGitHub(ctx context.Context, repoID string, number int) (*SyncResult, error) {
	if number <= 0 {
		return nil, fmt.Errorf("pull request number must be positive, got %d: %w", number, model.ErrValidation)
	}

	source := s.provider.Get()
	if source == nil {
		return nil, ErrNoPRSource
	}

	repo, err := s.repoStore.GetByID(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", repoID, err)
	}
	if repo == nil {
		return nil, fmt.Errorf("repository %s: %w", repoID, model.ErrNotFound)
	}

	remote, err := source.FetchPullRequest(ctx, repo.FullName, number)
	if err != nil {
		return nil, fmt.Errorf("fetch %s#%d: %w", repo.FullName, number, err)
	}
	if remote == nil {
		return nil, fmt.Errorf("pull request %s#%d: %w", repo.FullName, number, model.ErrNotFound)
	}

	slog.Info("fetched pull request from github",
		"repo", repo.FullName, "number", number, "head_sha", remote.Meta.HeadSHA, "files", len(remote.Files))

	return s.snapshots.Sync(ctx, SyncInput{
		RepoID: repo.ID,
		Number: number,
		Meta:   remote.Meta,
		Files:  remote.Files,
	})
}
