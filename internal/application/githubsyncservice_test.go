package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/reviewloop/internal/application"
	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

type mockPRSource struct {
	fetch func(ctx context.Context, repoFullName string, number int) (*driven.RemotePullRequest, error)
}

func (m *mockPRSource) FetchPullRequest(ctx context.Context, repoFullName string, number int) (*driven.RemotePullRequest, error) {
	return m.fetch(ctx, repoFullName, number)
}

func TestSyncFromGitHub_SyncsFetchedPullRequest(t *testing.T) {
	f := newFixture(t)
	repo := f.repo(t)

	var gotRepo string
	source := &mockPRSource{fetch: func(_ context.Context, fullName string, number int) (*driven.RemotePullRequest, error) {
		gotRepo = fullName
		return &driven.RemotePullRequest{
			Number: number,
			Meta:   model.PRMetadata{Title: "Fix it", HeadSHA: "abc123", BaseSHA: "def456"},
			Files:  []model.FileInput{{Path: "main.go", Status: model.FileStatusModified, Patch: tenLinePatch()}},
		}, nil
	}}
	svc := application.NewGitHubSyncService(application.NewPRSourceProvider(source), f.repos, f.snapshotSvc)

	res, err := svc.SyncFromGitHub(context.Background(), repo.ID, 42)
	require.NoError(t, err)

	assert.Equal(t, "octo/widgets", gotRepo)
	assert.Equal(t, 42, res.PR.Number)
	assert.Equal(t, "abc123", res.Snapshot.HeadSHA)
	assert.Equal(t, 1, res.Counts.Files)
}

func TestSyncFromGitHub_Errors(t *testing.T) {
	f := newFixture(t)
	repo := f.repo(t)
	ctx := context.Background()

	noSource := application.NewGitHubSyncService(application.NewPRSourceProvider(nil), f.repos, f.snapshotSvc)
	_, err := noSource.SyncFromGitHub(ctx, repo.ID, 1)
	assert.ErrorIs(t, err, application.ErrNoPRSource)

	failing := &mockPRSource{fetch: func(context.Context, string, int) (*driven.RemotePullRequest, error) {
		return nil, errors.New("rate limited")
	}}
	svc := application.NewGitHubSyncService(application.NewPRSourceProvider(failing), f.repos, f.snapshotSvc)

	_, err = svc.SyncFromGitHub(ctx, repo.ID, 1)
	assert.ErrorContains(t, err, "rate limited")

	_, err = svc.SyncFromGitHub(ctx, "repo_missing", 1)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
