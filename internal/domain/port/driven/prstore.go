package driven

import (
	"context"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
)

// PRStore defines the driven port for pull request persistence.
// Get methods return nil, nil when the pull request does not exist.
type PRStore interface {
	// Upsert inserts the pull request or updates the row with the same ID.
	Upsert(ctx context.Context, pr model.PullRequest) error
	GetByID(ctx context.Context, id string) (*model.PullRequest, error)
	GetByNumber(ctx context.Context, repoID string, number int) (*model.PullRequest, error)
	// ListByRepo returns the repository's pull requests ordered by number.
	ListByRepo(ctx context.Context, repoID string) ([]model.PullRequest, error)
}
