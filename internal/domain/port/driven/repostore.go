package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
)

// ErrRepoAlreadyExists indicates a repository with the same full name already exists.
var ErrRepoAlreadyExists = errors.New("repository already exists")

// RepoStore defines the driven port for repository persistence.
// Create returns ErrRepoAlreadyExists if the full name is taken.
// Get methods return nil, nil when the repository does not exist.
type RepoStore interface {
	Create(ctx context.Context, repo model.Repository) error
	GetByID(ctx context.Context, id string) (*model.Repository, error)
	GetByFullName(ctx context.Context, fullName string) (*model.Repository, error)
	ListAll(ctx context.Context) ([]model.Repository, error)
}
