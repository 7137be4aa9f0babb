package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
)

// ErrPublishRunExists indicates a run for the same (PR, job, mode) already exists.
var ErrPublishRunExists = errors.New("publish run already exists")

// PublishStore defines the driven port for publish runs and the comments they create.
type PublishStore interface {
	// CreateRun writes the run and its comments atomically.
	CreateRun(ctx context.Context, run model.PublishRun, comments []model.PublishedComment) error
	// GetRunByKey returns nil, nil when no run exists for the key.
	GetRunByKey(ctx context.Context, key model.PublishKey) (*model.PublishRun, error)
	ListCommentsByRun(ctx context.Context, runID string) ([]model.PublishedComment, error)
	// ListCommentsByPR returns the pull request's comments, oldest first.
	ListCommentsByPR(ctx context.Context, prID string) ([]model.PublishedComment, error)
	// GetComment returns nil, nil when the comment does not exist.
	GetComment(ctx context.Context, id string) (*model.PublishedComment, error)
}
