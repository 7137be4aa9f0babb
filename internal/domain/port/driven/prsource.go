package driven

import (
	"context"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
)

// RemotePullRequest is a pull request as reported by the code host, ready to
// be synced into a snapshot.
type RemotePullRequest struct {
	Number int
	Meta   model.PRMetadata
	Files  []model.FileInput
}

// PRSource defines the driven port for reading pull requests from the code host.
type PRSource interface {
	FetchPullRequest(ctx context.Context, repoFullName string, number int) (*RemotePullRequest, error)
}
