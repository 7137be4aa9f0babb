package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
)

// ErrDuplicateFingerprint indicates the job already has a suggestion with the
// same fingerprint.
var ErrDuplicateFingerprint = errors.New("duplicate suggestion fingerprint")

// JobStore defines the driven port for analysis job persistence, including
// the job's event log and suggestions.
type JobStore interface {
	CreateJob(ctx context.Context, job model.AnalysisJob) error
	// UpdateJob replaces the mutable fields (status, progress, summary, error,
	// timestamps) of an existing job.
	UpdateJob(ctx context.Context, job model.AnalysisJob) error
	// GetJob returns nil, nil when the job does not exist.
	GetJob(ctx context.Context, id string) (*model.AnalysisJob, error)
	// ListJobsByPR returns the pull request's jobs, oldest first.
	ListJobsByPR(ctx context.Context, prID string) ([]model.AnalysisJob, error)
	// ListJobsByStatus returns every job in the given status, oldest first.
	ListJobsByStatus(ctx context.Context, status model.JobStatus) ([]model.AnalysisJob, error)

	AppendEvent(ctx context.Context, event model.JobEvent) error
	// ListEvents returns the job's events in append order.
	ListEvents(ctx context.Context, jobID string) ([]model.JobEvent, error)

	// InsertSuggestion returns ErrDuplicateFingerprint when (JobID, Fingerprint)
	// is already taken.
	InsertSuggestion(ctx context.Context, suggestion model.Suggestion) error
	// ListSuggestions returns the job's suggestions in insertion order.
	ListSuggestions(ctx context.Context, jobID string) ([]model.Suggestion, error)
	// ListSuggestionsByPR returns the suggestions of every job of the pull request.
	ListSuggestionsByPR(ctx context.Context, prID string) ([]model.Suggestion, error)
}
