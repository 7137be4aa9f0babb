package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.JobStore = (*JobRepo)(nil)

// JobRepo is the in-memory implementation of the JobStore port.
type JobRepo struct {
	db *DB
}

// NewJobRepo creates a JobRepo backed by db.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

// CreateJob inserts a new job.
func (r *JobRepo) CreateJob(_ context.Context, job model.AnalysisJob) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.jobs[job.ID]; ok {
		return fmt.Errorf("create job %s: already exists", job.ID)
	}
	r.db.jobs[job.ID] = cloneJob(job)
	r.db.jobOrder = append(r.db.jobOrder, job.ID)
	return nil
}

// UpdateJob replaces a stored job.
func (r *JobRepo) UpdateJob(_ context.Context, job model.AnalysisJob) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.jobs[job.ID]; !ok {
		return fmt.Errorf("update job %s: %w", job.ID, model.ErrNotFound)
	}
	r.db.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob returns the job with the given ID, or nil, nil.
func (r *JobRepo) GetJob(_ context.Context, id string) (*model.AnalysisJob, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	job, ok := r.db.jobs[id]
	if !ok {
		return nil, nil
	}
	job = cloneJob(job)
	return &job, nil
}

// ListJobsByPR returns the pull request's jobs, oldest first.
func (r *JobRepo) ListJobsByPR(_ context.Context, prID string) ([]model.AnalysisJob, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var jobs []model.AnalysisJob
	for _, id := range r.db.jobOrder {
		if job := r.db.jobs[id]; job.PRID == prID {
			jobs = append(jobs, cloneJob(job))
		}
	}
	return jobs, nil
}

// ListJobsByStatus returns every job in the given status, oldest first.
func (r *JobRepo) ListJobsByStatus(_ context.Context, status model.JobStatus) ([]model.AnalysisJob, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var jobs []model.AnalysisJob
	for _, id := range r.db.jobOrder {
		if job := r.db.jobs[id]; job.Status == status {
			jobs = append(jobs, cloneJob(job))
		}
	}
	return jobs, nil
}

// AppendEvent appends to the job's event log.
func (r *JobRepo) AppendEvent(_ context.Context, event model.JobEvent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.events[event.JobID] = append(r.db.events[event.JobID], event)
	return nil
}

// ListEvents returns the job's events in append order.
func (r *JobRepo) ListEvents(_ context.Context, jobID string) ([]model.JobEvent, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	return slices.Clone(r.db.events[jobID]), nil
}

// InsertSuggestion stores a suggestion unless its fingerprint is already
// taken within the job.
func (r *JobRepo) InsertSuggestion(_ context.Context, suggestion model.Suggestion) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.suggestions[suggestion.JobID] {
		if existing.Fingerprint == suggestion.Fingerprint {
			return driven.ErrDuplicateFingerprint
		}
	}
	suggestion.Citations = slices.Clone(suggestion.Citations)
	r.db.suggestions[suggestion.JobID] = append(r.db.suggestions[suggestion.JobID], suggestion)
	return nil
}

// ListSuggestions returns the job's suggestions in insertion order.
func (r *JobRepo) ListSuggestions(_ context.Context, jobID string) ([]model.Suggestion, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	return slices.Clone(r.db.suggestions[jobID]), nil
}

// ListSuggestionsByPR returns the suggestions of every job of the pull request.
func (r *JobRepo) ListSuggestionsByPR(_ context.Context, prID string) ([]model.Suggestion, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []model.Suggestion
	for _, id := range r.db.jobOrder {
		if r.db.jobs[id].PRID != prID {
			continue
		}
		out = append(out, r.db.suggestions[id]...)
	}
	return out, nil
}

func cloneJob(job model.AnalysisJob) model.AnalysisJob {
	job.Scope = slices.Clone(job.Scope)
	job.Files = slices.Clone(job.Files)
	job.Summary.Warnings = slices.Clone(job.Summary.Warnings)
	return job
}
