package memory

import (
	"context"
	"slices"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PublishStore = (*PublishRepo)(nil)

// PublishRepo is the in-memory implementation of the PublishStore port.
type PublishRepo struct {
	db *DB
}

// NewPublishRepo creates a PublishRepo backed by db.
func NewPublishRepo(db *DB) *PublishRepo {
	return &PublishRepo{db: db}
}

// CreateRun stores the run and its comments under one lock.
func (r *PublishRepo) CreateRun(_ context.Context, run model.PublishRun, comments []model.PublishedComment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := run.Key()
	if _, ok := r.db.runs[key]; ok {
		return driven.ErrPublishRunExists
	}

	run.PublishedCommentIDs = slices.Clone(run.PublishedCommentIDs)
	r.db.runs[key] = run
	for _, c := range comments {
		r.db.comments[c.ID] = c
		r.db.commentOrder = append(r.db.commentOrder, c.ID)
	}
	return nil
}

// GetRunByKey returns the run for key, or nil, nil.
func (r *PublishRepo) GetRunByKey(_ context.Context, key model.PublishKey) (*model.PublishRun, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	run, ok := r.db.runs[key]
	if !ok {
		return nil, nil
	}
	run.PublishedCommentIDs = slices.Clone(run.PublishedCommentIDs)
	return &run, nil
}

// ListCommentsByRun returns the run's comments in creation order.
func (r *PublishRepo) ListCommentsByRun(_ context.Context, runID string) ([]model.PublishedComment, error) {
	return r.filterComments(func(c model.PublishedComment) bool { return c.PublishRunID == runID }), nil
}

// ListCommentsByPR returns the pull request's comments in creation order.
func (r *PublishRepo) ListCommentsByPR(_ context.Context, prID string) ([]model.PublishedComment, error) {
	return r.filterComments(func(c model.PublishedComment) bool { return c.PRID == prID }), nil
}

// GetComment returns the comment with the given ID, or nil, nil.
func (r *PublishRepo) GetComment(_ context.Context, id string) (*model.PublishedComment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	c, ok := r.db.comments[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *PublishRepo) filterComments(keep func(model.PublishedComment) bool) []model.PublishedComment {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []model.PublishedComment
	for _, id := range r.db.commentOrder {
		if c := r.db.comments[id]; keep(c) {
			out = append(out, c)
		}
	}
	return out
}
