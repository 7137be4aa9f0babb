package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/pagination"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
	"github.com/ericfisherdev/reviewloop/internal/id"
)

// PublishInput requests that a job's suggestions be posted to its pull request.
type PublishInput struct {
	PRID   string
	JobID  string
	Mode   model.PublishMode
	DryRun bool
}

// PublishResult describes the publish run for a (PR, job, mode) key.
// Idempotent is true when the run already existed.
type PublishResult struct {
	RunID          string
	DryRun         bool
	PublishedCount int
	Comments       []model.PublishedComment
	Idempotent     bool
}

// PublishService turns job suggestions into comments exactly once per
// (PR, job, mode).
type PublishService struct {
	prStore      driven.PRStore
	jobStore     driven.JobStore
	publishStore driven.PublishStore
	scorer       FeedbackScorer
	ids          IDGenerator
	locks        *keyedMutex
	now          clock
}

// NewPublishService creates a PublishService. scorer orders the published
// comments and may be nil.
func NewPublishService(
	prStore driven.PRStore,
	jobStore driven.JobStore,
	publishStore driven.PublishStore,
	scorer FeedbackScorer,
	ids IDGenerator,
) *PublishService {
	return &PublishService{
		prStore:      prStore,
		jobStore:     jobStore,
		publishStore: publishStore,
		scorer:       scorer,
		ids:          ids,
		locks:        newKeyedMutex(),
		now:          utcNow,
	}
}

// Publish records the run for in's key, creating one comment per suggestion
// unless DryRun is set. A repeated call for the same key returns the
// original run unchanged, whatever its DryRun flag.
func (s *PublishService) Publish(ctx context.Context, in PublishInput) (*PublishResult, error) {
	if !in.Mode.IsValid() {
		return nil, fmt.Errorf("unknown publish mode %q: %w", in.Mode, model.ErrValidation)
	}

	pr, err := s.prStore.GetByID(ctx, in.PRID)
	if err != nil {
		return nil, fmt.Errorf("get pull request %s: %w", in.PRID, err)
	}
	if pr == nil {
		return nil, fmt.Errorf("pull request %s: %w", in.PRID, model.ErrNotFound)
	}

	job, err := s.jobStore.GetJob(ctx, in.JobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", in.JobID, err)
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", in.JobID, model.ErrNotFound)
	}
	if job.PRID != pr.ID {
		return nil, fmt.Errorf("job %s belongs to %s, not %s: %w", job.ID, job.PRID, pr.ID, model.ErrJobPRMismatch)
	}

	key := model.PublishKey{PRID: pr.ID, JobID: job.ID, Mode: in.Mode}
	unlock := s.locks.Lock("publish:" + key.PRID + "|" + key.JobID + "|" + string(key.Mode))
	defer unlock()

	existing, err := s.publishStore.GetRunByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get publish run: %w", err)
	}
	if existing != nil {
		return s.existingResult(ctx, *existing)
	}

	if job.Status != model.JobStatusDone {
		return nil, fmt.Errorf("job %s is %s, only done jobs can be published: %w", job.ID, job.Status, model.ErrValidation)
	}

	now := s.now()
	run := model.PublishRun{
		ID:        s.ids.New(id.KindPublishRun),
		PRID:      pr.ID,
		JobID:     job.ID,
		Mode:      in.Mode,
		DryRun:    in.DryRun,
		CreatedAt: now,
	}

	comments := []model.PublishedComment{}
	if !in.DryRun {
		comments, err = s.buildComments(ctx, run)
		if err != nil {
			return nil, err
		}
	}
	run.PublishedCommentIDs = make([]string, 0, len(comments))
	for _, c := range comments {
		run.PublishedCommentIDs = append(run.PublishedCommentIDs, c.ID)
	}

	if err := s.publishStore.CreateRun(ctx, run, comments); err != nil {
		if errors.Is(err, driven.ErrPublishRunExists) {
			// Another process sharing the store won the race.
			winner, getErr := s.publishStore.GetRunByKey(ctx, key)
			if getErr == nil && winner != nil {
				return s.existingResult(ctx, *winner)
			}
		}
		return nil, fmt.Errorf("create publish run: %w", err)
	}

	slog.Info("publish run created",
		"run_id", run.ID,
		"pr_id", pr.ID,
		"job_id", job.ID,
		"mode", in.Mode,
		"dry_run", in.DryRun,
		"comments", len(comments),
	)

	return &PublishResult{
		RunID:          run.ID,
		DryRun:         run.DryRun,
		PublishedCount: len(comments),
		Comments:       comments,
	}, nil
}

// ListComments returns one page of the pull request's published comments,
// oldest first.
func (s *PublishService) ListComments(ctx context.Context, prID string, req pagination.Request) (pagination.Page[model.PublishedComment], error) {
	pr, err := s.prStore.GetByID(ctx, prID)
	if err != nil {
		return pagination.Page[model.PublishedComment]{}, fmt.Errorf("get pull request %s: %w", prID, err)
	}
	if pr == nil {
		return pagination.Page[model.PublishedComment]{}, fmt.Errorf("pull request %s: %w", prID, model.ErrNotFound)
	}

	comments, err := s.publishStore.ListCommentsByPR(ctx, prID)
	if err != nil {
		return pagination.Page[model.PublishedComment]{}, fmt.Errorf("list comments of %s: %w", prID, err)
	}
	return pagination.Paginate(comments, req), nil
}

func (s *PublishService) existingResult(ctx context.Context, run model.PublishRun) (*PublishResult, error) {
	comments, err := s.publishStore.ListCommentsByRun(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("list comments of run %s: %w", run.ID, err)
	}
	if comments == nil {
		comments = []model.PublishedComment{}
	}
	return &PublishResult{
		RunID:          run.ID,
		DryRun:         run.DryRun,
		PublishedCount: len(comments),
		Comments:       comments,
		Idempotent:     true,
	}, nil
}

// buildComments creates one comment per suggestion in ranked order.
func (s *PublishService) buildComments(ctx context.Context, run model.PublishRun) ([]model.PublishedComment, error) {
	suggestions, err := s.jobStore.ListSuggestions(ctx, run.JobID)
	if err != nil {
		return nil, fmt.Errorf("list suggestions of job %s: %w", run.JobID, err)
	}

	var scores map[string]int
	if s.scorer != nil {
		scores, err = s.scorer.ScoresByFingerprint(ctx, run.PRID)
		if err != nil {
			return nil, fmt.Errorf("feedback scores for %s: %w", run.PRID, err)
		}
	}

	ranked := Rerank(suggestions, scores)
	comments := make([]model.PublishedComment, 0, len(ranked))
	for _, r := range ranked {
		line := r.LineEnd
		if run.Mode == model.PublishModeSummary {
			line = 0
		}
		comments = append(comments, model.PublishedComment{
			ID:           s.ids.New(id.KindComment),
			PRID:         run.PRID,
			JobID:        run.JobID,
			PublishRunID: run.ID,
			SuggestionID: r.ID,
			Fingerprint:  r.Fingerprint,
			FilePath:     r.FilePath,
			Line:         line,
			Severity:     r.Severity,
			Category:     r.Category,
			Body:         CommentBody(r.Suggestion),
			ExternalID:   s.ids.New(id.KindExternal),
			State:        model.CommentStatePosted,
			CreatedAt:    run.CreatedAt,
		})
	}
	return comments, nil
}

// CommentBody renders a suggestion as the markdown text of its comment.
func CommentBody(sug model.Suggestion) string {
	body := fmt.Sprintf("**[%s] %s**", sug.Severity, sug.Title)
	if sug.Body != "" {
		body += "\n\n" + sug.Body
	}
	return body
}
