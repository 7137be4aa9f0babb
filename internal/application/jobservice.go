package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/pagination"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
	"github.com/ericfisherdev/reviewloop/internal/id"
)

// ShutdownReason is recorded on a job whose execution was interrupted by the
// runner stopping.
const ShutdownReason = "shutdown"

// RestartReason is recorded on a job found running when the process starts.
const RestartReason = "interrupted by restart"

var errShutdown = errors.New(ShutdownReason)

// DefaultMaxPerFile bounds the suggestions the analyzer may return per file
// when no explicit limit is configured.
const DefaultMaxPerFile = 10

// CreateJobInput describes a new analysis job. An empty Scope means every
// category; an empty Files filter means every file of the snapshot.
type CreateJobInput struct {
	PRID        string
	SnapshotID  string
	Scope       []model.Category
	Files       []string
	MaxComments int
}

// JobScheduler hands a created job to whatever executes it.
type JobScheduler interface {
	Enqueue(jobID string) error
}

// FeedbackScorer supplies the fingerprint scores used to rank suggestions.
type FeedbackScorer interface {
	ScoresByFingerprint(ctx context.Context, prID string) (map[string]int, error)
}

// JobService drives analysis jobs through their lifecycle.
type JobService struct {
	prStore       driven.PRStore
	snapshotStore driven.SnapshotStore
	jobStore      driven.JobStore
	analyzer      driven.Analyzer
	scorer        FeedbackScorer
	scheduler     JobScheduler
	ids           IDGenerator
	locks         *keyedMutex
	maxPerFile    int
	now           clock
}

// NewJobService creates a JobService. scorer may be nil, in which case
// suggestions are ranked without feedback.
func NewJobService(
	prStore driven.PRStore,
	snapshotStore driven.SnapshotStore,
	jobStore driven.JobStore,
	analyzer driven.Analyzer,
	scorer FeedbackScorer,
	ids IDGenerator,
	maxPerFile int,
) *JobService {
	if maxPerFile <= 0 {
		maxPerFile = DefaultMaxPerFile
	}
	return &JobService{
		prStore:       prStore,
		snapshotStore: snapshotStore,
		jobStore:      jobStore,
		analyzer:      analyzer,
		scorer:        scorer,
		ids:           ids,
		locks:         newKeyedMutex(),
		maxPerFile:    maxPerFile,
		now:           utcNow,
	}
}

// SetScheduler attaches the executor that picks up newly created jobs.
// Without a scheduler jobs stay queued until Execute is called.
func (s *JobService) SetScheduler(scheduler JobScheduler) {
	s.scheduler = scheduler
}

// CreateJob validates in, records a queued job and hands it to the scheduler.
func (s *JobService) CreateJob(ctx context.Context, in CreateJobInput) (*model.AnalysisJob, error) {
	if in.MaxComments <= 0 {
		return nil, fmt.Errorf("max comments must be positive, got %d: %w", in.MaxComments, model.ErrValidation)
	}
	scope, err := resolveScope(in.Scope)
	if err != nil {
		return nil, err
	}

	pr, err := s.prStore.GetByID(ctx, in.PRID)
	if err != nil {
		return nil, fmt.Errorf("get pull request %s: %w", in.PRID, err)
	}
	if pr == nil {
		return nil, fmt.Errorf("pull request %s: %w", in.PRID, model.ErrNotFound)
	}

	snap, err := s.snapshotStore.GetSnapshot(ctx, in.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", in.SnapshotID, err)
	}
	if snap == nil {
		return nil, fmt.Errorf("snapshot %s: %w", in.SnapshotID, model.ErrNotFound)
	}
	if snap.PRID != pr.ID {
		return nil, fmt.Errorf("snapshot %s belongs to %s, not %s: %w", snap.ID, snap.PRID, pr.ID, model.ErrInvalidSnapshot)
	}

	snapFiles, err := s.snapshotStore.ListFiles(ctx, snap.ID)
	if err != nil {
		return nil, fmt.Errorf("list files of snapshot %s: %w", snap.ID, err)
	}
	paths := resolveFiles(snapFiles, in.Files)

	now := s.now()
	job := model.AnalysisJob{
		ID:          s.ids.New(id.KindJob),
		PRID:        pr.ID,
		SnapshotID:  snap.ID,
		Status:      model.JobStatusQueued,
		Scope:       scope,
		Files:       paths,
		MaxComments: in.MaxComments,
		Progress:    model.JobProgress{FilesDone: 0, Total: len(paths)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.jobStore.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := s.appendEvent(ctx, job.ID, model.EventLevelInfo,
		fmt.Sprintf("job created for snapshot %s with %d files", snap.ID, len(paths))); err != nil {
		return nil, err
	}

	slog.Info("analysis job created", "job_id", job.ID, "pr_id", pr.ID, "snapshot_id", snap.ID, "files", len(paths))

	if s.scheduler != nil {
		if err := s.scheduler.Enqueue(job.ID); err != nil {
			slog.Error("failed to schedule job", "job_id", job.ID, "error", err)
			failed, failErr := s.FailJob(ctx, job.ID, fmt.Sprintf("schedule job: %v", err))
			if failErr != nil {
				return nil, failErr
			}
			return failed, nil
		}
	}

	return &job, nil
}

// Execute runs a queued job to completion. A job that is not queued is left
// untouched. Analyzer failures end the job in the failed state and are not
// returned as errors; only store failures are. If ctx is canceled after the
// job started, the job is failed with ShutdownReason.
func (s *JobService) Execute(ctx context.Context, jobID string) error {
	if ctx.Err() != nil {
		slog.Info("job left queued at shutdown", "job_id", jobID)
		return nil
	}
	job, started, err := s.start(ctx, jobID)
	if err != nil || !started {
		return err
	}

	// Store calls past this point must outlive ctx so the job always settles.
	storeCtx := context.WithoutCancel(ctx)

	snapFiles, err := s.snapshotStore.ListFiles(storeCtx, job.SnapshotID)
	if err != nil {
		_, failErr := s.FailJob(storeCtx, jobID, fmt.Sprintf("load snapshot files: %v", err))
		return errors.Join(fmt.Errorf("list files of snapshot %s: %w", job.SnapshotID, err), failErr)
	}
	byPath := make(map[string]model.SnapshotFile, len(snapFiles))
	for _, f := range snapFiles {
		byPath[f.Path] = f
	}

	analyzeFiles := make([]driven.AnalyzeFile, 0, len(job.Files))
	skipped := 0
	for _, path := range job.Files {
		f, ok := byPath[path]
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return s.finish(storeCtx, jobID, nil, errShutdown, skipped)
		}

		canceled, err := s.visitFile(storeCtx, jobID, f)
		if err != nil {
			_, failErr := s.FailJob(storeCtx, jobID, fmt.Sprintf("record progress: %v", err))
			return errors.Join(err, failErr)
		}
		if canceled {
			slog.Info("job canceled during execution", "job_id", jobID)
			return nil
		}

		if f.IsTooLarge {
			skipped++
			continue
		}
		analyzeFiles = append(analyzeFiles, driven.AnalyzeFile{
			Path:     f.Path,
			Language: f.Language,
			Patch:    f.Patch,
			Hunks:    f.Hunks,
			LineMap:  f.LineMap,
		})
	}

	resp := &driven.AnalyzeResponse{}
	var analyzeErr error
	if len(analyzeFiles) > 0 {
		resp, analyzeErr = s.analyzer.Analyze(ctx, driven.AnalyzeRequest{
			JobID:      job.ID,
			SnapshotID: job.SnapshotID,
			Scope:      job.Scope,
			Files:      analyzeFiles,
			Limits: driven.AnalyzeLimits{
				MaxComments: job.MaxComments,
				MaxPerFile:  s.maxPerFile,
			},
		})
		if analyzeErr == nil && resp == nil {
			analyzeErr = errors.New("analyzer returned no response")
		}
		if analyzeErr != nil && ctx.Err() != nil {
			analyzeErr = errShutdown
		}
	}

	return s.finish(storeCtx, jobID, resp, analyzeErr, skipped)
}

// CancelJob moves a queued or running job to canceled. Canceling a job that
// already reached a terminal state returns it unchanged.
func (s *JobService) CancelJob(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	unlock := s.locks.Lock("job:" + jobID)
	defer unlock()

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}

	now := s.now()
	job.Status = model.JobStatusCanceled
	job.FinishedAt = &now
	job.UpdatedAt = now
	if err := s.jobStore.UpdateJob(ctx, *job); err != nil {
		return nil, fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	if err := s.appendEvent(ctx, jobID, model.EventLevelWarn, "job canceled"); err != nil {
		return nil, err
	}

	slog.Info("analysis job canceled", "job_id", jobID)
	return job, nil
}

// GetJob returns the job with the given ID.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	return s.loadJob(ctx, jobID)
}

// ListJobs returns one page of the pull request's jobs, oldest first.
func (s *JobService) ListJobs(ctx context.Context, prID string, req pagination.Request) (pagination.Page[model.AnalysisJob], error) {
	pr, err := s.prStore.GetByID(ctx, prID)
	if err != nil {
		return pagination.Page[model.AnalysisJob]{}, fmt.Errorf("get pull request %s: %w", prID, err)
	}
	if pr == nil {
		return pagination.Page[model.AnalysisJob]{}, fmt.Errorf("pull request %s: %w", prID, model.ErrNotFound)
	}

	jobs, err := s.jobStore.ListJobsByPR(ctx, prID)
	if err != nil {
		return pagination.Page[model.AnalysisJob]{}, fmt.Errorf("list jobs for %s: %w", prID, err)
	}
	return pagination.Paginate(jobs, req), nil
}

// ListJobEvents returns one page of the job's event log in append order.
func (s *JobService) ListJobEvents(ctx context.Context, jobID string, req pagination.Request) (pagination.Page[model.JobEvent], error) {
	if _, err := s.loadJob(ctx, jobID); err != nil {
		return pagination.Page[model.JobEvent]{}, err
	}

	events, err := s.jobStore.ListEvents(ctx, jobID)
	if err != nil {
		return pagination.Page[model.JobEvent]{}, fmt.Errorf("list events of job %s: %w", jobID, err)
	}
	return pagination.Paginate(events, req), nil
}

// ListSuggestions returns one page of the job's suggestions in ranked order.
// Ranking happens before pagination so cursors address the ranked sequence.
func (s *JobService) ListSuggestions(ctx context.Context, jobID string, req pagination.Request) (pagination.Page[RankedSuggestion], error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return pagination.Page[RankedSuggestion]{}, err
	}

	suggestions, err := s.jobStore.ListSuggestions(ctx, jobID)
	if err != nil {
		return pagination.Page[RankedSuggestion]{}, fmt.Errorf("list suggestions of job %s: %w", jobID, err)
	}

	var scores map[string]int
	if s.scorer != nil {
		scores, err = s.scorer.ScoresByFingerprint(ctx, job.PRID)
		if err != nil {
			return pagination.Page[RankedSuggestion]{}, fmt.Errorf("feedback scores for %s: %w", job.PRID, err)
		}
	}

	return pagination.Paginate(Rerank(suggestions, scores), req), nil
}

// ListPRSuggestions returns one page of the suggestions of every job of the
// pull request in ranked order. A fingerprint produced by several jobs is
// listed once, as its most recent occurrence.
func (s *JobService) ListPRSuggestions(ctx context.Context, prID string, req pagination.Request) (pagination.Page[RankedSuggestion], error) {
	pr, err := s.prStore.GetByID(ctx, prID)
	if err != nil {
		return pagination.Page[RankedSuggestion]{}, fmt.Errorf("get pull request %s: %w", prID, err)
	}
	if pr == nil {
		return pagination.Page[RankedSuggestion]{}, fmt.Errorf("pull request %s: %w", prID, model.ErrNotFound)
	}

	all, err := s.jobStore.ListSuggestionsByPR(ctx, prID)
	if err != nil {
		return pagination.Page[RankedSuggestion]{}, fmt.Errorf("list suggestions of %s: %w", prID, err)
	}
	latest := make(map[string]int, len(all))
	for i, sug := range all {
		latest[sug.Fingerprint] = i
	}
	suggestions := make([]model.Suggestion, 0, len(latest))
	for i, sug := range all {
		if latest[sug.Fingerprint] == i {
			suggestions = append(suggestions, sug)
		}
	}

	var scores map[string]int
	if s.scorer != nil {
		scores, err = s.scorer.ScoresByFingerprint(ctx, prID)
		if err != nil {
			return pagination.Page[RankedSuggestion]{}, fmt.Errorf("feedback scores for %s: %w", prID, err)
		}
	}

	return pagination.Paginate(Rerank(suggestions, scores), req), nil
}

// start performs the queued -> running transition under the job lock.
func (s *JobService) start(ctx context.Context, jobID string) (*model.AnalysisJob, bool, error) {
	unlock := s.locks.Lock("job:" + jobID)
	defer unlock()

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	if job.Status != model.JobStatusQueued {
		slog.Debug("job not queued, skipping execution", "job_id", jobID, "status", job.Status)
		return job, false, nil
	}

	now := s.now()
	job.Status = model.JobStatusRunning
	job.StartedAt = &now
	job.UpdatedAt = now
	if err := s.jobStore.UpdateJob(ctx, *job); err != nil {
		return nil, false, fmt.Errorf("start job %s: %w", jobID, err)
	}
	// The job is running now; this write must not be lost to cancellation.
	if err := s.appendEvent(context.WithoutCancel(ctx), jobID, model.EventLevelInfo, "job started"); err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// visitFile records the per-file event and reports whether the job was
// canceled since it started.
func (s *JobService) visitFile(ctx context.Context, jobID string, f model.SnapshotFile) (bool, error) {
	unlock := s.locks.Lock("job:" + jobID)
	defer unlock()

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status != model.JobStatusRunning {
		return true, nil
	}

	if f.IsTooLarge {
		return false, s.appendEvent(ctx, jobID, model.EventLevelWarn,
			fmt.Sprintf("skipping %s: patch too large", f.Path))
	}
	return false, s.appendEvent(ctx, jobID, model.EventLevelInfo,
		fmt.Sprintf("analyzing %s (%s)", f.Path, f.Language))
}

// finish applies the analyzer outcome. If the job was canceled while the
// analyzer ran, the outcome is discarded.
func (s *JobService) finish(ctx context.Context, jobID string, resp *driven.AnalyzeResponse, analyzeErr error, skipped int) error {
	ctx = context.WithoutCancel(ctx)
	unlock := s.locks.Lock("job:" + jobID)
	defer unlock()

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.JobStatusRunning {
		slog.Info("discarding analyzer result for job no longer running", "job_id", jobID, "status", job.Status)
		return nil
	}

	if analyzeErr != nil {
		slog.Warn("analyzer failed", "job_id", jobID, "error", analyzeErr)
		_, err := s.failLocked(ctx, job, analyzeErr.Error())
		return err
	}

	accepted, truncated, err := s.storeSuggestions(ctx, job, resp.Suggestions)
	if err != nil {
		_, failErr := s.failLocked(ctx, job, fmt.Sprintf("store suggestions: %v", err))
		return errors.Join(err, failErr)
	}

	var warnings []string
	if skipped > 0 {
		warnings = append(warnings, fmt.Sprintf("%d file(s) skipped: patch exceeds %d bytes", skipped, MaxPatchBytes))
	}
	if truncated > 0 {
		warnings = append(warnings, fmt.Sprintf("%d suggestion(s) dropped: max comments is %d", truncated, job.MaxComments))
	}

	now := s.now()
	job.Status = model.JobStatusDone
	job.Progress.FilesDone = job.Progress.Total
	job.Summary = model.JobSummary{
		TotalSuggestions: accepted,
		PartialFailures:  resp.PartialFailures,
		FilesSkipped:     skipped,
		Warnings:         warnings,
	}
	job.FinishedAt = &now
	job.UpdatedAt = now
	if err := s.jobStore.UpdateJob(ctx, *job); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}

	if err := s.appendEvent(ctx, jobID, model.EventLevelInfo, fmt.Sprintf(
		"analysis complete: %d suggestions, %d partial failures, %d files skipped",
		accepted, resp.PartialFailures, skipped)); err != nil {
		return err
	}

	slog.Info("analysis job done",
		"job_id", jobID,
		"suggestions", accepted,
		"partial_failures", resp.PartialFailures,
		"files_skipped", skipped,
	)
	return nil
}

// storeSuggestions persists candidates in analyzer order, dropping duplicate
// fingerprints and anything beyond the job's MaxComments. Callers hold the
// job lock.
func (s *JobService) storeSuggestions(ctx context.Context, job *model.AnalysisJob, candidates []driven.CandidateSuggestion) (accepted, truncated int, err error) {
	existing, err := s.jobStore.ListSuggestions(ctx, job.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("list suggestions of job %s: %w", job.ID, err)
	}
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for _, e := range existing {
		seen[e.Fingerprint] = struct{}{}
	}

	for _, c := range candidates {
		fp := c.Fingerprint
		if fp == "" {
			fp = Fingerprint(c.FilePath, c.LineStart, c.LineEnd, c.Title)
		}
		if _, dup := seen[fp]; dup {
			continue
		}
		if len(existing)+accepted >= job.MaxComments {
			truncated++
			continue
		}

		sug := model.Suggestion{
			ID:          s.ids.New(id.KindSuggestion),
			JobID:       job.ID,
			Fingerprint: fp,
			FilePath:    c.FilePath,
			LineStart:   c.LineStart,
			LineEnd:     c.LineEnd,
			Severity:    model.NormalizeSeverity(c.Severity),
			Category:    c.Category,
			Title:       c.Title,
			Body:        c.Body,
			Citations:   slices.Clone(c.Citations),
			Confidence:  c.Confidence,
			CreatedAt:   s.now(),
		}
		if err := s.jobStore.InsertSuggestion(ctx, sug); err != nil {
			if errors.Is(err, driven.ErrDuplicateFingerprint) {
				seen[fp] = struct{}{}
				continue
			}
			return accepted, truncated, fmt.Errorf("insert suggestion: %w", err)
		}
		seen[fp] = struct{}{}
		accepted++
	}

	return accepted, truncated, nil
}

// FailJob moves a non-terminal job to failed with reason recorded. Terminal
// jobs are returned unchanged. The update is not bound to ctx's
// cancellation, so a job can be settled during shutdown.
func (s *JobService) FailJob(ctx context.Context, jobID, reason string) (*model.AnalysisJob, error) {
	ctx = context.WithoutCancel(ctx)
	unlock := s.locks.Lock("job:" + jobID)
	defer unlock()

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}
	return s.failLocked(ctx, job, reason)
}

// RecoverJobs settles jobs left behind by a previous process. Running jobs
// are failed with RestartReason; queued jobs are handed to the scheduler
// again, or failed when it cannot take them.
func (s *JobService) RecoverJobs(ctx context.Context) (requeued, failed int, err error) {
	running, err := s.jobStore.ListJobsByStatus(ctx, model.JobStatusRunning)
	if err != nil {
		return 0, 0, fmt.Errorf("list running jobs: %w", err)
	}
	for _, job := range running {
		if _, err := s.FailJob(ctx, job.ID, RestartReason); err != nil {
			return requeued, failed, err
		}
		failed++
	}

	if s.scheduler == nil {
		return requeued, failed, nil
	}
	queued, err := s.jobStore.ListJobsByStatus(ctx, model.JobStatusQueued)
	if err != nil {
		return requeued, failed, fmt.Errorf("list queued jobs: %w", err)
	}
	for _, job := range queued {
		if schedErr := s.scheduler.Enqueue(job.ID); schedErr != nil {
			if _, err := s.FailJob(ctx, job.ID, fmt.Sprintf("schedule job: %v", schedErr)); err != nil {
				return requeued, failed, err
			}
			failed++
			continue
		}
		requeued++
	}

	if requeued > 0 || failed > 0 {
		slog.Info("recovered analysis jobs", "requeued", requeued, "failed", failed)
	}
	return requeued, failed, nil
}

func (s *JobService) failLocked(ctx context.Context, job *model.AnalysisJob, reason string) (*model.AnalysisJob, error) {
	ctx = context.WithoutCancel(ctx)
	now := s.now()
	job.Status = model.JobStatusFailed
	job.Error = reason
	job.FinishedAt = &now
	job.UpdatedAt = now
	if err := s.jobStore.UpdateJob(ctx, *job); err != nil {
		return nil, fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	if err := s.appendEvent(ctx, job.ID, model.EventLevelError, "job failed: "+reason); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobService) loadJob(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	job, err := s.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, model.ErrNotFound)
	}
	return job, nil
}

func (s *JobService) appendEvent(ctx context.Context, jobID string, level model.EventLevel, message string) error {
	event := model.JobEvent{
		ID:        s.ids.New(id.KindJobEvent),
		JobID:     jobID,
		Level:     level,
		Message:   message,
		CreatedAt: s.now(),
	}
	if err := s.jobStore.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("append event to job %s: %w", jobID, err)
	}
	return nil
}

// resolveScope validates scope and defaults an empty one to every category.
// Duplicates are dropped while keeping first-seen order.
func resolveScope(scope []model.Category) ([]model.Category, error) {
	if len(scope) == 0 {
		return model.AllCategories(), nil
	}

	out := make([]model.Category, 0, len(scope))
	for _, c := range scope {
		if !c.IsValid() {
			return nil, fmt.Errorf("unknown scope category %q: %w", c, model.ErrValidation)
		}
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// resolveFiles returns the snapshot paths selected by filter, in snapshot
// order. An empty filter selects every file; unknown paths are ignored.
func resolveFiles(files []model.SnapshotFile, filter []string) []string {
	paths := make([]string, 0, len(files))
	if len(filter) == 0 {
		for _, f := range files {
			paths = append(paths, f.Path)
		}
		return paths
	}

	wanted := make(map[string]struct{}, len(filter))
	for _, p := range filter {
		wanted[p] = struct{}{}
	}
	for _, f := range files {
		if _, ok := wanted[f.Path]; ok {
			paths = append(paths, f.Path)
		}
	}
	return paths
}
