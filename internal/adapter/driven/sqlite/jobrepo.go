package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.JobStore = (*JobRepo)(nil)

// JobRepo is the SQLite implementation of the JobStore port: analysis jobs,
// their event log and their suggestions.
type JobRepo struct {
	db *DB
}

// NewJobRepo creates a new JobRepo backed by the given DB.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

const jobColumns = `
	id, pr_id, snapshot_id, status, scope, files, max_comments, files_done, files_total,
	summary, error, created_at, started_at, finished_at, updated_at`

// CreateJob inserts a new job.
func (r *JobRepo) CreateJob(ctx context.Context, job model.AnalysisJob) error {
	const query = `INSERT INTO analysis_jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	scope, files, summary, err := marshalJobFields(job)
	if err != nil {
		return err
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		job.ID, job.PRID, job.SnapshotID, string(job.Status), scope, files, job.MaxComments,
		job.Progress.FilesDone, job.Progress.Total, summary, job.Error,
		formatTime(job.CreatedAt), formatNullTime(job.StartedAt), formatNullTime(job.FinishedAt),
		formatTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateJob replaces the mutable fields of an existing job.
func (r *JobRepo) UpdateJob(ctx context.Context, job model.AnalysisJob) error {
	const query = `
		UPDATE analysis_jobs SET
			status = ?, files_done = ?, files_total = ?, summary = ?, error = ?,
			started_at = ?, finished_at = ?, updated_at = ?
		WHERE id = ?
	`

	_, _, summary, err := marshalJobFields(job)
	if err != nil {
		return err
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		string(job.Status), job.Progress.FilesDone, job.Progress.Total, summary, job.Error,
		formatNullTime(job.StartedAt), formatNullTime(job.FinishedAt), formatTime(job.UpdatedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, model.ErrNotFound)
	}
	return nil
}

// GetJob retrieves a job by ID. Returns nil, nil if it does not exist.
func (r *JobRepo) GetJob(ctx context.Context, id string) (*model.AnalysisJob, error) {
	const query = `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE id = ?`

	job, err := scanJob(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// ListJobsByPR returns the pull request's jobs, oldest first.
func (r *JobRepo) ListJobsByPR(ctx context.Context, prID string) ([]model.AnalysisJob, error) {
	const query = `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE pr_id = ? ORDER BY created_at, rowid`

	jobs, err := r.queryJobs(ctx, query, prID)
	if err != nil {
		return nil, fmt.Errorf("list jobs of %s: %w", prID, err)
	}
	return jobs, nil
}

// ListJobsByStatus returns every job in the given status, oldest first.
func (r *JobRepo) ListJobsByStatus(ctx context.Context, status model.JobStatus) ([]model.AnalysisJob, error) {
	const query = `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE status = ? ORDER BY created_at, rowid`

	jobs, err := r.queryJobs(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list %s jobs: %w", status, err)
	}
	return jobs, nil
}

func (r *JobRepo) queryJobs(ctx context.Context, query string, args ...any) ([]model.AnalysisJob, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.AnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// AppendEvent appends to the job's event log.
func (r *JobRepo) AppendEvent(ctx context.Context, event model.JobEvent) error {
	const query = `INSERT INTO job_events (id, job_id, level, message, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.Writer.ExecContext(ctx, query,
		event.ID, event.JobID, string(event.Level), event.Message, formatTime(event.CreatedAt))
	if err != nil {
		return fmt.Errorf("append event to job %s: %w", event.JobID, err)
	}
	return nil
}

// ListEvents returns the job's events in append order.
func (r *JobRepo) ListEvents(ctx context.Context, jobID string) ([]model.JobEvent, error) {
	const query = `
		SELECT id, job_id, level, message, created_at
		FROM job_events
		WHERE job_id = ?
		ORDER BY rowid
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list events of job %s: %w", jobID, err)
	}
	defer rows.Close()

	var events []model.JobEvent
	for rows.Next() {
		var e model.JobEvent
		var level, createdAt string
		if err := rows.Scan(&e.ID, &e.JobID, &level, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan job event: %w", err)
		}
		e.Level = model.EventLevel(level)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job events: %w", err)
	}
	return events, nil
}

// InsertSuggestion stores a suggestion. Returns driven.ErrDuplicateFingerprint
// when (job_id, fingerprint) is already taken.
func (r *JobRepo) InsertSuggestion(ctx context.Context, s model.Suggestion) error {
	const query = `
		INSERT INTO suggestions (
			id, job_id, fingerprint, file_path, line_start, line_end, severity, category,
			title, body, citations, confidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	citations, err := marshalJSONArray(s.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		s.ID, s.JobID, s.Fingerprint, s.FilePath, s.LineStart, s.LineEnd,
		string(s.Severity), string(s.Category), s.Title, s.Body, citations, s.Confidence,
		formatTime(s.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert suggestion %s: %w", s.Fingerprint, driven.ErrDuplicateFingerprint)
		}
		return fmt.Errorf("insert suggestion %s: %w", s.ID, err)
	}
	return nil
}

const suggestionColumns = `
	s.id, s.job_id, s.fingerprint, s.file_path, s.line_start, s.line_end, s.severity,
	s.category, s.title, s.body, s.citations, s.confidence, s.created_at`

// ListSuggestions returns the job's suggestions in insertion order.
func (r *JobRepo) ListSuggestions(ctx context.Context, jobID string) ([]model.Suggestion, error) {
	const query = `SELECT ` + suggestionColumns + ` FROM suggestions s WHERE s.job_id = ? ORDER BY s.rowid`
	return r.querySuggestions(ctx, query, jobID)
}

// ListSuggestionsByPR returns the suggestions of every job of the pull request.
func (r *JobRepo) ListSuggestionsByPR(ctx context.Context, prID string) ([]model.Suggestion, error) {
	const query = `
		SELECT ` + suggestionColumns + `
		FROM suggestions s
		JOIN analysis_jobs j ON j.id = s.job_id
		WHERE j.pr_id = ?
		ORDER BY j.rowid, s.rowid
	`
	return r.querySuggestions(ctx, query, prID)
}

func (r *JobRepo) querySuggestions(ctx context.Context, query string, args ...any) ([]model.Suggestion, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query suggestions: %w", err)
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		var s model.Suggestion
		var severity, category, citations, createdAt string

		err := rows.Scan(
			&s.ID, &s.JobID, &s.Fingerprint, &s.FilePath, &s.LineStart, &s.LineEnd, &severity,
			&category, &s.Title, &s.Body, &citations, &s.Confidence, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}

		s.Severity = model.Severity(severity)
		s.Category = model.Category(category)
		if err := json.Unmarshal([]byte(citations), &s.Citations); err != nil {
			return nil, fmt.Errorf("unmarshal citations: %w", err)
		}
		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestions: %w", err)
	}
	return out, nil
}

func marshalJobFields(job model.AnalysisJob) (scope, files, summary string, err error) {
	if scope, err = marshalJSONArray(job.Scope); err != nil {
		return "", "", "", fmt.Errorf("marshal scope: %w", err)
	}
	if files, err = marshalJSONArray(job.Files); err != nil {
		return "", "", "", fmt.Errorf("marshal files: %w", err)
	}
	data, err := json.Marshal(job.Summary)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal summary: %w", err)
	}
	return scope, files, string(data), nil
}

func scanJob(s scanner) (*model.AnalysisJob, error) {
	var job model.AnalysisJob
	var status, scope, files, summary, createdAt, updatedAt string
	var startedAt, finishedAt sql.NullString

	err := s.Scan(
		&job.ID, &job.PRID, &job.SnapshotID, &status, &scope, &files, &job.MaxComments,
		&job.Progress.FilesDone, &job.Progress.Total, &summary, &job.Error,
		&createdAt, &startedAt, &finishedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatus(status)
	if err := json.Unmarshal([]byte(scope), &job.Scope); err != nil {
		return nil, fmt.Errorf("unmarshal scope: %w", err)
	}
	if err := json.Unmarshal([]byte(files), &job.Files); err != nil {
		return nil, fmt.Errorf("unmarshal files: %w", err)
	}
	if err := json.Unmarshal([]byte(summary), &job.Summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}

	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if job.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if job.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}

	return &job, nil
}
