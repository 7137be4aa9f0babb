package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/reviewloop/internal/application"
	"github.com/ericfisherdev/reviewloop/internal/domain/diff"
	"github.com/ericfisherdev/reviewloop/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error","code":"internal_error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code, code and message.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeServiceError classifies err through the domain error taxonomy.
// Internal errors are logged and their message is not exposed.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	if errors.Is(err, application.ErrNoPRSource) {
		writeError(w, http.StatusServiceUnavailable, "source_unavailable", err.Error())
		return
	}

	code := model.ErrorCode(err)
	status := statusForCode(code)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "op", op, "error", err)
		writeError(w, status, code, "internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}

func statusForCode(code string) int {
	switch code {
	case model.CodeValidation:
		return http.StatusBadRequest
	case model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeLimitExceeded:
		return http.StatusRequestEntityTooLarge
	case model.CodeInvalidSnapshot:
		return http.StatusUnprocessableEntity
	case model.CodeJobPRMismatch:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// AddRepoRequest is the JSON body for the add repository endpoint.
type AddRepoRequest struct {
	FullName string `json:"full_name"`
}

// SyncRequest is the JSON body for the sync endpoint.
type SyncRequest struct {
	Title      string            `json:"title"`
	Author     string            `json:"author"`
	HeadSHA    string            `json:"head_sha"`
	BaseSHA    string            `json:"base_sha"`
	HeadBranch string            `json:"head_branch"`
	BaseBranch string            `json:"base_branch"`
	Files      []SyncFileRequest `json:"files"`
}

// SyncFileRequest is one changed file in a SyncRequest.
type SyncFileRequest struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Patch  string `json:"patch"`
}

// CreateJobRequest is the JSON body for the create job endpoint.
type CreateJobRequest struct {
	SnapshotID  string   `json:"snapshot_id"`
	Scope       []string `json:"scope"`
	Files       []string `json:"files"`
	MaxComments int      `json:"max_comments"`
}

// PublishRequest is the JSON body for the publish endpoint.
type PublishRequest struct {
	JobID  string `json:"job_id"`
	Mode   string `json:"mode"`
	DryRun bool   `json:"dry_run"`
}

// FeedbackRequest is the JSON body for the feedback endpoint.
type FeedbackRequest struct {
	UserID string `json:"user_id"`
	Vote   string `json:"vote"`
	Reason string `json:"reason"`
}

// RepoResponse is the JSON representation of a repository.
type RepoResponse struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	Owner     string `json:"owner"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// PRResponse is the JSON representation of a pull request.
type PRResponse struct {
	ID               string `json:"id"`
	RepoID           string `json:"repo_id"`
	Number           int    `json:"number"`
	Title            string `json:"title"`
	Author           string `json:"author"`
	HeadSHA          string `json:"head_sha"`
	BaseSHA          string `json:"base_sha"`
	HeadBranch       string `json:"head_branch"`
	BaseBranch       string `json:"base_branch"`
	LatestSnapshotID string `json:"latest_snapshot_id"`
	FilesCount       int    `json:"files_count"`
	Additions        int    `json:"additions"`
	Deletions        int    `json:"deletions"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// SnapshotResponse is the JSON representation of a snapshot.
type SnapshotResponse struct {
	ID         string `json:"id"`
	PRID       string `json:"pr_id"`
	HeadSHA    string `json:"head_sha"`
	BaseSHA    string `json:"base_sha"`
	FilesCount int    `json:"files_count"`
	Additions  int    `json:"additions"`
	Deletions  int    `json:"deletions"`
	CreatedAt  string `json:"created_at"`
}

// SyncResponse is the JSON representation of a sync outcome.
type SyncResponse struct {
	PR         PRResponse             `json:"pr"`
	Snapshot   SnapshotResponse       `json:"snapshot"`
	Counts     application.SyncCounts `json:"counts"`
	Idempotent bool                   `json:"idempotent"`
}

// SnapshotFileResponse is the JSON representation of a snapshot file.
type SnapshotFileResponse struct {
	ID         string              `json:"id"`
	Path       string              `json:"path"`
	Status     string              `json:"status"`
	Language   string              `json:"language"`
	Patch      string              `json:"patch"`
	PatchHTML  string              `json:"patch_html"`
	PatchHash  string              `json:"patch_hash"`
	Hunks      []diff.Hunk         `json:"hunks"`
	LineMap    []diff.LineMapEntry `json:"line_map"`
	Additions  int                 `json:"additions"`
	Deletions  int                 `json:"deletions"`
	IsTooLarge bool                `json:"is_too_large"`
}

// JobResponse is the JSON representation of an analysis job.
type JobResponse struct {
	ID          string            `json:"id"`
	PRID        string            `json:"pr_id"`
	SnapshotID  string            `json:"snapshot_id"`
	Status      string            `json:"status"`
	Scope       []model.Category  `json:"scope"`
	Files       []string          `json:"files"`
	MaxComments int               `json:"max_comments"`
	Progress    model.JobProgress `json:"progress"`
	Summary     model.JobSummary  `json:"summary"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   string            `json:"created_at"`
	StartedAt   *string           `json:"started_at"`
	FinishedAt  *string           `json:"finished_at"`
	UpdatedAt   string            `json:"updated_at"`
}

// JobEventResponse is the JSON representation of a job event.
type JobEventResponse struct {
	ID        string `json:"id"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// SuggestionResponse is the JSON representation of a ranked suggestion.
type SuggestionResponse struct {
	ID            string   `json:"id"`
	JobID         string   `json:"job_id"`
	Fingerprint   string   `json:"fingerprint"`
	FilePath      string   `json:"file_path"`
	LineStart     int      `json:"line_start"`
	LineEnd       int      `json:"line_end"`
	Severity      string   `json:"severity"`
	Category      string   `json:"category"`
	Title         string   `json:"title"`
	Body          string   `json:"body"`
	BodyHTML      string   `json:"body_html"`
	Citations     []string `json:"citations"`
	Confidence    float64  `json:"confidence"`
	FeedbackScore int      `json:"feedback_score"`
	CreatedAt     string   `json:"created_at"`
}

// CommentResponse is the JSON representation of a published comment.
type CommentResponse struct {
	ID           string `json:"id"`
	PRID         string `json:"pr_id"`
	JobID        string `json:"job_id"`
	PublishRunID string `json:"publish_run_id"`
	SuggestionID string `json:"suggestion_id"`
	Fingerprint  string `json:"fingerprint"`
	FilePath     string `json:"file_path"`
	Line         int    `json:"line"`
	Severity     string `json:"severity"`
	Category     string `json:"category"`
	Body         string `json:"body"`
	ExternalID   string `json:"external_id"`
	State        string `json:"state"`
	CreatedAt    string `json:"created_at"`
}

// PublishResponse is the JSON representation of a publish outcome.
type PublishResponse struct {
	RunID          string            `json:"publish_run_id"`
	DryRun         bool              `json:"dry_run"`
	PublishedCount int               `json:"published_count"`
	Comments       []CommentResponse `json:"comments"`
	Idempotent     bool              `json:"idempotent"`
}

// FeedbackResponse is the JSON representation of a stored vote.
type FeedbackResponse struct {
	ID        string `json:"id"`
	CommentID string `json:"comment_id"`
	UserID    string `json:"user_id"`
	Vote      string `json:"vote"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// CommentScoreResponse is the vote tally of one comment.
type CommentScoreResponse struct {
	CommentID string `json:"comment_id"`
	model.Score
}

// PRFeedbackResponse is the vote tally of a pull request.
type PRFeedbackResponse struct {
	PRID       string                 `json:"pr_id"`
	Overall    model.Score            `json:"overall"`
	ByFile     map[string]model.Score `json:"by_file"`
	ByCategory map[string]model.Score `json:"by_category"`
	BySeverity map[string]model.Score `json:"by_severity"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func toRepoResponse(repo model.Repository) RepoResponse {
	return RepoResponse{
		ID:        repo.ID,
		FullName:  repo.FullName,
		Owner:     repo.Owner,
		Name:      repo.Name,
		CreatedAt: formatTime(repo.CreatedAt),
	}
}

func toPRResponse(pr model.PullRequest) PRResponse {
	return PRResponse{
		ID:               pr.ID,
		RepoID:           pr.RepoID,
		Number:           pr.Number,
		Title:            pr.Title,
		Author:           pr.Author,
		HeadSHA:          pr.HeadSHA,
		BaseSHA:          pr.BaseSHA,
		HeadBranch:       pr.HeadBranch,
		BaseBranch:       pr.BaseBranch,
		LatestSnapshotID: pr.LatestSnapshotID,
		FilesCount:       pr.FilesCount,
		Additions:        pr.Additions,
		Deletions:        pr.Deletions,
		CreatedAt:        formatTime(pr.CreatedAt),
		UpdatedAt:        formatTime(pr.UpdatedAt),
	}
}

func toSnapshotResponse(s model.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		ID:         s.ID,
		PRID:       s.PRID,
		HeadSHA:    s.HeadSHA,
		BaseSHA:    s.BaseSHA,
		FilesCount: s.FilesCount,
		Additions:  s.Additions,
		Deletions:  s.Deletions,
		CreatedAt:  formatTime(s.CreatedAt),
	}
}

func toSyncResponse(res application.SyncResult) SyncResponse {
	return SyncResponse{
		PR:         toPRResponse(res.PR),
		Snapshot:   toSnapshotResponse(res.Snapshot),
		Counts:     res.Counts,
		Idempotent: res.Idempotent,
	}
}

func toSnapshotFileResponse(f model.SnapshotFile) SnapshotFileResponse {
	return SnapshotFileResponse{
		ID:         f.ID,
		Path:       f.Path,
		Status:     string(f.Status),
		Language:   f.Language,
		Patch:      f.Patch,
		PatchHTML:  renderPatch(f.Patch),
		PatchHash:  f.PatchHash,
		Hunks:      nonNil(f.Hunks),
		LineMap:    nonNil(f.LineMap),
		Additions:  f.Additions,
		Deletions:  f.Deletions,
		IsTooLarge: f.IsTooLarge,
	}
}

func toJobResponse(j model.AnalysisJob) JobResponse {
	summary := j.Summary
	summary.Warnings = nonNil(summary.Warnings)
	return JobResponse{
		ID:          j.ID,
		PRID:        j.PRID,
		SnapshotID:  j.SnapshotID,
		Status:      string(j.Status),
		Scope:       nonNil(j.Scope),
		Files:       nonNil(j.Files),
		MaxComments: j.MaxComments,
		Progress:    j.Progress,
		Summary:     summary,
		Error:       j.Error,
		CreatedAt:   formatTime(j.CreatedAt),
		StartedAt:   formatNullTime(j.StartedAt),
		FinishedAt:  formatNullTime(j.FinishedAt),
		UpdatedAt:   formatTime(j.UpdatedAt),
	}
}

func toJobEventResponse(e model.JobEvent) JobEventResponse {
	return JobEventResponse{
		ID:        e.ID,
		Level:     string(e.Level),
		Message:   e.Message,
		CreatedAt: formatTime(e.CreatedAt),
	}
}

func toSuggestionResponse(s application.RankedSuggestion) SuggestionResponse {
	return SuggestionResponse{
		ID:            s.ID,
		JobID:         s.JobID,
		Fingerprint:   s.Fingerprint,
		FilePath:      s.FilePath,
		LineStart:     s.LineStart,
		LineEnd:       s.LineEnd,
		Severity:      string(s.Severity),
		Category:      string(s.Category),
		Title:         s.Title,
		Body:          s.Body,
		BodyHTML:      renderMarkdown(s.Body),
		Citations:     nonNil(s.Citations),
		Confidence:    s.Confidence,
		FeedbackScore: s.FeedbackScore,
		CreatedAt:     formatTime(s.CreatedAt),
	}
}

func toCommentResponse(c model.PublishedComment) CommentResponse {
	return CommentResponse{
		ID:           c.ID,
		PRID:         c.PRID,
		JobID:        c.JobID,
		PublishRunID: c.PublishRunID,
		SuggestionID: c.SuggestionID,
		Fingerprint:  c.Fingerprint,
		FilePath:     c.FilePath,
		Line:         c.Line,
		Severity:     string(c.Severity),
		Category:     string(c.Category),
		Body:         c.Body,
		ExternalID:   c.ExternalID,
		State:        string(c.State),
		CreatedAt:    formatTime(c.CreatedAt),
	}
}

func toPublishResponse(res application.PublishResult) PublishResponse {
	comments := make([]CommentResponse, 0, len(res.Comments))
	for _, c := range res.Comments {
		comments = append(comments, toCommentResponse(c))
	}
	return PublishResponse{
		RunID:          res.RunID,
		DryRun:         res.DryRun,
		PublishedCount: res.PublishedCount,
		Comments:       comments,
		Idempotent:     res.Idempotent,
	}
}

func toFeedbackResponse(v model.FeedbackVote) FeedbackResponse {
	return FeedbackResponse{
		ID:        v.ID,
		CommentID: v.CommentID,
		UserID:    v.UserID,
		Vote:      string(v.Vote),
		Reason:    v.Reason,
		CreatedAt: formatTime(v.CreatedAt),
		UpdatedAt: formatTime(v.UpdatedAt),
	}
}

func toPRFeedbackResponse(prID string, s model.PRFeedbackSummary) PRFeedbackResponse {
	resp := PRFeedbackResponse{
		PRID:       prID,
		Overall:    s.Overall,
		ByFile:     make(map[string]model.Score, len(s.ByFile)),
		ByCategory: make(map[string]model.Score, len(s.ByCategory)),
		BySeverity: make(map[string]model.Score, len(s.BySeverity)),
	}
	for k, v := range s.ByFile {
		resp.ByFile[k] = v
	}
	for k, v := range s.ByCategory {
		resp.ByCategory[string(k)] = v
	}
	for k, v := range s.BySeverity {
		resp.BySeverity[string(k)] = v
	}
	return resp
}
