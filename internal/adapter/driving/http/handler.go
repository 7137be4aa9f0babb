// Package httphandler is the JSON REST driving adapter.
package httphandler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/reviewloop/internal/application"
	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/pagination"
)

// maxBodyBytes caps request bodies. Sync payloads carry whole patches, so the
// cap sits well above MaxFilesPerSnapshot * MaxPatchBytes.
const maxBodyBytes = 256 << 20

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the application services the API exposes.
type Services struct {
	Repos     *application.RepoService
	Snapshots *application.SnapshotService
	GitHub    *application.GitHubSyncService
	Jobs      *application.JobService
	Publish   *application.PublishService
	Feedback  *application.FeedbackService
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	svc    Services
	store  Pinger
	logger *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. store may be
// nil, in which case health reports ok without probing storage.
func NewHandler(svc Services, store Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		store:  store,
		logger: logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("GET /api/v1/repos", h.ListRepos)
	mux.HandleFunc("POST /api/v1/repos", h.AddRepo)
	mux.HandleFunc("GET /api/v1/repos/{repoID}/prs", h.ListPRs)
	mux.HandleFunc("POST /api/v1/repos/{repoID}/prs/{number}/sync", h.SyncPR)
	mux.HandleFunc("POST /api/v1/repos/{repoID}/prs/{number}/github-sync", h.SyncPRFromGitHub)

	mux.HandleFunc("GET /api/v1/prs/{prID}", h.GetPR)
	mux.HandleFunc("GET /api/v1/snapshots/{snapshotID}", h.GetSnapshot)
	mux.HandleFunc("GET /api/v1/snapshots/{snapshotID}/files", h.ListSnapshotFiles)

	mux.HandleFunc("POST /api/v1/prs/{prID}/jobs", h.CreateJob)
	mux.HandleFunc("GET /api/v1/prs/{prID}/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/v1/jobs/{jobID}", h.GetJob)
	mux.HandleFunc("POST /api/v1/jobs/{jobID}/cancel", h.CancelJob)
	mux.HandleFunc("GET /api/v1/jobs/{jobID}/events", h.ListJobEvents)
	mux.HandleFunc("GET /api/v1/jobs/{jobID}/suggestions", h.ListSuggestions)
	mux.HandleFunc("GET /api/v1/prs/{prID}/suggestions", h.ListPRSuggestions)

	mux.HandleFunc("POST /api/v1/prs/{prID}/publish", h.Publish)
	mux.HandleFunc("GET /api/v1/prs/{prID}/comments", h.ListComments)

	mux.HandleFunc("POST /api/v1/comments/{commentID}/feedback", h.UpsertFeedback)
	mux.HandleFunc("GET /api/v1/comments/{commentID}/score", h.CommentScore)
	mux.HandleFunc("GET /api/v1/prs/{prID}/feedback", h.PRFeedback)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health reports service liveness and store reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "unavailable",
				Time:   time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListRepos returns one page of repositories.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Repos.ListRepositories(r.Context(), pageRequest(r))
	if err != nil {
		writeServiceError(w, h.logger, "list repos", err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.Map(page, toRepoResponse))
}

// AddRepo registers a repository. Registering an existing name returns the
// stored repository.
func (h *Handler) AddRepo(w http.ResponseWriter, r *http.Request) {
	var req AddRepoRequest
	if !decodeBody(w, r, &req) {
		return
	}

	repo, err := h.svc.Repos.EnsureRepository(r.Context(), req.FullName)
	if err != nil {
		writeServiceError(w, h.logger, "add repo", err)
		return
	}

	writeJSON(w, http.StatusCreated, toRepoResponse(*repo))
}

// ListPRs returns one page of a repository's pull requests.
func (h *Handler) ListPRs(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Repos.ListPullRequests(r.Context(), r.PathValue("repoID"), pageRequest(r))
	if err != nil {
		writeServiceError(w, h.logger, "list prs", err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.Map(page, toPRResponse))
}

// GetPR returns a single pull request.
func (h *Handler) GetPR(w http.ResponseWriter, r *http.Request) {
	pr, err := h.svc.Repos.GetPullRequest(r.Context(), r.PathValue("prID"))
	if err != nil {
		writeServiceError(w, h.logger, "get pr", err)
		return
	}
	writeJSON(w, http.StatusOK, toPRResponse(*pr))
}

// SyncPR snapshots the pull request state carried in the body.
func (h *Handler) SyncPR(w http.ResponseWriter, r *http.Request) {
	number, ok := pathNumber(w, r)
	if !ok {
		return
	}

	var req SyncRequest
	if !decodeBody(w, r, &req) {
		return
	}

	files := make([]model.FileInput, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, model.FileInput{Path: f.Path, Status: model.FileStatus(f.Status), Patch: f.Patch})
	}

	res, err := h.svc.Snapshots.Sync(r.Context(), application.SyncInput{
		RepoID: r.PathValue("repoID"),
		Number: number,
		Meta: model.PRMetadata{
			Title:      req.Title,
			Author:     req.Author,
			HeadSHA:    req.HeadSHA,
			BaseSHA:    req.BaseSHA,
			HeadBranch: req.HeadBranch,
			BaseBranch: req.BaseBranch,
		},
		Files: files,
	})
	if err != nil {
		writeServiceError(w, h.logger, "sync pr", err)
		return
	}

	writeJSON(w, syncStatus(res), toSyncResponse(*res))
}

// SyncPRFromGitHub fetches the pull request from GitHub and snapshots it.
func (h *Handler) SyncPRFromGitHub(w http.ResponseWriter, r *http.Request) {
	number, ok := pathNumber(w, r)
	if !ok {
		return
	}

	if h.svc.GitHub == nil {
		writeServiceError(w, h.logger, "github sync", application.ErrNoPRSource)
		return
	}

	res, err := h.svc.GitHub.SyncFromGitHub(r.Context(), r.PathValue("repoID"), number)
	if err != nil {
		writeServiceError(w, h.logger, "github sync", err)
		return
	}

	writeJSON(w, syncStatus(res), toSyncResponse(*res))
}

// GetSnapshot returns a snapshot's metadata.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshots.GetSnapshot(r.Context(), r.PathValue("snapshotID"))
	if err != nil {
		writeServiceError(w, h.logger, "get snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(*snap))
}

// ListSnapshotFiles returns one page of a snapshot's files.
func (h *Handler) ListSnapshotFiles(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Snapshots.ListSnapshotFiles(r.Context(), r.PathValue("snapshotID"), pageRequest(r))
	if err != nil {
		writeServiceError(w, h.logger, "list snapshot files", err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.Map(page, toSnapshotFileResponse))
}

// CreateJob queues an analysis job for the pull request.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !decodeBody(w, r, &req) {
		return
	}

	scope := make([]model.Category, 0, len(req.Scope))
	for _, c := range req.Scope {
		scope = append(scope, model.Category(c))
	}

	job, err := h.svc.Jobs.CreateJob(r.Context(), application.CreateJobInput{
		PRID:        r.PathValue("prID"),
		SnapshotID:  req.SnapshotID,
		Scope:       scope,
		Files:       req.Files,
		MaxComments: req.MaxComments,
	})
	if err != nil {
		writeServiceError(w, h.logger, "create job", err)
		return
	}

	writeJSON(w, http.StatusAccepted, toJobResponse(*job))
}

// ListJobs returns one page of the pull request's jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Jobs.ListJobs(r.Context(), r.PathValue("prID"), pageRequest(r))
	if err != nil {
		writeServiceError(w, h.logger, "list jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.Map(page, toJobResponse))
}

// GetJob returns a job with its progress and summary.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Jobs.GetJob(r.Context(), r.PathValue("jobID"))
	if err != nil {
		writeServiceError(w, h.logger, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(*job))
}

// CancelJob cancels a queued or running job. Terminal jobs are returned unchanged.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Jobs.CancelJob(r.Context(), r.PathValue("jobID"))
	if err != nil {
		writeServiceError(w, h.logger, "cancel job", err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(*job))
}

// ListJobEvents returns one page of the job's event log.
func (h *Handler) ListJobEvents(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Jobs.ListJobEvents(r.Context(), r.PathValue("jobID"), pageRequest(r))
	if err != nil {
		writeServiceError(w, h.logger, "list job events", err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.Map(page, toJobEventResponse))
}

// ListSuggestions returns one page of the job's suggestions in ranked order.
func (h *Handler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Jobs.ListSuggestions(r.Context(), r.PathValue("jobID"), pageRequest(r))
	if err != nil {
		writeServiceError(w, h.logger, "list suggestions", err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.Map(page, toSuggestionResponse))
}

// ListPRSuggestions lists the ranked suggestions of every job of a pull request.
func (h *Handler) ListPRSuggestions(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Jobs.ListPRSuggestions(r.Context(), r.PathValue("prID"), pageRequest(r))
	if err != nil {
		writeServiceError(w, h.logger, "list pull request suggestions", err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.Map(page, toSuggestionResponse))
}

// Publish posts a job's suggestions to the pull request once per mode.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.Publish.Publish(r.Context(), application.PublishInput{
		PRID:   r.PathValue("prID"),
		JobID:  req.JobID,
		Mode:   model.PublishMode(req.Mode),
		DryRun: req.DryRun,
	})
	if err != nil {
		writeServiceError(w, h.logger, "publish", err)
		return
	}

	status := http.StatusCreated
	if res.Idempotent {
		status = http.StatusOK
	}
	writeJSON(w, status, toPublishResponse(*res))
}

// ListComments returns one page of the pull request's published comments.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Publish.ListComments(r.Context(), r.PathValue("prID"), pageRequest(r))
	if err != nil {
		writeServiceError(w, h.logger, "list comments", err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.Map(page, toCommentResponse))
}

// UpsertFeedback records a user's vote on a published comment.
func (h *Handler) UpsertFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}

	vote, err := h.svc.Feedback.UpsertFeedback(r.Context(), application.FeedbackInput{
		CommentID: r.PathValue("commentID"),
		UserID:    req.UserID,
		Vote:      model.Vote(req.Vote),
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(w, h.logger, "upsert feedback", err)
		return
	}
	writeJSON(w, http.StatusOK, toFeedbackResponse(*vote))
}

// CommentScore returns the vote tally of one comment.
func (h *Handler) CommentScore(w http.ResponseWriter, r *http.Request) {
	commentID := r.PathValue("commentID")
	score, err := h.svc.Feedback.CommentScore(r.Context(), commentID)
	if err != nil {
		writeServiceError(w, h.logger, "comment score", err)
		return
	}
	writeJSON(w, http.StatusOK, CommentScoreResponse{CommentID: commentID, Score: score})
}

// PRFeedback returns the vote tallies of a pull request by file, category and severity.
func (h *Handler) PRFeedback(w http.ResponseWriter, r *http.Request) {
	prID := r.PathValue("prID")
	summary, err := h.svc.Feedback.PRScore(r.Context(), prID)
	if err != nil {
		writeServiceError(w, h.logger, "pr feedback", err)
		return
	}
	writeJSON(w, http.StatusOK, toPRFeedbackResponse(prID, *summary))
}

// pageRequest reads the cursor and limit query parameters. Bad values fall
// back to defaults.
func pageRequest(r *http.Request) pagination.Request {
	q := r.URL.Query()
	return pagination.Request{
		Cursor: q.Get("cursor"),
		Limit:  pagination.ParseLimit(q.Get("limit")),
	}
}

// pathNumber parses the {number} path value, writing a 400 on failure.
func pathNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || number <= 0 {
		writeError(w, http.StatusBadRequest, model.CodeValidation, "invalid pull request number")
		return 0, false
	}
	return number, true
}

// decodeBody decodes the JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, model.CodeValidation, "invalid request body")
		return false
	}
	return true
}

// syncStatus is 201 when the sync wrote a snapshot and 200 when it was a no-op.
func syncStatus(res *application.SyncResult) int {
	if res.Idempotent {
		return http.StatusOK
	}
	return http.StatusCreated
}
