package application_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/reviewloop/internal/adapter/driven/memory"
	"github.com/ericfisherdev/reviewloop/internal/application"
	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/pagination"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
	"github.com/ericfisherdev/reviewloop/internal/id"
)

// --- Mock implementations ---

type mockAnalyzer struct {
	mu      sync.Mutex
	calls   []driven.AnalyzeRequest
	analyze func(ctx context.Context, req driven.AnalyzeRequest) (*driven.AnalyzeResponse, error)
}

func (m *mockAnalyzer) Analyze(ctx context.Context, req driven.AnalyzeRequest) (*driven.AnalyzeResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.analyze
	m.mu.Unlock()

	if fn == nil {
		return &driven.AnalyzeResponse{}, nil
	}
	return fn(ctx, req)
}

func (m *mockAnalyzer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockAnalyzer) returns(suggestions ...driven.CandidateSuggestion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyze = func(_ context.Context, _ driven.AnalyzeRequest) (*driven.AnalyzeResponse, error) {
		return &driven.AnalyzeResponse{Suggestions: suggestions}, nil
	}
}

// --- Fixture ---

type fixture struct {
	db       *memory.DB
	repos    *memory.RepoRepo
	prs      *memory.PRRepo
	snaps    *memory.SnapshotRepo
	jobs     *memory.JobRepo
	pubs     *memory.PublishRepo
	votes    *memory.FeedbackRepo
	analyzer *mockAnalyzer

	repoSvc     *application.RepoService
	snapshotSvc *application.SnapshotService
	jobSvc      *application.JobService
	feedbackSvc *application.FeedbackService
	publishSvc  *application.PublishService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ids, err := id.NewGenerator(1)
	require.NoError(t, err)

	db := memory.NewDB()
	f := &fixture{
		db:       db,
		repos:    memory.NewRepoRepo(db),
		prs:      memory.NewPRRepo(db),
		snaps:    memory.NewSnapshotRepo(db),
		jobs:     memory.NewJobRepo(db),
		pubs:     memory.NewPublishRepo(db),
		votes:    memory.NewFeedbackRepo(db),
		analyzer: &mockAnalyzer{},
	}

	f.repoSvc = application.NewRepoService(f.repos, f.prs, ids)
	f.snapshotSvc = application.NewSnapshotService(f.repos, f.prs, f.snaps, ids)
	f.feedbackSvc = application.NewFeedbackService(f.prs, f.pubs, f.votes, ids)
	f.jobSvc = application.NewJobService(f.prs, f.snaps, f.jobs, f.analyzer, f.feedbackSvc, ids, 5)
	f.publishSvc = application.NewPublishService(f.prs, f.jobs, f.pubs, f.feedbackSvc, ids)
	return f
}

func (f *fixture) repo(t *testing.T) *model.Repository {
	t.Helper()
	repo, err := f.repoSvc.EnsureRepository(context.Background(), "octo/widgets")
	require.NoError(t, err)
	return repo
}

func (f *fixture) sync(t *testing.T, repoID string, number int, head string, files ...model.FileInput) *application.SyncResult {
	t.Helper()
	res, err := f.snapshotSvc.Sync(context.Background(), application.SyncInput{
		RepoID: repoID,
		Number: number,
		Meta:   model.PRMetadata{Title: "Add widgets", Author: "octocat", HeadSHA: head, BaseSHA: "base"},
		Files:  files,
	})
	require.NoError(t, err)
	return res
}

// doneJob syncs a PR with one file, creates a job and executes it with the
// analyzer's configured response.
func (f *fixture) doneJob(t *testing.T, maxComments int) (*application.SyncResult, *model.AnalysisJob) {
	t.Helper()
	ctx := context.Background()

	synced := f.sync(t, f.repo(t).ID, 7, "head-1", model.FileInput{Path: "main.go", Patch: tenLinePatch()})
	job, err := f.jobSvc.CreateJob(ctx, application.CreateJobInput{
		PRID:        synced.PR.ID,
		SnapshotID:  synced.Snapshot.ID,
		MaxComments: maxComments,
	})
	require.NoError(t, err)
	require.NoError(t, f.jobSvc.Execute(ctx, job.ID))

	done, err := f.jobSvc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusDone, done.Status)
	return synced, done
}

func tenLinePatch() string {
	var b strings.Builder
	b.WriteString("@@ -1,0 +1,10 @@\n")
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, "+line %d\n", i)
	}
	return b.String()
}

func oversizedPatch() string {
	line := "+" + strings.Repeat("x", 1023) + "\n"
	return "@@ -1,0 +1,400 @@\n" + strings.Repeat(line, 400)
}

func candidate(path string, start int, title string, sev model.Severity) driven.CandidateSuggestion {
	return driven.CandidateSuggestion{
		FilePath:  path,
		LineStart: start,
		LineEnd:   start,
		Severity:  sev,
		Category:  model.CategoryBug,
		Title:     title,
		Body:      "Consider handling this case.",
	}
}

func paginationRequest(cursor string, limit int) pagination.Request {
	return pagination.Request{Cursor: cursor, Limit: limit}
}
