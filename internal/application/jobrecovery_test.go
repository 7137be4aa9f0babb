package application_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqliteadapter "github.com/ericfisherdev/reviewloop/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/reviewloop/internal/application"
	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
	"github.com/ericfisherdev/reviewloop/internal/id"
)

// sqliteFixture wires the job services to a file-backed SQLite store, where a
// canceled context makes every query fail.
type sqliteFixture struct {
	jobs        *sqliteadapter.JobRepo
	analyzer    *mockAnalyzer
	repoSvc     *application.RepoService
	snapshotSvc *application.SnapshotService
	jobSvc      *application.JobService
}

func newSQLiteFixture(t *testing.T) *sqliteFixture {
	t.Helper()

	db, err := sqliteadapter.NewDB(filepath.Join(t.TempDir(), "reviewloop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqliteadapter.RunMigrations(db.Writer))

	ids, err := id.NewGenerator(1)
	require.NoError(t, err)

	repos := sqliteadapter.NewRepoRepo(db)
	prs := sqliteadapter.NewPRRepo(db)
	snaps := sqliteadapter.NewSnapshotRepo(db)
	f := &sqliteFixture{
		jobs:     sqliteadapter.NewJobRepo(db),
		analyzer: &mockAnalyzer{},
	}
	feedbackSvc := application.NewFeedbackService(prs, sqliteadapter.NewPublishRepo(db), sqliteadapter.NewFeedbackRepo(db), ids)
	f.repoSvc = application.NewRepoService(repos, prs, ids)
	f.snapshotSvc = application.NewSnapshotService(repos, prs, snaps, ids)
	f.jobSvc = application.NewJobService(prs, snaps, f.jobs, f.analyzer, feedbackSvc, ids, 5)
	return f
}

func (f *sqliteFixture) queuedJob(t *testing.T) *model.AnalysisJob {
	t.Helper()
	ctx := context.Background()

	repo, err := f.repoSvc.EnsureRepository(ctx, "octo/widgets")
	require.NoError(t, err)
	synced, err := f.snapshotSvc.Sync(ctx, application.SyncInput{
		RepoID: repo.ID,
		Number: 7,
		Meta:   model.PRMetadata{Title: "Add widgets", Author: "octocat", HeadSHA: "head-1", BaseSHA: "base"},
		Files:  []model.FileInput{{Path: "main.go", Patch: tenLinePatch()}},
	})
	require.NoError(t, err)

	job, err := f.jobSvc.CreateJob(ctx, application.CreateJobInput{
		PRID: synced.PR.ID, SnapshotID: synced.Snapshot.ID, MaxComments: 10,
	})
	require.NoError(t, err)
	return job
}

func TestJobRunner_ShutdownFailsInFlightJob(t *testing.T) {
	f := newSQLiteFixture(t)

	analyzing := make(chan struct{})
	var once sync.Once
	f.analyzer.analyze = func(ctx context.Context, _ driven.AnalyzeRequest) (*driven.AnalyzeResponse, error) {
		once.Do(func() { close(analyzing) })
		<-ctx.Done()
		return nil, ctx.Err()
	}

	runner := application.NewJobRunner(f.jobSvc, 1, 4)
	f.jobSvc.SetScheduler(runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	job := f.queuedJob(t)

	select {
	case <-analyzing:
	case <-time.After(2 * time.Second):
		t.Fatal("job never reached the analyzer")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}

	stored, err := f.jobSvc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, stored.Status.IsTerminal(), "status %s", stored.Status)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	assert.Equal(t, application.ShutdownReason, stored.Error)
	assert.NotNil(t, stored.FinishedAt)

	events, err := f.jobs.ListEvents(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, model.EventLevelError, last.Level)
	assert.Equal(t, "job failed: "+application.ShutdownReason, last.Message)
}

func TestExecute_CanceledContextLeavesJobQueued(t *testing.T) {
	f := newSQLiteFixture(t)
	job := f.queuedJob(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.jobSvc.Execute(ctx, job.ID))

	stored, err := f.jobSvc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, stored.Status)
	assert.Zero(t, f.analyzer.callCount())
}

func TestRecoverJobs_RequeuesQueuedAndFailsRunning(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	f.analyzer.returns(candidate("main.go", 1, "found", model.SeverityMedium))

	orphan := f.queuedJob(t)
	orphan.Status = model.JobStatusRunning
	require.NoError(t, f.jobs.UpdateJob(ctx, *orphan))
	pending := f.queuedJob(t)

	runner := application.NewJobRunner(f.jobSvc, 1, 4)
	f.jobSvc.SetScheduler(runner)

	requeued, failed, err := f.jobSvc.RecoverJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	assert.Equal(t, 1, failed)

	stored, err := f.jobSvc.GetJob(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	assert.Equal(t, application.RestartReason, stored.Error)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = runner.Run(runCtx) }()

	require.Eventually(t, func() bool {
		got, err := f.jobSvc.GetJob(ctx, pending.ID)
		return err == nil && got.Status == model.JobStatusDone
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecoverJobs_QueueFullFailsJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	synced := f.sync(t, f.repo(t).ID, 7, "head-1", model.FileInput{Path: "main.go", Patch: tenLinePatch()})
	in := application.CreateJobInput{PRID: synced.PR.ID, SnapshotID: synced.Snapshot.ID, MaxComments: 10}
	first, err := f.jobSvc.CreateJob(ctx, in)
	require.NoError(t, err)
	second, err := f.jobSvc.CreateJob(ctx, in)
	require.NoError(t, err)

	// Never started, so only one job fits.
	f.jobSvc.SetScheduler(application.NewJobRunner(f.jobSvc, 1, 1))

	requeued, failed, err := f.jobSvc.RecoverJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	assert.Equal(t, 1, failed)

	kept, err := f.jobSvc.GetJob(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, kept.Status)

	dropped, err := f.jobSvc.GetJob(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, dropped.Status)
	assert.Contains(t, dropped.Error, application.ErrQueueFull.Error())
}
