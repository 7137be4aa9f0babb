package application_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/reviewloop/internal/application"
	"github.com/ericfisherdev/reviewloop/internal/domain/model"
)

func TestPublish_CreatesCommentsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.analyzer.returns(
		candidate("main.go", 2, "Possible nil dereference", model.SeverityHigh),
		candidate("main.go", 5, "Shadowed variable", model.SeverityLow),
	)
	synced, job := f.doneJob(t, 10)

	first, err := f.publishSvc.Publish(ctx, application.PublishInput{PRID: synced.PR.ID, JobID: job.ID, Mode: model.PublishModeInline})
	require.NoError(t, err)
	assert.False(t, first.Idempotent)
	assert.Equal(t, 2, first.PublishedCount)
	require.Len(t, first.Comments, 2)

	c := first.Comments[0]
	assert.True(t, strings.HasPrefix(c.ExternalID, "ext_"))
	assert.Equal(t, model.CommentStatePosted, c.State)
	assert.Equal(t, 2, c.Line)
	assert.Equal(t, "**[high] Possible nil dereference**\n\nConsider handling this case.", c.Body)

	for _, dryRun := range []bool{false, true} {
		again, err := f.publishSvc.Publish(ctx, application.PublishInput{PRID: synced.PR.ID, JobID: job.ID, Mode: model.PublishModeInline, DryRun: dryRun})
		require.NoError(t, err)
		assert.True(t, again.Idempotent)
		assert.Equal(t, first.RunID, again.RunID)
		assert.Equal(t, first.Comments, again.Comments)
	}

	comments, err := f.pubs.ListCommentsByPR(ctx, synced.PR.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 2)
}

func TestPublish_DryRunRecordsRunWithoutComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.analyzer.returns(candidate("main.go", 2, "Something", model.SeverityMedium))
	synced, job := f.doneJob(t, 10)

	dry, err := f.publishSvc.Publish(ctx, application.PublishInput{PRID: synced.PR.ID, JobID: job.ID, Mode: model.PublishModeSummary, DryRun: true})
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Zero(t, dry.PublishedCount)
	assert.Empty(t, dry.Comments)

	published, err := f.publishSvc.Publish(ctx, application.PublishInput{PRID: synced.PR.ID, JobID: job.ID, Mode: model.PublishModeSummary})
	require.NoError(t, err)
	assert.True(t, published.Idempotent)
	assert.Equal(t, dry.RunID, published.RunID)
	assert.Zero(t, published.PublishedCount)

	// A different mode is a different key.
	inline, err := f.publishSvc.Publish(ctx, application.PublishInput{PRID: synced.PR.ID, JobID: job.ID, Mode: model.PublishModeInline})
	require.NoError(t, err)
	assert.False(t, inline.Idempotent)
	assert.NotEqual(t, dry.RunID, inline.RunID)
	assert.Equal(t, 1, inline.PublishedCount)
}

func TestPublish_SummaryModeCommentsAreUnanchored(t *testing.T) {
	f := newFixture(t)
	f.analyzer.returns(candidate("main.go", 4, "Something", model.SeverityMedium))
	synced, job := f.doneJob(t, 10)

	res, err := f.publishSvc.Publish(context.Background(), application.PublishInput{PRID: synced.PR.ID, JobID: job.ID, Mode: model.PublishModeSummary})
	require.NoError(t, err)
	require.Len(t, res.Comments, 1)
	assert.Zero(t, res.Comments[0].Line)
	assert.Equal(t, "main.go", res.Comments[0].FilePath)
}

func TestPublish_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	synced, job := f.doneJob(t, 10)
	other := f.sync(t, synced.PR.RepoID, 99, "other-head", model.FileInput{Path: "x.go", Patch: tenLinePatch()})

	queued, err := f.jobSvc.CreateJob(ctx, application.CreateJobInput{PRID: synced.PR.ID, SnapshotID: synced.Snapshot.ID, MaxComments: 3})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   application.PublishInput
		want error
	}{
		{"unknown mode", application.PublishInput{PRID: synced.PR.ID, JobID: job.ID, Mode: "carrier-pigeon"}, model.ErrValidation},
		{"unknown PR", application.PublishInput{PRID: "pr_missing", JobID: job.ID, Mode: model.PublishModeInline}, model.ErrNotFound},
		{"unknown job", application.PublishInput{PRID: synced.PR.ID, JobID: "job_missing", Mode: model.PublishModeInline}, model.ErrNotFound},
		{"job of another PR", application.PublishInput{PRID: other.PR.ID, JobID: job.ID, Mode: model.PublishModeInline}, model.ErrJobPRMismatch},
		{"job not done", application.PublishInput{PRID: synced.PR.ID, JobID: queued.ID, Mode: model.PublishModeInline}, model.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.publishSvc.Publish(ctx, tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPublish_ConcurrentCallsShareOneRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.analyzer.returns(candidate("main.go", 2, "Something", model.SeverityMedium))
	synced, job := f.doneJob(t, 10)

	const callers = 8
	runIDs := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.publishSvc.Publish(ctx, application.PublishInput{PRID: synced.PR.ID, JobID: job.ID, Mode: model.PublishModeInline})
			assert.NoError(t, err)
			if res != nil {
				runIDs[i] = res.RunID
			}
		}()
	}
	wg.Wait()

	for _, runID := range runIDs {
		assert.Equal(t, runIDs[0], runID)
	}
	comments, err := f.pubs.ListCommentsByPR(ctx, synced.PR.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}
