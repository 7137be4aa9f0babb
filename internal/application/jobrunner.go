package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
)

// ErrQueueFull is returned by Enqueue when the runner's buffer is exhausted.
var ErrQueueFull = errors.New("job queue full")

// JobExecutor runs one job to completion. FailJob is used to settle a job
// whose execution panicked.
type JobExecutor interface {
	Execute(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID, reason string) (*model.AnalysisJob, error)
}

// JobRunner is a fixed pool of workers draining a buffered job queue.
// It implements JobScheduler.
type JobRunner struct {
	executor JobExecutor
	workers  int
	queue    chan string
}

// NewJobRunner creates a runner with the given worker count and queue depth.
func NewJobRunner(executor JobExecutor, workers, queueSize int) *JobRunner {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &JobRunner{
		executor: executor,
		workers:  workers,
		queue:    make(chan string, queueSize),
	}
}

// Enqueue schedules jobID without blocking.
func (r *JobRunner) Enqueue(jobID string) error {
	select {
	case r.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is canceled. A job in flight at
// shutdown is failed by the executor; jobs still in the queue stay queued in
// the store until JobService.RecoverJobs hands them out again.
func (r *JobRunner) Run(ctx context.Context) error {
	slog.Info("job runner started", "workers", r.workers, "queue_size", cap(r.queue))

	g, ctx := errgroup.WithContext(ctx)
	for i := range r.workers {
		g.Go(func() error {
			r.work(ctx, i)
			return nil
		})
	}

	err := g.Wait()
	slog.Info("job runner stopped")
	return err
}

func (r *JobRunner) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-r.queue:
			if err := r.executeSafe(ctx, jobID); err != nil {
				slog.Error("job execution failed", "worker", worker, "job_id", jobID, "error", err)
			}
		}
	}
}

func (r *JobRunner) executeSafe(ctx context.Context, jobID string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic recovered in job execution", "panic", rec, "job_id", jobID)
			err = fmt.Errorf("panic: %v", rec)
			if _, failErr := r.executor.FailJob(ctx, jobID, fmt.Sprintf("panic: %v", rec)); failErr != nil {
				err = errors.Join(err, failErr)
			}
		}
	}()
	return r.executor.Execute(ctx, jobID)
}
