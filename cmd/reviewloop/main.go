package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	analyzeradapter "github.com/ericfisherdev/reviewloop/internal/adapter/driven/analyzer"
	githubadapter "github.com/ericfisherdev/reviewloop/internal/adapter/driven/github"
	"github.com/ericfisherdev/reviewloop/internal/adapter/driven/memory"
	sqliteadapter "github.com/ericfisherdev/reviewloop/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/reviewloop/internal/adapter/driving/http"
	"github.com/ericfisherdev/reviewloop/internal/application"
	"github.com/ericfisherdev/reviewloop/internal/config"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
	"github.com/ericfisherdev/reviewloop/internal/id"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// stores groups the driven store ports of one backend.
type stores struct {
	repos     driven.RepoStore
	prs       driven.PRStore
	snapshots driven.SnapshotStore
	jobs      driven.JobStore
	publish   driven.PublishStore
	feedback  driven.FeedbackStore
	pinger    httphandler.Pinger
	close     func() error
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.Store == config.StoreMemory {
		db := memory.NewDB()
		slog.Warn("using in-memory store, data is lost on restart")
		return &stores{
			repos:     memory.NewRepoRepo(db),
			prs:       memory.NewPRRepo(db),
			snapshots: memory.NewSnapshotRepo(db),
			jobs:      memory.NewJobRepo(db),
			publish:   memory.NewPublishRepo(db),
			feedback:  memory.NewFeedbackRepo(db),
			close:     func() error { return nil },
		}, nil
	}

	// Dual reader/writer with WAL mode.
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", cfg.DBPath)

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("migrations complete")

	return &stores{
		repos:     sqliteadapter.NewRepoRepo(db),
		prs:       sqliteadapter.NewPRRepo(db),
		snapshots: sqliteadapter.NewSnapshotRepo(db),
		jobs:      sqliteadapter.NewJobRepo(db),
		publish:   sqliteadapter.NewPublishRepo(db),
		feedback:  sqliteadapter.NewFeedbackRepo(db),
		pinger:    db,
		close:     db.Close,
	}, nil
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"store", cfg.Store,
		"db_path", cfg.DBPath,
		"analyzer_url", cfg.AnalyzerURL,
		"workers", cfg.Workers,
		"node_id", cfg.NodeID,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the configured store.
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.close(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()

	ids, err := id.NewGenerator(cfg.NodeID)
	if err != nil {
		return err
	}

	// 4. Create driven adapters. GitHub sync stays unavailable without a token.
	var source driven.PRSource
	if cfg.HasGitHubToken() {
		source = githubadapter.NewClient(cfg.GitHubToken)
		slog.Info("github client created")
	} else {
		slog.Info("no github token configured, github sync disabled")
	}
	provider := application.NewPRSourceProvider(source)
	analyzer := analyzeradapter.NewClient(cfg.AnalyzerURL, cfg.AnalyzerTimeout)

	// 5. Wire application services.
	repoSvc := application.NewRepoService(st.repos, st.prs, ids)
	snapshotSvc := application.NewSnapshotService(st.repos, st.prs, st.snapshots, ids)
	githubSvc := application.NewGitHubSyncService(provider, st.repos, snapshotSvc)
	feedbackSvc := application.NewFeedbackService(st.prs, st.publish, st.feedback, ids)
	jobSvc := application.NewJobService(st.prs, st.snapshots, st.jobs, analyzer, feedbackSvc, ids, cfg.MaxPerFile)
	publishSvc := application.NewPublishService(st.prs, st.jobs, st.publish, feedbackSvc, ids)

	// 6. Start the job worker pool.
	runner := application.NewJobRunner(jobSvc, cfg.Workers, cfg.QueueSize)
	jobSvc.SetScheduler(runner)
	if _, _, err := jobSvc.RecoverJobs(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := runner.Run(ctx); err != nil {
			slog.Error("job runner error", "error", err)
		}
	}()

	// 7. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(httphandler.Services{
		Repos:     repoSvc,
		Snapshots: snapshotSvc,
		GitHub:    githubSvc,
		Jobs:      jobSvc,
		Publish:   publishSvc,
		Feedback:  feedbackSvc,
	}, st.pinger, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("reviewloop started", "listen_addr", cfg.ListenAddr, "github_sync", provider.HasSource())

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 9. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// In-flight jobs are failed with reason "shutdown" and still-queued jobs
	// are picked up by RecoverJobs on the next start. Wait for the workers to
	// settle them before the store closes.
	select {
	case <-runnerDone:
	case <-shutdownCtx.Done():
		slog.Warn("job runner did not stop before shutdown deadline")
	}

	slog.Info("shutdown complete")
	return nil
}
