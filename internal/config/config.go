// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable with REVIEWLOOP_STORE.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBPath          string
	Store           string
	AnalyzerURL     string
	AnalyzerTimeout time.Duration
	Workers         int
	QueueSize       int
	MaxPerFile      int
	NodeID          int64
	GitHubToken     string
}

// HasGitHubToken reports whether a GitHub token was configured. Used by the
// composition root to decide whether GitHub sync is available at startup.
func (c *Config) HasGitHubToken() bool {
	return c.GitHubToken != ""
}

// Load reads configuration from environment variables and returns a validated
// Config. A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
//
// Optional variables with defaults: REVIEWLOOP_LISTEN_ADDR (127.0.0.1:8080),
// REVIEWLOOP_DB_PATH (reviewloop.db), REVIEWLOOP_STORE (sqlite),
// REVIEWLOOP_ANALYZER_URL (http://127.0.0.1:8090), REVIEWLOOP_ANALYZER_TIMEOUT (2m),
// REVIEWLOOP_WORKERS (4), REVIEWLOOP_QUEUE_SIZE (256), REVIEWLOOP_MAX_PER_FILE (10),
// REVIEWLOOP_NODE_ID (1). REVIEWLOOP_GITHUB_TOKEN is optional; without it
// GitHub sync is unavailable.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:  envOr("REVIEWLOOP_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:      envOr("REVIEWLOOP_DB_PATH", "reviewloop.db"),
		Store:       envOr("REVIEWLOOP_STORE", StoreSQLite),
		AnalyzerURL: envOr("REVIEWLOOP_ANALYZER_URL", "http://127.0.0.1:8090"),
		GitHubToken: os.Getenv("REVIEWLOOP_GITHUB_TOKEN"),
	}

	if cfg.Store != StoreSQLite && cfg.Store != StoreMemory {
		return nil, fmt.Errorf("REVIEWLOOP_STORE must be %q or %q, got %q", StoreSQLite, StoreMemory, cfg.Store)
	}

	cfg.AnalyzerTimeout = 2 * time.Minute
	if v, ok := os.LookupEnv("REVIEWLOOP_ANALYZER_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("REVIEWLOOP_ANALYZER_TIMEOUT has invalid duration %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("REVIEWLOOP_ANALYZER_TIMEOUT must be positive, got %s", parsed)
		}
		cfg.AnalyzerTimeout = parsed
	}

	var err error
	if cfg.Workers, err = positiveInt("REVIEWLOOP_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = positiveInt("REVIEWLOOP_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.MaxPerFile, err = positiveInt("REVIEWLOOP_MAX_PER_FILE", 10); err != nil {
		return nil, err
	}

	cfg.NodeID = 1
	if v, ok := os.LookupEnv("REVIEWLOOP_NODE_ID"); ok {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 || parsed > 1023 {
			return nil, fmt.Errorf("REVIEWLOOP_NODE_ID must be an integer in [0, 1023], got %q", v)
		}
		cfg.NodeID = parsed
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func positiveInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
