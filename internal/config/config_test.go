package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every REVIEWLOOP_ env var that Load() reads.
var allConfigKeys = []string{
	"REVIEWLOOP_LISTEN_ADDR",
	"REVIEWLOOP_DB_PATH",
	"REVIEWLOOP_STORE",
	"REVIEWLOOP_ANALYZER_URL",
	"REVIEWLOOP_ANALYZER_TIMEOUT",
	"REVIEWLOOP_WORKERS",
	"REVIEWLOOP_QUEUE_SIZE",
	"REVIEWLOOP_MAX_PER_FILE",
	"REVIEWLOOP_NODE_ID",
	"REVIEWLOOP_GITHUB_TOKEN",
}

// isolateConfigEnv saves and unsets all REVIEWLOOP_ env vars so tests don't
// inherit values from the host environment (e.g. a running dev server).
// It also moves into an empty directory so no stray .env file is picked up.
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
	t.Chdir(t.TempDir())
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("REVIEWLOOP_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("REVIEWLOOP_DB_PATH", "/tmp/test.db")
	t.Setenv("REVIEWLOOP_STORE", "memory")
	t.Setenv("REVIEWLOOP_ANALYZER_URL", "http://analyzer:9000")
	t.Setenv("REVIEWLOOP_ANALYZER_TIMEOUT", "45s")
	t.Setenv("REVIEWLOOP_WORKERS", "8")
	t.Setenv("REVIEWLOOP_QUEUE_SIZE", "32")
	t.Setenv("REVIEWLOOP_MAX_PER_FILE", "3")
	t.Setenv("REVIEWLOOP_NODE_ID", "12")
	t.Setenv("REVIEWLOOP_GITHUB_TOKEN", "ghp_test123")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "http://analyzer:9000", cfg.AnalyzerURL)
	assert.Equal(t, 45*time.Second, cfg.AnalyzerTimeout)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 32, cfg.QueueSize)
	assert.Equal(t, 3, cfg.MaxPerFile)
	assert.Equal(t, int64(12), cfg.NodeID)
	assert.True(t, cfg.HasGitHubToken())
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "reviewloop.db", cfg.DBPath)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, "http://127.0.0.1:8090", cfg.AnalyzerURL)
	assert.Equal(t, 2*time.Minute, cfg.AnalyzerTimeout)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Equal(t, 10, cfg.MaxPerFile)
	assert.Equal(t, int64(1), cfg.NodeID)
	assert.False(t, cfg.HasGitHubToken())
}

func TestLoad_DotEnvFile(t *testing.T) {
	isolateConfigEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte("REVIEWLOOP_WORKERS=6\nREVIEWLOOP_DB_PATH=from-dotenv.db\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("REVIEWLOOP_WORKERS")
		os.Unsetenv("REVIEWLOOP_DB_PATH")
	})
	t.Setenv("REVIEWLOOP_DB_PATH", "from-env.db")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, "from-env.db", cfg.DBPath, "real environment wins over .env")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown store", "REVIEWLOOP_STORE", "postgres"},
		{"bad timeout", "REVIEWLOOP_ANALYZER_TIMEOUT", "soon"},
		{"zero timeout", "REVIEWLOOP_ANALYZER_TIMEOUT", "0s"},
		{"non-numeric workers", "REVIEWLOOP_WORKERS", "many"},
		{"zero workers", "REVIEWLOOP_WORKERS", "0"},
		{"negative queue", "REVIEWLOOP_QUEUE_SIZE", "-1"},
		{"zero max per file", "REVIEWLOOP_MAX_PER_FILE", "0"},
		{"node id out of range", "REVIEWLOOP_NODE_ID", "1024"},
		{"node id not a number", "REVIEWLOOP_NODE_ID", "one"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
