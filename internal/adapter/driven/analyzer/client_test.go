package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/reviewloop/internal/domain/diff"
	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

func sampleRequest() driven.AnalyzeRequest {
	parsed := diff.Parse("@@ -1 +1,2 @@\n a\n+b")
	return driven.AnalyzeRequest{
		JobID:      "job_1",
		SnapshotID: "snap_1",
		Scope:      []model.Category{model.CategoryBug, model.CategorySecurity},
		Files: []driven.AnalyzeFile{{
			Path:     "main.go",
			Language: "go",
			Patch:    "@@ -1 +1,2 @@\n a\n+b",
			Hunks:    parsed.Hunks,
			LineMap:  parsed.LineMap,
		}},
		Limits: driven.AnalyzeLimits{MaxComments: 20, MaxPerFile: 10},
	}
}

func TestClient_Analyze_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/analyze", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"suggestions": [{
				"filePath": "main.go", "lineStart": 2, "lineEnd": 2,
				"severity": "HIGH", "category": "bug",
				"title": "Possible nil", "body": "b may be nil",
				"citations": ["main.go:2"], "confidence": 0.9
			}],
			"partialFailures": 1
		}`))
	}))
	defer srv.Close()

	client := NewClientWithHTTPClient(srv.URL+"/", srv.Client())
	resp, err := client.Analyze(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, "job_1", got["jobId"])
	assert.Equal(t, "snap_1", got["snapshotId"])
	assert.Equal(t, []any{"bug", "security"}, got["scope"])
	limits := got["limits"].(map[string]any)
	assert.Equal(t, float64(20), limits["maxComments"])
	assert.Equal(t, float64(10), limits["maxPerFile"])
	files := got["files"].([]any)
	require.Len(t, files, 1)
	file := files[0].(map[string]any)
	assert.Equal(t, "main.go", file["path"])

	hunks := file["hunks"].([]any)
	require.Len(t, hunks, 1)
	hunk := hunks[0].(map[string]any)
	assert.Equal(t, float64(1), hunk["oldStart"])
	assert.Equal(t, float64(1), hunk["oldLines"])
	assert.Equal(t, float64(1), hunk["newStart"])
	assert.Equal(t, float64(2), hunk["newLines"])
	assert.Contains(t, hunk, "header")
	assert.NotContains(t, hunk, "old_start")

	lineMap := file["lineMap"].([]any)
	require.Len(t, lineMap, 2)
	ctxLine := lineMap[0].(map[string]any)
	assert.Equal(t, "ctx", ctxLine["kind"])
	assert.Equal(t, float64(1), ctxLine["oldLine"])
	assert.Equal(t, float64(1), ctxLine["newLine"])
	assert.Contains(t, ctxLine, "patchLine")
	added := lineMap[1].(map[string]any)
	assert.Equal(t, "add", added["kind"])
	assert.Nil(t, added["oldLine"])
	assert.Equal(t, float64(2), added["newLine"])
	assert.NotContains(t, added, "patch_line")

	require.Len(t, resp.Suggestions, 1)
	s := resp.Suggestions[0]
	assert.Equal(t, model.SeverityHigh, s.Severity)
	assert.Equal(t, model.CategoryBug, s.Category)
	assert.Equal(t, 2, s.LineStart)
	assert.Equal(t, []string{"main.go:2"}, s.Citations)
	assert.InDelta(t, 0.9, s.Confidence, 1e-9)
	assert.Equal(t, 1, resp.PartialFailures)
}

func TestClient_Analyze_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClientWithHTTPClient(srv.URL, srv.Client())
	_, err := client.Analyze(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestClient_Analyze_LongErrorBodyIsTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	client := NewClientWithHTTPClient(srv.URL, srv.Client())
	_, err := client.Analyze(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 700)
	assert.True(t, strings.HasSuffix(err.Error(), "..."))
}

func TestExcerpt_CutsOnRuneBoundary(t *testing.T) {
	// One ASCII byte shifts every 3-byte rune so byte maxErrorBody lands mid-rune.
	body := "x" + strings.Repeat("€", maxErrorBody)

	got := excerpt([]byte(body))

	require.True(t, strings.HasSuffix(got, "..."))
	trimmed := strings.TrimSuffix(got, "...")
	assert.True(t, utf8.ValidString(trimmed))
	assert.LessOrEqual(t, len(trimmed), maxErrorBody)
	assert.Len(t, trimmed, maxErrorBody-1)
}

func TestClient_Analyze_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"suggestions": [`))
	}))
	defer srv.Close()

	client := NewClientWithHTTPClient(srv.URL, srv.Client())
	_, err := client.Analyze(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding analyzer response")
}

func TestClient_Analyze_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(srv.URL, 50*time.Millisecond)
	_, err := client.Analyze(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calling analyzer")
}
