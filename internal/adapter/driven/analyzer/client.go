// Package analyzer adapts the external suggestion generator, reached over
// HTTP, to the driven.Analyzer port.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ericfisherdev/reviewloop/internal/domain/diff"
	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Analyzer = (*Client)(nil)

// DefaultTimeout bounds a single analyze call when none is configured.
const DefaultTimeout = 2 * time.Minute

// maxErrorBody caps how much of a failed response body ends up in the error.
const maxErrorBody = 512

// maxResponseBody guards against runaway analyzer responses.
const maxResponseBody = 16 << 20

// Client posts analyze requests to {baseURL}/v1/analyze.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates an analyzer client. A non-positive timeout falls back to
// DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewClientWithHTTPClient(baseURL, &http.Client{Timeout: timeout})
}

// NewClientWithHTTPClient creates an analyzer client using a caller-supplied
// http.Client. Used in tests to target an httptest server.
func NewClientWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1/analyze")
	return &Client{
		endpoint:   baseURL + "/v1/analyze",
		httpClient: httpClient,
	}
}

type wireHunk struct {
	OldStart int    `json:"oldStart"`
	OldLines int    `json:"oldLines"`
	NewStart int    `json:"newStart"`
	NewLines int    `json:"newLines"`
	Header   string `json:"header"`
}

type wireLineMapEntry struct {
	Kind      string `json:"kind"`
	PatchLine int    `json:"patchLine"`
	OldLine   *int   `json:"oldLine"`
	NewLine   *int   `json:"newLine"`
}

type analyzeFile struct {
	Path     string             `json:"path"`
	Language string             `json:"language"`
	Patch    string             `json:"patch"`
	Hunks    []wireHunk         `json:"hunks,omitempty"`
	LineMap  []wireLineMapEntry `json:"lineMap,omitempty"`
}

type analyzeLimits struct {
	MaxComments int `json:"maxComments"`
	MaxPerFile  int `json:"maxPerFile"`
}

type analyzeRequest struct {
	JobID      string           `json:"jobId"`
	SnapshotID string           `json:"snapshotId"`
	Scope      []model.Category `json:"scope"`
	Files      []analyzeFile    `json:"files"`
	Limits     analyzeLimits    `json:"limits"`
}

type candidate struct {
	FilePath    string   `json:"filePath"`
	LineStart   int      `json:"lineStart"`
	LineEnd     int      `json:"lineEnd"`
	Severity    string   `json:"severity"`
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Citations   []string `json:"citations"`
	Confidence  float64  `json:"confidence"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

type analyzeResponse struct {
	Suggestions     []candidate `json:"suggestions"`
	PartialFailures int         `json:"partialFailures"`
}

// Analyze sends req to the analyzer and decodes its candidate suggestions.
// Any non-2xx status is an error carrying the status and a body excerpt.
func (c *Client) Analyze(ctx context.Context, req driven.AnalyzeRequest) (*driven.AnalyzeResponse, error) {
	payload, err := json.Marshal(toWire(req))
	if err != nil {
		return nil, fmt.Errorf("marshaling analyze request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating analyze request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling analyzer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading analyzer response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("analyzer returned status %d: %s", resp.StatusCode, excerpt(body))
	}

	var wire analyzeResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decoding analyzer response: %w", err)
	}

	return fromWire(wire), nil
}

func toWire(req driven.AnalyzeRequest) analyzeRequest {
	files := make([]analyzeFile, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, analyzeFile{
			Path:     f.Path,
			Language: f.Language,
			Patch:    f.Patch,
			Hunks:    wireHunks(f.Hunks),
			LineMap:  wireLineMap(f.LineMap),
		})
	}

	scope := req.Scope
	if scope == nil {
		scope = []model.Category{}
	}

	return analyzeRequest{
		JobID:      req.JobID,
		SnapshotID: req.SnapshotID,
		Scope:      scope,
		Files:      files,
		Limits: analyzeLimits{
			MaxComments: req.Limits.MaxComments,
			MaxPerFile:  req.Limits.MaxPerFile,
		},
	}
}

func wireHunks(hunks []diff.Hunk) []wireHunk {
	if len(hunks) == 0 {
		return nil
	}
	out := make([]wireHunk, len(hunks))
	for i, h := range hunks {
		out[i] = wireHunk{
			OldStart: h.OldStart,
			OldLines: h.OldLines,
			NewStart: h.NewStart,
			NewLines: h.NewLines,
			Header:   h.Header,
		}
	}
	return out
}

func wireLineMap(entries []diff.LineMapEntry) []wireLineMapEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]wireLineMapEntry, len(entries))
	for i, e := range entries {
		out[i] = wireLineMapEntry{
			Kind:      string(e.Kind),
			PatchLine: e.PatchLine,
			OldLine:   e.OldLine,
			NewLine:   e.NewLine,
		}
	}
	return out
}

func fromWire(wire analyzeResponse) *driven.AnalyzeResponse {
	out := &driven.AnalyzeResponse{
		Suggestions:     make([]driven.CandidateSuggestion, 0, len(wire.Suggestions)),
		PartialFailures: wire.PartialFailures,
	}
	for _, s := range wire.Suggestions {
		out.Suggestions = append(out.Suggestions, driven.CandidateSuggestion{
			FilePath:    s.FilePath,
			LineStart:   s.LineStart,
			LineEnd:     s.LineEnd,
			Severity:    model.Severity(strings.ToLower(s.Severity)),
			Category:    model.Category(strings.ToLower(s.Category)),
			Title:       s.Title,
			Body:        s.Body,
			Citations:   s.Citations,
			Confidence:  s.Confidence,
			Fingerprint: s.Fingerprint,
		})
	}
	return out
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		// Cut on a rune boundary.
		n := maxErrorBody
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n] + "..."
	}
	if s == "" {
		return "<empty body>"
	}
	return s
}
