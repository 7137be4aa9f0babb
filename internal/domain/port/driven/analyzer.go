package driven

import (
	"context"

	"github.com/ericfisherdev/reviewloop/internal/domain/diff"
	"github.com/ericfisherdev/reviewloop/internal/domain/model"
)

// AnalyzeFile is one file sent to the analyzer.
type AnalyzeFile struct {
	Path     string
	Language string
	Patch    string
	Hunks    []diff.Hunk         // Optional.
	LineMap  []diff.LineMapEntry // Optional.
}

// AnalyzeLimits bounds how many suggestions the analyzer may return.
type AnalyzeLimits struct {
	MaxComments int
	MaxPerFile  int
}

// AnalyzeRequest is the input to Analyzer.Analyze.
type AnalyzeRequest struct {
	JobID      string
	SnapshotID string
	Scope      []model.Category
	Files      []AnalyzeFile
	Limits     AnalyzeLimits
}

// CandidateSuggestion is one suggestion proposed by the analyzer.
// Fingerprint is optional; when empty the engine derives one.
type CandidateSuggestion struct {
	FilePath    string
	LineStart   int
	LineEnd     int
	Severity    model.Severity
	Category    model.Category
	Title       string
	Body        string
	Citations   []string
	Confidence  float64
	Fingerprint string
}

// AnalyzeResponse is the output of Analyzer.Analyze.
type AnalyzeResponse struct {
	Suggestions     []CandidateSuggestion
	PartialFailures int
}

// Analyzer defines the driven port for the external suggestion generator.
// It is treated as a black box with a fixed request/response contract.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error)
}
