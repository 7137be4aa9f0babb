package model

import "time"

// Suggestion is one finding produced by the analyzer for a job.
// (JobID, Fingerprint) is unique.
type Suggestion struct {
	ID          string
	JobID       string
	Fingerprint string // Stable across jobs; used for dedup and feedback correlation.
	FilePath    string
	LineStart   int
	LineEnd     int
	Severity    Severity
	Category    Category
	Title       string
	Body        string
	Citations   []string
	Confidence  float64
	CreatedAt   time.Time
}
