package model

import "time"

// JobProgress tracks how many of a job's files have been processed.
type JobProgress struct {
	FilesDone int `json:"files_done"`
	Total     int `json:"total"`
}

// JobSummary is filled in when a job finishes successfully.
type JobSummary struct {
	TotalSuggestions int      `json:"total_suggestions"`
	PartialFailures  int      `json:"partial_failures"`
	FilesSkipped     int      `json:"files_skipped"`
	Warnings         []string `json:"warnings,omitempty"`
}

// AnalysisJob runs the analyzer over one snapshot of a pull request.
// Status transitions: queued -> running -> {done, failed, canceled} and
// queued -> canceled. Terminal states never change.
type AnalysisJob struct {
	ID          string
	PRID        string
	SnapshotID  string
	Status      JobStatus
	Scope       []Category
	Files       []string // Resolved file paths to analyze, in snapshot order.
	MaxComments int
	Progress    JobProgress
	Summary     JobSummary
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	UpdatedAt   time.Time
}

// JobEvent is an append-only log line recorded while a job runs.
type JobEvent struct {
	ID        string
	JobID     string
	Level     EventLevel
	Message   string
	CreatedAt time.Time
}
