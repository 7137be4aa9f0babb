package model

import "time"

// PublishKey identifies a publish run. At most one run exists per key.
type PublishKey struct {
	PRID  string
	JobID string
	Mode  PublishMode
}

// PublishRun records that a job's suggestions were published (or dry-run
// published) to a pull request.
type PublishRun struct {
	ID                  string
	PRID                string
	JobID               string
	Mode                PublishMode
	DryRun              bool
	PublishedCommentIDs []string
	CreatedAt           time.Time
}

// Key returns the idempotency key of the run.
func (r PublishRun) Key() PublishKey {
	return PublishKey{PRID: r.PRID, JobID: r.JobID, Mode: r.Mode}
}

// PublishedComment is a comment created from a suggestion by a non-dry-run
// publish. Suggestion attributes are copied so feedback can be aggregated
// without joining back to the suggestion.
type PublishedComment struct {
	ID           string
	PRID         string
	JobID        string
	PublishRunID string
	SuggestionID string
	Fingerprint  string
	FilePath     string
	Line         int
	Severity     Severity
	Category     Category
	Body         string
	ExternalID   string
	State        CommentState
	CreatedAt    time.Time
}
