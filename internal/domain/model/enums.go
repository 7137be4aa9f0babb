package model

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// IsTerminal returns true for done, failed and canceled.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed || s == JobStatusCanceled
}

// EventLevel is the severity of a job event.
type EventLevel string

const (
	EventLevelInfo  EventLevel = "info"
	EventLevelWarn  EventLevel = "warn"
	EventLevelError EventLevel = "error"
)

// Severity represents how serious a suggestion is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Weight returns the ranking weight of the severity (higher = more severe).
// Unknown severities weigh 0.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// NormalizeSeverity maps unknown or empty severities to SeverityInfo.
func NormalizeSeverity(s Severity) Severity {
	if s.Weight() == 0 {
		return SeverityInfo
	}
	return s
}

// Category represents the kind of issue a suggestion addresses.
type Category string

const (
	CategoryBug             Category = "bug"
	CategorySecurity        Category = "security"
	CategoryPerformance     Category = "performance"
	CategoryCorrectness     Category = "correctness"
	CategoryStyle           Category = "style"
	CategoryMaintainability Category = "maintainability"
	CategoryTesting         Category = "testing"
	CategoryDocs            Category = "docs"
)

// AllCategories lists every supported category in a stable order. It is the
// default analysis scope when a job is created without one.
func AllCategories() []Category {
	return []Category{
		CategoryBug,
		CategorySecurity,
		CategoryPerformance,
		CategoryCorrectness,
		CategoryStyle,
		CategoryMaintainability,
		CategoryTesting,
		CategoryDocs,
	}
}

// IsValid reports whether c is one of the supported categories.
func (c Category) IsValid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// PublishMode selects how suggestions are posted to the pull request.
type PublishMode string

const (
	PublishModeInline  PublishMode = "inline"  // One review comment per suggestion line.
	PublishModeSummary PublishMode = "summary" // Comments grouped under a summary review.
)

// IsValid reports whether m is a supported publish mode.
func (m PublishMode) IsValid() bool {
	return m == PublishModeInline || m == PublishModeSummary
}

// CommentState is the delivery state of a published comment.
type CommentState string

const (
	CommentStatePosted CommentState = "posted"
)

// Vote is a user's feedback on a published comment.
type Vote string

const (
	VoteUp   Vote = "up"
	VoteDown Vote = "down"
)

// IsValid reports whether v is up or down.
func (v Vote) IsValid() bool {
	return v == VoteUp || v == VoteDown
}

// Score returns +1 for an up vote, -1 for a down vote and 0 otherwise.
func (v Vote) Score() int {
	switch v {
	case VoteUp:
		return 1
	case VoteDown:
		return -1
	default:
		return 0
	}
}

// FileStatus is the change type of a file in a pull request.
type FileStatus string

const (
	FileStatusAdded    FileStatus = "added"
	FileStatusModified FileStatus = "modified"
	FileStatusRemoved  FileStatus = "removed"
	FileStatusRenamed  FileStatus = "renamed"
)

// IsValid reports whether s is a known file status.
func (s FileStatus) IsValid() bool {
	switch s {
	case FileStatusAdded, FileStatusModified, FileStatusRemoved, FileStatusRenamed:
		return true
	default:
		return false
	}
}
