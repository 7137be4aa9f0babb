package model

import "errors"

// Domain error taxonomy. Services wrap these with context via fmt.Errorf and
// %w; callers classify with errors.Is or ErrorCode.
var (
	// ErrValidation indicates malformed caller input. No state was changed.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates an unknown repository, PR, snapshot, job or comment.
	ErrNotFound = errors.New("not found")

	// ErrLimitExceeded indicates a sync exceeded the file count cap.
	ErrLimitExceeded = errors.New("limit exceeded")

	// ErrInvalidSnapshot indicates the snapshot does not belong to the PR.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrJobPRMismatch indicates the job does not belong to the PR.
	ErrJobPRMismatch = errors.New("job does not belong to pull request")
)

// Error codes exposed to API clients.
const (
	CodeValidation      = "validation_error"
	CodeNotFound        = "not_found"
	CodeLimitExceeded   = "limit_exceeded"
	CodeInvalidSnapshot = "invalid_snapshot"
	CodeJobPRMismatch   = "job_pr_mismatch"
	CodeInternal        = "internal_error"
)

// ErrorCode classifies err into one of the API error codes. Errors outside
// the taxonomy map to CodeInternal.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrLimitExceeded):
		return CodeLimitExceeded
	case errors.Is(err, ErrInvalidSnapshot):
		return CodeInvalidSnapshot
	case errors.Is(err, ErrJobPRMismatch):
		return CodeJobPRMismatch
	default:
		return CodeInternal
	}
}
