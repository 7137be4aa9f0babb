// Package application contains use-case orchestration services.
package application

import "time"

// IDGenerator issues "{kind}_{unique}" identifiers. *id.Generator satisfies it.
type IDGenerator interface {
	New(kind string) string
}

// clock returns the current time. Services default to UTC wall time; tests
// substitute a deterministic sequence.
type clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}
