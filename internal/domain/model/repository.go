package model

import "time"

// Repository is a source repository whose pull requests are analyzed.
type Repository struct {
	ID        string
	Owner     string
	Name      string
	FullName  string // "owner/name"; globally unique.
	CreatedAt time.Time
}
