// Package pagination implements the opaque-cursor paging shared by every
// list operation. Parsing is total: bad input falls back to defaults and never
// produces an error.
package pagination

import (
	"encoding/base64"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is used when the caller supplies no usable limit.
	DefaultLimit = 50
	// MaxLimit caps the page size.
	MaxLimit = 200

	cursorPrefix = "o:"
)

// Request addresses one page of a collection.
type Request struct {
	Cursor string
	Limit  int
}

// Page is one slice of a collection plus the cursor for the next slice.
// NextCursor is nil when the page reaches the end of the collection.
type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"next_cursor"`
	Limit      int     `json:"limit"`
}

// ParseLimit converts a raw query value into a page size. Empty, non-numeric
// and non-positive values yield DefaultLimit; values above MaxLimit are clamped.
func ParseLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultLimit
	}
	return NormalizeLimit(n)
}

// NormalizeLimit applies the default and the cap to an already numeric limit.
func NormalizeLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// EncodeCursor returns the opaque token for a zero-based offset.
func EncodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

// DecodeCursor returns the offset encoded in raw. Empty, undecodable or
// negative cursors decode to 0.
func DecodeCursor(raw string) int {
	if raw == "" {
		return 0
	}

	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return 0
	}

	s, ok := strings.CutPrefix(string(data), cursorPrefix)
	if !ok {
		return 0
	}

	offset, err := strconv.Atoi(s)
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

// Paginate returns the page of items addressed by req. items must already be
// in their final display order.
func Paginate[T any](items []T, req Request) Page[T] {
	limit := NormalizeLimit(req.Limit)
	offset := DecodeCursor(req.Cursor)

	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}

	page := Page[T]{
		Items: make([]T, 0, end-offset),
		Limit: limit,
	}
	page.Items = append(page.Items, items[offset:end]...)

	if end < len(items) {
		next := EncodeCursor(end)
		page.NextCursor = &next
	}

	return page
}

// Map converts the items of a page while keeping its cursor and limit.
func Map[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := Page[U]{
		Items:      make([]U, 0, len(p.Items)),
		NextCursor: p.NextCursor,
		Limit:      p.Limit,
	}
	for _, item := range p.Items {
		out.Items = append(out.Items, fn(item))
	}
	return out
}
