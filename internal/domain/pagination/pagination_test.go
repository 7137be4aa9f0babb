package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeItems(n int) []int {
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	return items
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"empty", "", DefaultLimit},
		{"numeric", "25", 25},
		{"zero", "0", DefaultLimit},
		{"negative", "-4", DefaultLimit},
		{"non-numeric", "ten", DefaultLimit},
		{"above max", "1000", MaxLimit},
		{"exact max", "200", MaxLimit},
		{"padded", " 10 ", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLimit(tt.raw))
		})
	}
}

func TestDecodeCursor_InvalidFallsBackToZero(t *testing.T) {
	assert.Equal(t, 0, DecodeCursor(""))
	assert.Equal(t, 0, DecodeCursor("!!not-base64!!"))
	assert.Equal(t, 0, DecodeCursor("bm9wZQ"))          // "nope"
	assert.Equal(t, 0, DecodeCursor(EncodeCursor(-3))) // negative offsets are rejected
	assert.Equal(t, 42, DecodeCursor(EncodeCursor(42)))
}

func TestPaginate_RoundTrip120(t *testing.T) {
	items := makeItems(120)

	first := Paginate(items, Request{Limit: 50})
	require.Len(t, first.Items, 50)
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, 0, first.Items[0])

	second := Paginate(items, Request{Cursor: *first.NextCursor, Limit: 50})
	require.Len(t, second.Items, 50)
	require.NotNil(t, second.NextCursor)
	assert.Equal(t, 50, second.Items[0])

	third := Paginate(items, Request{Cursor: *second.NextCursor, Limit: 50})
	require.Len(t, third.Items, 20)
	assert.Nil(t, third.NextCursor)
	assert.Equal(t, 119, third.Items[19])

	// Re-requesting page two is deterministic.
	for i := 0; i < 3; i++ {
		again := Paginate(items, Request{Cursor: *first.NextCursor, Limit: 50})
		assert.Equal(t, second.Items, again.Items)
		assert.Equal(t, *second.NextCursor, *again.NextCursor)
	}
}

func TestPaginate_ExactEndHasNoNextCursor(t *testing.T) {
	page := Paginate(makeItems(50), Request{Limit: 50})

	assert.Len(t, page.Items, 50)
	assert.Nil(t, page.NextCursor)
}

func TestPaginate_OffsetPastEnd(t *testing.T) {
	page := Paginate(makeItems(5), Request{Cursor: EncodeCursor(99), Limit: 10})

	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Nil(t, page.NextCursor)
}

func TestPaginate_DefaultsLimit(t *testing.T) {
	page := Paginate(makeItems(60), Request{})

	assert.Equal(t, DefaultLimit, page.Limit)
	assert.Len(t, page.Items, DefaultLimit)
}

func TestMap(t *testing.T) {
	page := Paginate(makeItems(3), Request{Limit: 2})

	mapped := Map(page, func(i int) string { return string(rune('a' + i)) })

	assert.Equal(t, []string{"a", "b"}, mapped.Items)
	assert.Equal(t, page.NextCursor, mapped.NextCursor)
	assert.Equal(t, 2, mapped.Limit)
}
