// Package diff parses unified-diff patches into hunks and a per-line map of
// old/new line numbers.
package diff

import (
	"regexp"
	"strconv"
	"strings"
)

// LineKind classifies a patch line.
type LineKind string

const (
	LineAdd LineKind = "add"
	LineDel LineKind = "del"
	LineCtx LineKind = "ctx"
)

// hunkHeaderPattern matches "@@ -oldStart[,oldLines] +newStart[,newLines] @@ header".
var hunkHeaderPattern = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@ ?(.*)$`)

// Hunk is one "@@" section of a patch.
type Hunk struct {
	OldStart int    `json:"old_start"`
	OldLines int    `json:"old_lines"`
	NewStart int    `json:"new_start"`
	NewLines int    `json:"new_lines"`
	Header   string `json:"header"`
}

// LineMapEntry locates one add/del/ctx patch line in the old and new file.
// OldLine is nil for added lines and NewLine is nil for deleted lines.
type LineMapEntry struct {
	Kind      LineKind `json:"kind"`
	PatchLine int      `json:"patch_line"` // 1-based index within the patch.
	OldLine   *int     `json:"old_line"`
	NewLine   *int     `json:"new_line"`
}

// Result is the parsed form of a single-file patch.
type Result struct {
	Hunks   []Hunk
	LineMap []LineMapEntry

	// Orphans counts add/del/ctx lines that appeared before any hunk header.
	// They carry no reliable line numbers and are left out of LineMap.
	Orphans int
}

// Parse scans a unified-diff patch for one file. File header lines ("---",
// "+++") are skipped and never move the line counters. Lines outside any hunk
// are counted in Orphans but not mapped. Parse never fails: an empty or
// header-less patch yields an empty Result.
func Parse(patch string) Result {
	res := Result{
		Hunks:   []Hunk{},
		LineMap: []LineMapEntry{},
	}
	if patch == "" {
		return res
	}

	var oldLine, newLine int
	inHunk := false

	for i, line := range strings.Split(patch, "\n") {
		patchLine := i + 1

		if strings.HasPrefix(line, "@@") {
			h, ok := parseHunkHeader(line)
			if !ok {
				continue
			}
			res.Hunks = append(res.Hunks, h)
			oldLine, newLine = h.OldStart, h.NewStart
			inHunk = true
			continue
		}

		if isFileHeader(line) {
			continue
		}

		var kind LineKind
		switch {
		case strings.HasPrefix(line, "+"):
			kind = LineAdd
		case strings.HasPrefix(line, "-"):
			kind = LineDel
		case strings.HasPrefix(line, " "):
			kind = LineCtx
		default:
			// Blank trailing lines and "\ No newline at end of file".
			continue
		}

		if !inHunk {
			res.Orphans++
			continue
		}

		entry := LineMapEntry{Kind: kind, PatchLine: patchLine}
		switch kind {
		case LineAdd:
			entry.NewLine = intPtr(newLine)
			newLine++
		case LineDel:
			entry.OldLine = intPtr(oldLine)
			oldLine++
		case LineCtx:
			entry.OldLine = intPtr(oldLine)
			entry.NewLine = intPtr(newLine)
			oldLine++
			newLine++
		}
		res.LineMap = append(res.LineMap, entry)
	}

	return res
}

// CountChanges returns the number of added and deleted lines in patch,
// ignoring the "+++" and "---" file headers.
func CountChanges(patch string) (additions, deletions int) {
	if patch == "" {
		return 0, 0
	}
	for _, line := range strings.Split(patch, "\n") {
		switch {
		case isFileHeader(line):
		case strings.HasPrefix(line, "+"):
			additions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	return additions, deletions
}

// Stats summarizes a parsed line map by kind.
type Stats struct {
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
	Context int `json:"context"`
}

// Stats counts the line map entries of each kind.
func (r Result) Stats() Stats {
	var s Stats
	for _, e := range r.LineMap {
		switch e.Kind {
		case LineAdd:
			s.Added++
		case LineDel:
			s.Deleted++
		case LineCtx:
			s.Context++
		}
	}
	return s
}

func parseHunkHeader(line string) (Hunk, bool) {
	m := hunkHeaderPattern.FindStringSubmatch(line)
	if m == nil {
		return Hunk{}, false
	}

	return Hunk{
		OldStart: atoiDefault(m[1], 0),
		OldLines: atoiDefault(m[2], 1),
		NewStart: atoiDefault(m[3], 0),
		NewLines: atoiDefault(m[4], 1),
		Header:   strings.TrimSpace(m[5]),
	}, true
}

func isFileHeader(line string) bool {
	return strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---")
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func intPtr(v int) *int {
	return &v
}
