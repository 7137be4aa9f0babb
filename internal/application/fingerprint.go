package application

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// NormalizeTitle lower-cases title and collapses every whitespace run to a
// single space.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// Fingerprint derives a suggestion's stable identity from its location and
// normalized title. The result is a hex-encoded SHA-256 digest.
func Fingerprint(filePath string, lineStart, lineEnd int, title string) string {
	var b strings.Builder
	b.WriteString(filePath)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(lineStart))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(lineEnd))
	b.WriteByte('|')
	b.WriteString(NormalizeTitle(title))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
