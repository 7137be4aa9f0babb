package httphandler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMarkdown_EmptyInput(t *testing.T) {
	assert.Equal(t, "", renderMarkdown(""))
}

func TestRenderMarkdown_SuggestionBody(t *testing.T) {
	result := renderMarkdown("**[high] Nil dereference**\n\nUse `errors.Is` here.")
	assert.Contains(t, result, "<strong>[high] Nil dereference</strong>")
	assert.Contains(t, result, "<code>errors.Is</code>")
}

func TestRenderMarkdown_CodeBlock(t *testing.T) {
	input := "```go\nfmt.Println(\"hello\")\n```"
	result := renderMarkdown(input)
	assert.Contains(t, result, "<code")
	assert.Contains(t, result, "fmt.Println")
}

func TestRenderMarkdown_Link(t *testing.T) {
	result := renderMarkdown("[docs](https://example.com)")
	assert.Contains(t, result, `<a href="https://example.com"`)
	assert.Contains(t, result, "docs</a>")
}

func TestRenderMarkdown_SanitizesScript(t *testing.T) {
	result := renderMarkdown(`<script>alert("xss")</script>`)
	assert.NotContains(t, result, "<script>")
}

func TestRenderMarkdown_GFMStrikethrough(t *testing.T) {
	result := renderMarkdown("~~deleted~~")
	assert.Contains(t, result, "<del>deleted</del>")
}

func TestRenderPatch_EmptyInput(t *testing.T) {
	assert.Equal(t, "", renderPatch(""))
}

func TestRenderPatch_LineClasses(t *testing.T) {
	patch := "--- a/main.go\n+++ b/main.go\n@@ -1,3 +1,4 @@\n context line\n+added line\n-removed line"
	result := renderPatch(patch)

	assert.Contains(t, result, `class="diff-file"`)
	assert.Contains(t, result, `class="diff-header"`)
	assert.Contains(t, result, `class="diff-ctx"`)
	assert.Contains(t, result, `class="diff-add"`)
	assert.Contains(t, result, `class="diff-del"`)
	assert.Equal(t, 6, strings.Count(result, "<span"))
}

func TestRenderPatch_EscapesHTML(t *testing.T) {
	result := renderPatch("+<script>alert('xss')</script>")

	assert.NotContains(t, result, "<script>")
	assert.Contains(t, result, `class="diff-add"`)
}
