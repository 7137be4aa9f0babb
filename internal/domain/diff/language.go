package diff

import (
	"path"
	"strings"
)

// DefaultLanguage is returned for paths without a known extension.
const DefaultLanguage = "text"

var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".rb":    "ruby",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".yml":   "yaml",
	".yaml":  "yaml",
	".json":  "json",
	".toml":  "toml",
	".md":    "markdown",
	".html":  "html",
	".css":   "css",
	".scss":  "scss",
	".proto": "protobuf",
	".tf":    "terraform",
}

// DetectLanguage maps a file path to a language name by extension. The lookup
// is case-insensitive; unknown or missing extensions return DefaultLanguage.
func DetectLanguage(filePath string) string {
	if path.Base(filePath) == "Dockerfile" {
		return "dockerfile"
	}
	ext := strings.ToLower(path.Ext(filePath))
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return DefaultLanguage
}
