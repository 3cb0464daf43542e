package source

import (
	"path/filepath"
	"strings"
)

// languageByExtension maps file extensions (without the dot) to language
// names. Extensions absent from the map are treated as binary or opaque
// and excluded from language statistics.
var languageByExtension = map[string]string{
	"go":       "go",
	"py":       "python",
	"pyi":      "python",
	"js":       "javascript",
	"jsx":      "javascript",
	"mjs":      "javascript",
	"ts":       "typescript",
	"tsx":      "typescript",
	"java":     "java",
	"rb":       "ruby",
	"rs":       "rust",
	"c":        "c",
	"h":        "c",
	"cpp":      "cpp",
	"cc":       "cpp",
	"cxx":      "cpp",
	"hpp":      "cpp",
	"cs":       "csharp",
	"php":      "php",
	"swift":    "swift",
	"kt":       "kotlin",
	"kts":      "kotlin",
	"scala":    "scala",
	"dart":     "dart",
	"sh":       "shell",
	"bash":     "shell",
	"sql":      "sql",
	"md":       "markdown",
	"markdown": "markdown",
	"rst":      "markdown",
	"json":     "json",
	"yaml":     "yaml",
	"yml":      "yaml",
	"toml":     "toml",
	"xml":      "xml",
	"html":     "html",
	"htm":      "html",
	"css":      "css",
	"scss":     "scss",
	"sass":     "scss",
	"vue":      "vue",
	"svelte":   "svelte",
	"proto":    "protobuf",
	"tf":       "terraform",
	"gradle":   "groovy",
}

// languageByFilename covers well-known files without a telling extension.
var languageByFilename = map[string]string{
	"dockerfile": "dockerfile",
	"makefile":   "makefile",
	"gemfile":    "ruby",
	"rakefile":   "ruby",
	"go.mod":     "go",
	"go.sum":     "go",
}

// LanguageForPath classifies a file path into a language name, or ""
// when the file is binary or unrecognized.
func LanguageForPath(path string) string {
	base := strings.ToLower(filepath.Base(path))
	if lang, ok := languageByFilename[base]; ok {
		return lang
	}

	ext := filepath.Ext(base)
	if ext == "" {
		return ""
	}
	return languageByExtension[ext[1:]]
}
