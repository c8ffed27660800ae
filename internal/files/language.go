package files

import "strings"

// DefaultLanguage is used for unmapped or missing extensions.
const DefaultLanguage = "plaintext"

var languages = map[string]string{
	"ts":   "typescript",
	"js":   "javascript",
	"jsx":  "javascript",
	"tsx":  "typescript",
	"json": "json",
	"md":   "markdown",
	"css":  "css",
	"html": "html",
	"py":   "python",
}

// LanguageFor maps a file name to the editor language tag using its
// extension (text after the last dot, case-insensitive).
func LanguageFor(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return DefaultLanguage
	}
	if lang, ok := languages[strings.ToLower(name[i+1:])]; ok {
		return lang
	}
	return DefaultLanguage
}
