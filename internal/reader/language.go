package reader

import "strings"

// LanguageText is the tag for any extension outside the fixed mapping
const LanguageText = "text"

var languages = map[string]string{
	".py":   "python",
	".php":  "php",
	".js":   "javascript",
	".ts":   "typescript",
	".md":   "markdown",
	".mdx":  "markdown",
	".json": "json",
	".yml":  "yaml",
	".yaml": "yaml",
}

// LanguageFor derives the language tag from a file extension
func LanguageFor(path string) string {
	if lang, ok := languages[strings.ToLower(Suffix(path))]; ok {
		return lang
	}
	return LanguageText
}
