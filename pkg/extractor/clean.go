package extractor

import (
	"regexp"
	"strings"
)

// maxContentChars caps the text sent to the model.
const maxContentChars = 30000

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	// Keeps word characters, whitespace, and common punctuation. Everything
	// else (wiki macros, emoji, control characters) is noise to the model.
	specialCharPattern = regexp.MustCompile(`[^\w\s.,;:!?'"$()/=>-]`)
)

// CleanContent strips HTML tags, collapses whitespace, and removes special
// characters so wiki storage-format bodies read as plain text.
func CleanContent(content string) string {
	clean := htmlTagPattern.ReplaceAllString(content, " ")
	clean = specialCharPattern.ReplaceAllString(clean, "")
	clean = whitespacePattern.ReplaceAllString(clean, " ")
	return strings.TrimSpace(clean)
}

// TruncateContent bounds content to maxContentChars, marking the cut.
func TruncateContent(content string) string {
	if len(content) <= maxContentChars {
		return content
	}
	return content[:maxContentChars] + "... [truncated]"
}
