package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	inlineSpace     = regexp.MustCompile(`[ \t\x{00A0}]+`)
	excessiveBlanks = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes text pulled from a PDF text layer: line endings become
// LF, control characters other than newline and tab are dropped, runs of inline
// whitespace collapse to one space, and more than two consecutive blank lines
// are squeezed.
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	content = strings.ReplaceAll(content, "\f", "\n")

	content = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, content)

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
	}

	result := excessiveBlanks.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(result)
}
