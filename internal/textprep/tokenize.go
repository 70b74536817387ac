package textprep

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase word tokens. Tokens are whitespace
// separated fields with leading and trailing punctuation removed; internal
// apostrophes, hyphens and dots are kept ("don't", "e-mail", "e.g").
// Fields made only of punctuation or symbols are dropped, so a field never
// yields more than one token.
func Tokenize(text string) []string {
	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if tok := normalizeToken(f); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func normalizeToken(field string) string {
	field = strings.TrimFunc(field, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if field == "" {
		return ""
	}
	// Curly apostrophes from PDF text layers.
	field = strings.ReplaceAll(field, "’", "'")
	return strings.ToLower(field)
}

// CountWords returns the number of whitespace separated fields in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
