package cleaner

import "unicode/utf8"

// EstimateTokens approximates the model token count of text as runes / 3,
// never less than 1 for non-empty text. It over-counts English slightly.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return max(n/3, 1)
}

// TruncateTokens cuts text to roughly maxTokens tokens, breaking at the
// last whitespace before the limit when there is one.
func TruncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text
	}
	runes := []rune(text)
	cut := min(maxTokens*3, len(runes))
	for i := cut; i > cut/2; i-- {
		if runes[i-1] == ' ' || runes[i-1] == '\n' {
			return string(runes[:i-1]) + "…"
		}
	}
	return string(runes[:cut]) + "…"
}
