// Package docprocessor turns uploaded report documents into clean plain text.
// This file holds the small pure helpers shared with the summarization layers.
package docprocessor

import "unicode/utf8"

// Ellipsis is appended to text shortened by TruncateWithEllipsis.
const Ellipsis = "..."

// EstimateTokenCount provides a rough estimate of tokens in a text using an
// average of 4 characters per token.
//
// Example:
//
//	tokens := EstimateTokenCount("Hello, world!") // Returns 3
func EstimateTokenCount(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// TruncateRunes returns the first maxRunes characters of text. Text that is
// already short enough is returned unchanged.
//
// Example:
//
//	TruncateRunes("héllo", 2) // "hé"
func TruncateRunes(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == maxRunes {
			return text[:i]
		}
		count++
	}
	return text
}

// TruncateWithEllipsis returns the first maxRunes characters of text followed
// by Ellipsis when text is longer, or text itself otherwise. Unlike a display
// truncation the marker is added on top of maxRunes, so the kept prefix is
// always exactly maxRunes characters.
//
// Example:
//
//	TruncateWithEllipsis("abcdef", 3) // "abc..."
//	TruncateWithEllipsis("abc", 3)    // "abc"
func TruncateWithEllipsis(text string, maxRunes int) string {
	prefix := TruncateRunes(text, maxRunes)
	if len(prefix) == len(text) {
		return text
	}
	return prefix + Ellipsis
}
