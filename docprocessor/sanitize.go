package docprocessor

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Sanitize cleans extracted report text before it is stored or shown to any
// model:
//
//  1. NFC normalization
//  2. C0 control characters (and DEL) removed, except newline, tab and
//     carriage return
//  3. remaining non-printable characters, carriage return included, replaced
//     by a space
//  4. runs of spaces and tabs collapsed to one space
//  5. every line trimmed
//  6. leading and trailing empty lines dropped; interior blank lines kept
//
// Removing control characters can leave a base letter next to a combining
// mark, so the result is normalized once more. Sanitize is idempotent and
// never fails.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}

	text = norm.NFC.String(text)
	text = stripControl(text)
	text = replaceNonPrintable(text)
	text = collapseHorizontalSpace(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}

	start, end := 0, len(lines)
	for start < end && lines[start] == "" {
		start++
	}
	for end > start && lines[end-1] == "" {
		end--
	}

	return norm.NFC.String(strings.Join(lines[start:end], "\n"))
}

// isStrippedControl reports whether r belongs to the removed C0 set.
// A bare CR separates words in old Mac files, so it is left for
// replaceNonPrintable to turn into a space.
func isStrippedControl(r rune) bool {
	if r == '\n' || r == '\t' || r == '\r' {
		return false
	}
	return r < 0x20 || r == 0x7f
}

func stripControl(text string) string {
	return strings.Map(func(r rune) rune {
		if isStrippedControl(r) {
			return -1
		}
		return r
	}, text)
}

// replaceNonPrintable maps every rune unicode.IsPrint rejects to a space.
// Invalid UTF-8 bytes come through range as utf8.RuneError, which is printable,
// so they end up as U+FFFD.
func replaceNonPrintable(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' || unicode.IsPrint(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte(' ')
	}
	return b.String()
}

func collapseHorizontalSpace(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inRun := false
	for _, r := range text {
		if r == ' ' || r == '\t' {
			if !inRun {
				b.WriteByte(' ')
				inRun = true
			}
			continue
		}
		inRun = false
		b.WriteRune(r)
	}
	return b.String()
}
