// Package ingestion reads document text out of PDF files.
package ingestion

import (
	"regexp"
	"strings"
)

var (
	innerSpace   = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	extraBlanks  = regexp.MustCompile(`\n{4,}`)
	bulletPrefix = regexp.MustCompile(`^([-*•·]|\d+[.)])\s`)
)

// CleanText normalizes extracted text: CRLF and CR become LF, runs of spaces
// inside a line collapse to one, trailing spaces are trimmed and at most two
// consecutive blank lines are kept. Leading indentation of list items is kept.
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	content = strings.ReplaceAll(content, "\x00", "")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = cleanLine(line)
	}

	result := extraBlanks.ReplaceAllString(strings.Join(lines, "\n"), "\n\n\n")
	return strings.TrimSpace(result)
}

func cleanLine(line string) string {
	line = strings.TrimRight(line, " \t\f\v\u00a0")
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return ""
	}

	body := innerSpace.ReplaceAllString(trimmed, " ")
	if bulletPrefix.MatchString(trimmed) {
		return strings.Repeat(" ", len(line)-len(trimmed)) + body
	}
	return body
}
