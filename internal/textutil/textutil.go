// Package textutil splits line-oriented text inputs such as rule files.
package textutil

import (
	"bytes"
	"strings"
)

// normalize folds CRLF and lone CR line endings to LF and replaces invalid
// UTF-8 with U+FFFD.
func normalize(b []byte) []byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	b = bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))
	return bytes.ToValidUTF8(b, []byte("\uFFFD"))
}

// Lines normalizes b and splits it into lines without terminators. A final
// newline does not produce an empty trailing line.
func Lines(b []byte) []string {
	s := string(normalize(b))
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// SplitComment cuts line at the first marker and returns the trimmed text
// before it and the trimmed comment after it.
func SplitComment(line, marker string) (body, comment string) {
	if i := strings.Index(line, marker); i >= 0 {
		return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+len(marker):])
	}
	return strings.TrimSpace(line), ""
}
