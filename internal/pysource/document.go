// Package pysource indexes and validates Python source with tree-sitter and
// computes where new code can be inserted.
package pysource

import "strings"

// Document is a source file held as lines. Line numbers are 1-based.
type Document struct {
	Lines           []string
	TrailingNewline bool
}

// NewDocument splits text into lines.
func NewDocument(text string) *Document {
	if text == "" {
		return &Document{}
	}
	trailing := strings.HasSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\n")
	return &Document{Lines: strings.Split(text, "\n"), TrailingNewline: trailing}
}

// Len returns the number of lines.
func (d *Document) Len() int {
	return len(d.Lines)
}

// Line returns line n (1-based), or "" when out of range.
func (d *Document) Line(n int) string {
	if n < 1 || n > len(d.Lines) {
		return ""
	}
	return d.Lines[n-1]
}

// InsertAfter inserts lines after line n; n == 0 prepends, n >= Len appends.
func (d *Document) InsertAfter(n int, lines []string) {
	if len(lines) == 0 {
		return
	}
	n = max(0, min(n, len(d.Lines)))
	out := make([]string, 0, len(d.Lines)+len(lines))
	out = append(out, d.Lines[:n]...)
	out = append(out, lines...)
	out = append(out, d.Lines[n:]...)
	d.Lines = out
}

// HasLine reports whether an unindented line equal to line (ignoring trailing space) exists.
func (d *Document) HasLine(line string) bool {
	want := strings.TrimRight(line, " \t\r")
	for _, l := range d.Lines {
		if strings.TrimRight(l, " \t\r") == want {
			return true
		}
	}
	return false
}

// String joins the lines back into text.
func (d *Document) String() string {
	s := strings.Join(d.Lines, "\n")
	if d.TrailingNewline {
		s += "\n"
	}
	return s
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	lines := make([]string, len(d.Lines))
	copy(lines, d.Lines)
	return &Document{Lines: lines, TrailingNewline: d.TrailingNewline}
}

// leadingWhitespace returns the indentation prefix of line.
func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
