// Package snippet separates import statements from body code in untrusted
// generated text.
package snippet

import (
	"strings"
)

// Mode selects how lines outside a fenced block are treated.
type Mode string

const (
	// ModeDefensive keeps only lines that begin a definition or an import,
	// plus their indented continuation lines.
	ModeDefensive Mode = "defensive"

	// ModePermissive keeps every non-blank, non-comment line.
	ModePermissive Mode = "permissive"
)

const fence = "```"

// definitionPrefixes are the line starts kept outside a fence in defensive mode.
var definitionPrefixes = []string{"class ", "def ", "async def ", "import ", "from ", "@"}

// Snippet is the classified result: imports and body, each in original order.
type Snippet struct {
	Imports []string
	Body    []string
}

// Empty reports whether nothing could be extracted.
func (s Snippet) Empty() bool {
	return len(s.Imports) == 0 && len(s.Body) == 0
}

// Text renders the snippet as a standalone module: imports, a blank line, then the body.
func (s Snippet) Text() string {
	var sb strings.Builder
	for _, line := range s.Imports {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if len(s.Imports) > 0 && len(s.Body) > 0 {
		sb.WriteString("\n\n")
	}
	for _, line := range s.Body {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Classify splits blob into import lines and body lines. It never fails;
// an empty Snippet means nothing usable was found.
func Classify(blob string, mode Mode) Snippet {
	var s Snippet
	insideFence := false
	continuing := false

	// importDepth is the number of unclosed parentheses of the current import;
	// importContinued is set after a trailing backslash.
	importDepth := 0
	importContinued := false

	for _, raw := range strings.Split(blob, "\n") {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, fence) {
			insideFence = !insideFence
			continuing = false
			continue
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if importDepth > 0 || importContinued {
			s.Imports = append(s.Imports, line)
			importDepth = max(importDepth+parenDelta(line), 0)
			importContinued = strings.HasSuffix(trimmed, "\\")
			continue
		}

		if !insideFence && mode != ModePermissive {
			switch {
			case hasAnyPrefix(line, definitionPrefixes):
				continuing = true
			case continuing && isIndented(line):
			default:
				continuing = false
				continue
			}
		}

		if isImport(line) {
			s.Imports = append(s.Imports, line)
			importDepth = max(parenDelta(line), 0)
			importContinued = strings.HasSuffix(trimmed, "\\")
		} else {
			s.Body = append(s.Body, line)
		}
	}

	return s
}

// isImport reports whether line is an unindented import statement.
func isImport(line string) bool {
	return strings.HasPrefix(line, "import ") || strings.HasPrefix(line, "from ")
}

// parenDelta returns opened minus closed parentheses on line.
func parenDelta(line string) int {
	return strings.Count(line, "(") - strings.Count(line, ")")
}

func isIndented(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
