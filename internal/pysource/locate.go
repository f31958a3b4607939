package pysource

import (
	"regexp"
	"strings"
)

// encodingPattern matches a PEP 263 source encoding declaration.
var encodingPattern = regexp.MustCompile(`^[ \t\f]*#.*?coding[:=]`)

// Plan says where a snippet goes. Insert positions are "after line N",
// with 0 meaning the top of the file.
type Plan struct {
	ImportInsertAt int
	BodyInsertAt   int

	// Indent is the prefix applied to every non-blank body line.
	Indent string

	// MarkerFound is true when the body position came from an insertion marker.
	MarkerFound bool
}

// Locate computes the insertion plan for doc.
//
// Imports go after the final line of the last top-level import, so multi-line
// imports are never split. Without imports they go after the file header:
// shebang, encoding declaration and module docstring.
// The body goes after the last top-level function or class, or at the end of
// the file. A non-empty marker found in doc overrides the body position: the
// body goes on the line after the first line containing it.
func Locate(doc *Document, ix *StructuralIndex, marker string) Plan {
	var plan Plan

	if imp, ok := ix.Last(CategoryImport); ok {
		plan.ImportInsertAt = max(imp.StartLine, imp.EndLine)
	} else {
		plan.ImportInsertAt = headerEnd(doc, ix)
	}

	if marker != "" {
		for i, line := range doc.Lines {
			if strings.Contains(line, marker) {
				plan.BodyInsertAt = i + 1
				plan.Indent = markerIndent(doc, i+2, line)
				plan.MarkerFound = true
				return plan
			}
		}
	}

	if def, ok := ix.Last(CategoryFunction, CategoryClass); ok {
		plan.BodyInsertAt = def.EndLine
		plan.Indent = leadingWhitespace(doc.Line(def.StartLine))
	} else {
		plan.BodyInsertAt = doc.Len()
	}

	return plan
}

// markerIndent returns the deeper of the marker line's indentation and that
// of the first non-blank line after it. A marker closing a block keeps the
// block's indentation even though the next line is dedented.
func markerIndent(doc *Document, from int, markerLine string) string {
	own := leadingWhitespace(markerLine)
	for n := from; n <= doc.Len(); n++ {
		line := doc.Line(n)
		if strings.TrimSpace(line) == "" {
			continue
		}
		if next := leadingWhitespace(line); len(next) > len(own) {
			return next
		}
		break
	}
	return own
}

// headerEnd returns the last line of the file header: a shebang, an encoding
// declaration on line 1 or 2, and a leading module docstring.
func headerEnd(doc *Document, ix *StructuralIndex) int {
	end := 0
	for n := 1; n <= min(2, doc.Len()); n++ {
		line := doc.Line(n)
		if (n == 1 && strings.HasPrefix(line, "#!")) || encodingPattern.MatchString(line) {
			end = n
			continue
		}
		break
	}
	if cs := ix.Constructs(); len(cs) > 0 && cs[0].Category == CategoryDocstring {
		end = max(end, cs[0].EndLine)
	}
	return end
}
