package snippet

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zeebo/xxh3"
)

var (
	definitionPattern = regexp.MustCompile(`^(?:async\s+)?(?:def|class)\s+(\w+)`)
	entryPointPattern = regexp.MustCompile(`^(?:async\s+)?def\s+(\w+)\s*\(\s*\)`)
	requestPrefix     = regexp.MustCompile(`(?i)^\s*(?:/feature|feature\s+request)\s*:?\s*`)
	nonIdentChars     = regexp.MustCompile(`[^a-z0-9_]+`)
	repeatUnderscore  = regexp.MustCompile(`_+`)
)

// pythonKeywords are reserved words that cannot be used as module names.
var pythonKeywords = map[string]bool{
	"and": true, "as": true, "assert": true, "async": true, "await": true, "break": true,
	"class": true, "continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true, "if": true,
	"import": true, "in": true, "is": true, "lambda": true, "nonlocal": true, "not": true,
	"or": true, "pass": true, "raise": true, "return": true, "try": true, "while": true,
	"with": true, "yield": true, "none": true, "true": true, "false": true,
}

// maxNameWords caps how many request words make up a fallback feature name.
const maxNameWords = 5

// Definitions returns the names of the top-level functions and classes in the body, in order.
func (s Snippet) Definitions() []string {
	var names []string
	for _, line := range s.Body {
		if m := definitionPattern.FindStringSubmatch(line); m != nil {
			names = append(names, m[1])
		}
	}
	return names
}

// EntryPoint returns the first top-level function that takes no arguments, or "".
func (s Snippet) EntryPoint() string {
	for _, line := range s.Body {
		if m := entryPointPattern.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

// Fingerprint returns a stable hex hash of the classified content.
func (s Snippet) Fingerprint() string {
	h := xxh3.HashString(strings.Join(s.Imports, "\n") + "\x00" + strings.Join(s.Body, "\n"))
	return fmt.Sprintf("%016x", h)
}

// FeatureName picks a feature identifier: the first top-level definition in
// the snippet, else the first few words of the request.
func FeatureName(s Snippet, request string) string {
	if defs := s.Definitions(); len(defs) > 0 {
		return ModuleName(defs[0])
	}

	words := strings.Fields(requestPrefix.ReplaceAllString(request, ""))
	if len(words) > maxNameWords {
		words = words[:maxNameWords]
	}
	return ModuleName(strings.Join(words, "_"))
}

// ModuleName converts name into a valid, lower-case Python module identifier.
func ModuleName(name string) string {
	n := strings.ToLower(name)
	n = nonIdentChars.ReplaceAllString(n, "_")
	n = repeatUnderscore.ReplaceAllString(n, "_")
	n = strings.Trim(n, "_")

	if n == "" {
		return "feature"
	}
	if (n[0] >= '0' && n[0] <= '9') || pythonKeywords[n] {
		return "feature_" + n
	}
	return n
}
