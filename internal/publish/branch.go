package publish

import (
	"regexp"
	"strings"
)

// DefaultBranchMaxLength is the branch name cap used when none is configured.
const DefaultBranchMaxLength = 60

var (
	branchInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9-]+`)
	branchHyphens      = regexp.MustCompile(`-{2,}`)
)

// BranchName derives a deterministic branch name from the request text.
// The result only contains [a-zA-Z0-9-] and is at most maxLen long.
func BranchName(prefix, request string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultBranchMaxLength
	}

	name := request
	if prefix != "" {
		name = prefix + "-" + request
	}
	name = branchInvalidChars.ReplaceAllString(name, "-")
	name = branchHyphens.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")

	if len(name) > maxLen {
		name = strings.TrimRight(name[:maxLen], "-")
	}
	if name == "" {
		return "feature"
	}
	return name
}
