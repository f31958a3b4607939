package publish

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidRemoteURL indicates the remote URL is not a recognized git URL.
var ErrInvalidRemoteURL = errors.New("invalid git remote URL")

var (
	// git@github.com:org/repo.git or git@gitlab.com:group/sub/repo.git
	scpPattern = regexp.MustCompile(`^[\w.-]+@([^:/]+):(.+?)(?:\.git)?/?$`)

	// ssh://git@github.com/org/repo.git, https://github.com/org/repo.git
	urlPattern = regexp.MustCompile(`^(?:ssh|https?|git)://(?:[^@/]+@)?([^/:]+)(?::\d+)?/(.+?)(?:\.git)?/?$`)
)

// ParseRemoteURL splits a git remote URL into its host and repository path.
//
// Examples:
//   - git@github.com:org/repo.git -> github.com, org/repo
//   - ssh://git@gitlab.com/group/sub/repo.git -> gitlab.com, group/sub/repo
//   - https://github.com/org/repo -> github.com, org/repo
func ParseRemoteURL(url string) (host, slug string, err error) {
	url = strings.TrimSpace(url)

	if m := urlPattern.FindStringSubmatch(url); m != nil {
		return m[1], m[2], nil
	}
	if m := scpPattern.FindStringSubmatch(url); m != nil {
		return m[1], m[2], nil
	}
	return "", "", ErrInvalidRemoteURL
}

// ResolveSlug returns slug if set, otherwise the repository path of the git remote.
func ResolveSlug(ctx context.Context, git *GitClient, slug string) (string, error) {
	if slug != "" {
		return slug, nil
	}
	url, err := git.RemoteURL(ctx)
	if err != nil {
		return "", err
	}
	_, path, err := ParseRemoteURL(url)
	if err != nil {
		return "", err
	}
	return path, nil
}
