package publish

import (
	"context"
	"errors"
)

var (
	// ErrAlreadyExists is returned by a Host when the branch or pull request exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrRemoteTransient wraps the last error after the push retries are exhausted.
	ErrRemoteTransient = errors.New("remote operation failed after retries")
)

// PullRequest describes a pull (or merge) request to open.
type PullRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// Host is a remote repository hosting service.
type Host interface {
	// DefaultBranch returns the repository's default branch.
	DefaultBranch(ctx context.Context) (string, error)

	// ListBranches returns the names of all branches.
	ListBranches(ctx context.Context) ([]string, error)

	// BranchHead returns the commit SHA at the tip of branch.
	BranchHead(ctx context.Context, branch string) (string, error)

	// CreateBranch creates name at sha. Returns ErrAlreadyExists if it exists.
	CreateBranch(ctx context.Context, name, sha string) error

	// CreatePullRequest opens a pull request and returns its URL.
	// Returns ErrAlreadyExists if one is already open for the head branch.
	CreatePullRequest(ctx context.Context, pr PullRequest) (string, error)
}
