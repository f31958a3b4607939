package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/sha1n/mr-pickles/internal/shell"
)

// GitClient runs git commands in a working copy.
type GitClient struct {
	executor shell.CommandExecutor
	dir      string
	remote   string
}

// NewGitClient creates a GitClient with the default command executor.
func NewGitClient(dir, remote string) *GitClient {
	return NewGitClientWithExecutor(&shell.DefaultExecutor{}, dir, remote)
}

// NewGitClientWithExecutor creates a GitClient with a custom executor (for testing).
func NewGitClientWithExecutor(executor shell.CommandExecutor, dir, remote string) *GitClient {
	if remote == "" {
		remote = "origin"
	}
	return &GitClient{executor: executor, dir: dir, remote: remote}
}

// Fetch fetches the remote so newly created branches are visible.
func (g *GitClient) Fetch(ctx context.Context) error {
	if _, err := g.executor.Run(ctx, g.dir, "git", "fetch", g.remote); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}
	return nil
}

// Checkout switches to branch, creating a tracking branch if needed.
func (g *GitClient) Checkout(ctx context.Context, branch string) error {
	if _, err := g.executor.Run(ctx, g.dir, "git", "checkout", branch); err != nil {
		return fmt.Errorf("git checkout failed: %w", err)
	}
	return nil
}

// Add stages the given paths.
func (g *GitClient) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	if _, err := g.executor.Run(ctx, g.dir, "git", args...); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	return nil
}

// StagedFiles returns the paths currently staged for commit.
func (g *GitClient) StagedFiles(ctx context.Context) ([]string, error) {
	output, err := g.executor.Run(ctx, g.dir, "git", "diff", "--cached", "--name-only")
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// Commit records the staged changes.
func (g *GitClient) Commit(ctx context.Context, message string) error {
	if _, err := g.executor.Run(ctx, g.dir, "git", "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}
	return nil
}

// Push pushes branch and sets its upstream.
func (g *GitClient) Push(ctx context.Context, branch string) error {
	if _, err := g.executor.Run(ctx, g.dir, "git", "push", "--set-upstream", g.remote, branch); err != nil {
		return fmt.Errorf("git push failed: %w", err)
	}
	return nil
}

// RemoteURL returns the fetch URL of the configured remote.
func (g *GitClient) RemoteURL(ctx context.Context) (string, error) {
	output, err := g.executor.Run(ctx, g.dir, "git", "remote", "get-url", g.remote)
	if err != nil {
		return "", fmt.Errorf("git remote get-url failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}
