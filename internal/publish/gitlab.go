package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitLabHost implements Host against the GitLab API.
type GitLabHost struct {
	client  *gitlab.Client
	project string
}

// NewGitLabHost creates a GitLab host for project ("group/project" or numeric ID).
// An empty baseURL uses gitlab.com.
func NewGitLabHost(baseURL, project, token string) (*GitLabHost, error) {
	if project == "" {
		return nil, errors.New("gitlab project cannot be empty")
	}

	var opts []gitlab.ClientOptionFunc
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(baseURL))
	}
	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}
	return &GitLabHost{client: client, project: project}, nil
}

// DefaultBranch returns the project's default branch.
func (h *GitLabHost) DefaultBranch(ctx context.Context) (string, error) {
	p, resp, err := h.client.Projects.GetProject(h.project, nil, gitlab.WithContext(ctx))
	if err != nil {
		return "", classifyGitLabError("get project", resp, err)
	}
	return p.DefaultBranch, nil
}

// ListBranches returns all branch names.
func (h *GitLabHost) ListBranches(ctx context.Context) ([]string, error) {
	opts := &gitlab.ListBranchesOptions{ListOptions: gitlab.ListOptions{PerPage: 100, Page: 1}}

	var names []string
	for {
		branches, resp, err := h.client.Branches.ListBranches(h.project, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, classifyGitLabError("list branches", resp, err)
		}
		for _, b := range branches {
			names = append(names, b.Name)
		}
		if resp == nil || resp.NextPage == 0 {
			return names, nil
		}
		opts.Page = resp.NextPage
	}
}

// BranchHead returns the commit SHA at the tip of branch.
func (h *GitLabHost) BranchHead(ctx context.Context, branch string) (string, error) {
	b, resp, err := h.client.Branches.GetBranch(h.project, branch, gitlab.WithContext(ctx))
	if err != nil {
		return "", classifyGitLabError("get branch", resp, err)
	}
	if b.Commit == nil {
		return "", fmt.Errorf("branch %q has no commit", branch)
	}
	return b.Commit.ID, nil
}

// CreateBranch creates name at sha.
func (h *GitLabHost) CreateBranch(ctx context.Context, name, sha string) error {
	_, resp, err := h.client.Branches.CreateBranch(h.project, &gitlab.CreateBranchOptions{
		Branch: gitlab.Ptr(name),
		Ref:    gitlab.Ptr(sha),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return classifyGitLabError("create branch", resp, err)
	}
	return nil
}

// CreatePullRequest opens a merge request and returns its URL.
func (h *GitLabHost) CreatePullRequest(ctx context.Context, pr PullRequest) (string, error) {
	mr, resp, err := h.client.MergeRequests.CreateMergeRequest(h.project, &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.Ptr(pr.Title),
		Description:  gitlab.Ptr(pr.Body),
		SourceBranch: gitlab.Ptr(pr.Head),
		TargetBranch: gitlab.Ptr(pr.Base),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", classifyGitLabError("create merge request", resp, err)
	}
	return mr.WebURL, nil
}

// classifyGitLabError maps "already exists" conflicts to ErrAlreadyExists.
func classifyGitLabError(op string, resp *gitlab.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusConflict:
			if strings.Contains(strings.ToLower(err.Error()), "already exists") {
				return fmt.Errorf("%w: %s", ErrAlreadyExists, err.Error())
			}
		}
	}
	return fmt.Errorf("gitlab %s failed: %w", op, err)
}
