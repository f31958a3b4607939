package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultGitHubAPIURL is the public GitHub REST endpoint.
	DefaultGitHubAPIURL = "https://api.github.com"

	githubPageSize = 100
	githubMaxPages = 20
)

// GitHubHost implements Host against the GitHub REST API.
type GitHubHost struct {
	baseURL string
	token   string
	owner   string
	repo    string
	client  *http.Client
}

// NewGitHubHost creates a GitHub host for slug ("owner/repo").
// An empty baseURL uses the public API; a nil client uses a client with a timeout.
func NewGitHubHost(baseURL, slug, token string, client *http.Client) (*GitHubHost, error) {
	owner, repo, ok := strings.Cut(slug, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("invalid github repository %q, expected owner/repo", slug)
	}
	if baseURL == "" {
		baseURL = DefaultGitHubAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GitHubHost{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		owner:   owner,
		repo:    repo,
		client:  client,
	}, nil
}

// githubError is the error body GitHub returns.
type githubError struct {
	Message string `json:"message"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// APIError is a non-success response from a host API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// DefaultBranch returns the repository's default branch.
func (h *GitHubHost) DefaultBranch(ctx context.Context) (string, error) {
	var repo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := h.do(ctx, http.MethodGet, h.repoPath(""), nil, &repo); err != nil {
		return "", err
	}
	return repo.DefaultBranch, nil
}

// ListBranches returns all branch names.
func (h *GitHubHost) ListBranches(ctx context.Context) ([]string, error) {
	var names []string
	for page := 1; page <= githubMaxPages; page++ {
		var branches []struct {
			Name string `json:"name"`
		}
		path := fmt.Sprintf("%s?per_page=%d&page=%d", h.repoPath("/branches"), githubPageSize, page)
		if err := h.do(ctx, http.MethodGet, path, nil, &branches); err != nil {
			return nil, err
		}
		for _, b := range branches {
			names = append(names, b.Name)
		}
		if len(branches) < githubPageSize {
			break
		}
	}
	return names, nil
}

// BranchHead returns the commit SHA at the tip of branch.
func (h *GitHubHost) BranchHead(ctx context.Context, branch string) (string, error) {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := h.do(ctx, http.MethodGet, h.repoPath("/git/ref/heads/"+escapeRef(branch)), nil, &ref); err != nil {
		return "", err
	}
	return ref.Object.SHA, nil
}

// CreateBranch creates a branch ref pointing at sha.
func (h *GitHubHost) CreateBranch(ctx context.Context, name, sha string) error {
	body := map[string]string{"ref": "refs/heads/" + name, "sha": sha}
	return h.do(ctx, http.MethodPost, h.repoPath("/git/refs"), body, nil)
}

// CreatePullRequest opens a pull request and returns its URL.
func (h *GitHubHost) CreatePullRequest(ctx context.Context, pr PullRequest) (string, error) {
	body := map[string]string{
		"title": pr.Title,
		"body":  pr.Body,
		"head":  pr.Head,
		"base":  pr.Base,
	}
	var created struct {
		HTMLURL string `json:"html_url"`
	}
	if err := h.do(ctx, http.MethodPost, h.repoPath("/pulls"), body, &created); err != nil {
		return "", err
	}
	return created.HTMLURL, nil
}

func (h *GitHubHost) repoPath(suffix string) string {
	return fmt.Sprintf("/repos/%s/%s%s", url.PathEscape(h.owner), url.PathEscape(h.repo), suffix)
}

// do sends a request and decodes a JSON response into out (if non-nil).
// 422 responses mentioning "already exists" map to ErrAlreadyExists.
func (h *GitHubHost) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if h.token != "" {
		req.Header.Set("Authorization", "token "+h.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read github response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := githubMessage(data)
		if resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "already exists") {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, msg)
		}
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode github response: %w", err)
	}
	return nil
}

// githubMessage flattens the top-level and nested error messages.
func githubMessage(data []byte) string {
	var e githubError
	if err := json.Unmarshal(data, &e); err != nil {
		return strings.TrimSpace(string(data))
	}
	parts := []string{e.Message}
	for _, nested := range e.Errors {
		if nested.Message != "" {
			parts = append(parts, nested.Message)
		}
	}
	return strings.Join(parts, ": ")
}

// escapeRef escapes each segment of a ref name but keeps the slashes.
func escapeRef(ref string) string {
	segments := strings.Split(ref, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
