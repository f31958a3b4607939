package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/sha1n/mr-pickles/internal/shell"
)

func TestParseRemoteURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantSlug string
		wantErr  bool
	}{
		{"scp style", "git@github.com:org/repo.git", "github.com", "org/repo", false},
		{"scp without suffix", "git@github.com:org/repo", "github.com", "org/repo", false},
		{"scp nested group", "git@gitlab.com:group/sub/repo.git", "gitlab.com", "group/sub/repo", false},
		{"ssh url", "ssh://git@github.com/org/repo.git", "github.com", "org/repo", false},
		{"ssh url with port", "ssh://git@gitlab.example.com:2222/team/repo.git", "gitlab.example.com", "team/repo", false},
		{"https", "https://github.com/org/repo.git", "github.com", "org/repo", false},
		{"https with credentials", "https://token@gitlab.com/group/repo", "gitlab.com", "group/repo", false},
		{"surrounding whitespace", "  git@github.com:org/repo.git\n", "github.com", "org/repo", false},
		{"local path", "/srv/git/repo.git", "", "", true},
		{"empty", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, slug, err := ParseRemoteURL(tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRemoteURL) {
					t.Errorf("Expected ErrInvalidRemoteURL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if host != tt.wantHost || slug != tt.wantSlug {
				t.Errorf("ParseRemoteURL(%q) = %q, %q; want %q, %q", tt.url, host, slug, tt.wantHost, tt.wantSlug)
			}
		})
	}
}

func TestResolveSlug(t *testing.T) {
	ctx := context.Background()

	mock := shell.NewMockExecutor()
	g := NewGitClientWithExecutor(mock, "/work", "upstream")
	slug, err := ResolveSlug(ctx, g, "given/repo")
	if err != nil || slug != "given/repo" {
		t.Errorf("Expected configured slug, got %q (%v)", slug, err)
	}
	if len(mock.Calls()) != 0 {
		t.Error("A configured slug must not query git")
	}

	mock.AddResponse("git remote get-url upstream", []byte("git@github.com:octo/cat.git\n"), nil)
	slug, err = ResolveSlug(ctx, g, "")
	if err != nil || slug != "octo/cat" {
		t.Errorf("Expected slug from remote, got %q (%v)", slug, err)
	}

	mock.AddResponse("git remote get-url", nil, errors.New("no such remote"))
	if _, err := ResolveSlug(ctx, g, ""); err == nil {
		t.Error("Expected error when the remote cannot be read")
	}
}
