package publish

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/sha1n/mr-pickles/internal/shell"
)

func TestGitClient_Commands(t *testing.T) {
	mock := shell.NewMockExecutor()
	mock.AddResponse("git fetch", nil, nil)
	mock.AddResponse("git checkout", nil, nil)
	mock.AddResponse("git add", nil, nil)
	mock.AddResponse("git diff", []byte("a.py\nfeatures/b.py\n"), nil)
	mock.AddResponse("git commit", nil, nil)
	mock.AddResponse("git push", nil, nil)

	g := NewGitClientWithExecutor(mock, "/work", "")
	ctx := context.Background()

	if err := g.Fetch(ctx); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if err := g.Checkout(ctx, "feature-x"); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	if err := g.Add(ctx, "a.py", "features/b.py"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	staged, err := g.StagedFiles(ctx)
	if err != nil {
		t.Fatalf("StagedFiles failed: %v", err)
	}
	if !reflect.DeepEqual(staged, []string{"a.py", "features/b.py"}) {
		t.Errorf("Unexpected staged files: %v", staged)
	}
	if err := g.Commit(ctx, "Implement feature: x"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := g.Push(ctx, "feature-x"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	want := []string{
		"git fetch origin",
		"git checkout feature-x",
		"git add -- a.py features/b.py",
		"git diff --cached --name-only",
		"git commit -m Implement feature: x",
		"git push --set-upstream origin feature-x",
	}
	calls := mock.Calls()
	if len(calls) != len(want) {
		t.Fatalf("Expected %d calls, got %d", len(want), len(calls))
	}
	for i, c := range calls {
		if c.CommandLine() != want[i] {
			t.Errorf("Call %d = %q, want %q", i, c.CommandLine(), want[i])
		}
		if c.Dir != "/work" {
			t.Errorf("Call %d ran in %q, want /work", i, c.Dir)
		}
	}
}

func TestGitClient_AddWithoutPathsIsNoOp(t *testing.T) {
	mock := shell.NewMockExecutor()
	g := NewGitClientWithExecutor(mock, "", "origin")

	if err := g.Add(context.Background()); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if len(mock.Calls()) != 0 {
		t.Errorf("Expected no calls, got %v", mock.Calls())
	}
}

func TestGitClient_ErrorsAreWrapped(t *testing.T) {
	mock := shell.NewMockExecutor()
	mock.AddResponse("git push", nil, errors.New("rejected"))

	err := NewGitClientWithExecutor(mock, "", "upstream").Push(context.Background(), "b")
	if err == nil || !strings.Contains(err.Error(), "git push failed") || !strings.Contains(err.Error(), "rejected") {
		t.Errorf("Unexpected error: %v", err)
	}
	if got := mock.Calls()[0].CommandLine(); got != "git push --set-upstream upstream b" {
		t.Errorf("Unexpected command: %q", got)
	}
}

func TestGitClient_StagedFilesEmpty(t *testing.T) {
	mock := shell.NewMockExecutor()
	mock.AddResponse("git diff", []byte("\n"), nil)

	staged, err := NewGitClientWithExecutor(mock, "", "").StagedFiles(context.Background())
	if err != nil {
		t.Fatalf("StagedFiles failed: %v", err)
	}
	if len(staged) != 0 {
		t.Errorf("Expected no staged files, got %v", staged)
	}
}
