package app

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/sha1n/mr-pickles/internal/config"
)

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	dir := t.TempDir()
	s := &config.Settings{}
	s.Host.Path = filepath.Join(dir, "main.py")
	s.Host.FeaturesDir = filepath.Join(dir, "features")
	s.Host.DocsDir = filepath.Join(dir, "docs")
	s.Host.StateDir = filepath.Join(dir, ".pickles")
	s.Host.Mode = config.ModeMaterialize
	s.Generator.Provider = config.ProviderNone
	s.Repository.Provider = config.ProviderNone
	s.Publish.WorkDir = dir
	return s
}

func TestNewServices_NoGenerator(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	services, cleanup, err := NewServices(testSettings(t), logger)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer cleanup()

	if services.Generator != nil {
		t.Error("Expected no generator for provider 'none'")
	}
	if services.Workflow.Publisher != nil {
		t.Error("Expected no publisher when publishing is disabled")
	}
	if services.Workflow.Sandbox != nil {
		t.Error("Expected no sandbox when it is disabled")
	}
	if services.Recall == nil || services.Conversation == nil {
		t.Error("Expected recall index and conversation ledger")
	}
}

func TestNewServices_Sandbox(t *testing.T) {
	settings := testSettings(t)
	settings.Sandbox.Enabled = true

	services, cleanup, err := NewServices(settings, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer cleanup()

	if services.Workflow.Sandbox == nil {
		t.Error("Expected sandbox runner")
	}
}

func TestNewPublisher(t *testing.T) {
	settings := testSettings(t)
	if p, err := NewPublisher(settings, nil); err != nil || p != nil {
		t.Errorf("Expected no publisher when disabled, got %v (%v)", p, err)
	}

	settings.Publish.Enabled = true
	settings.Repository.Provider = config.ProviderGitHub
	settings.Repository.Slug = "octo/cat"
	settings.Publish.MaxAttempts = 5
	p, err := NewPublisher(settings, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p == nil {
		t.Error("Expected a publisher")
	}

	settings.Repository.Provider = config.ProviderNone
	if _, err := NewPublisher(settings, nil); err == nil {
		t.Error("Expected error without a repository provider")
	}
}
