package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sha1n/mr-pickles/internal/config"
	"github.com/sha1n/mr-pickles/internal/generator"
	"github.com/sha1n/mr-pickles/internal/ledger"
	"github.com/sha1n/mr-pickles/internal/patch"
	"github.com/sha1n/mr-pickles/internal/publish"
	"github.com/sha1n/mr-pickles/internal/recall"
	"github.com/sha1n/mr-pickles/internal/sandbox"
	"github.com/sha1n/mr-pickles/internal/snippet"
)

// remoteLookupTimeout bounds the git call that derives the repository from the remote.
const remoteLookupTimeout = 10 * time.Second

// Services are the collaborators built from settings.
type Services struct {
	Settings     *config.Settings
	Workflow     *Workflow
	Generator    generator.Generator
	Conversation *ledger.Conversation
	Recall       *recall.Index
}

// NewServices builds the workflow and its collaborators. The returned cleanup
// releases the recall index.
func NewServices(settings *config.Settings, logger *slog.Logger) (*Services, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var gen generator.Generator
	if settings.Generator.Provider != config.ProviderNone {
		model, err := generator.NewModel(generator.ModelConfig{
			Provider: settings.Generator.Provider,
			Model:    settings.Generator.Model,
			BaseURL:  settings.Generator.BaseURL,
			APIKey:   settings.Generator.APIKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create generator: %w", err)
		}
		gen = generator.NewLLM(model, settings.Generator.Temperature, logger)
	}

	publisher, err := NewPublisher(settings, logger)
	if err != nil {
		return nil, nil, err
	}

	features := ledger.NewFeatures(settings.Host.StateDir, logger)
	workflow := NewWorkflow(WorkflowOptions{
		HostPath:   settings.Host.Path,
		Mode:       settings.Host.Mode,
		Marker:     settings.Host.Marker,
		Classifier: snippet.Mode(settings.Host.Classifier),
		WorkDir:    settings.Publish.WorkDir,
		Persona:    settings.Persona,
	}, features, logger)
	workflow.Generator = gen
	workflow.Applier = patch.NewApplier(logger)
	workflow.Materializer = patch.NewMaterializer(settings.Host.FeaturesDir, settings.Host.DocsDir, logger)
	if publisher != nil {
		workflow.Publisher = publisher
	}
	if settings.Sandbox.Enabled {
		workflow.Sandbox = sandbox.NewRunner(sandbox.Config{
			Interpreter: settings.Sandbox.Interpreter,
			Timeout:     settings.Sandbox.Timeout,
		}, logger)
	}

	index, err := recall.NewIndex(recall.DefaultMaxResults)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := index.Close(); err != nil {
			logger.Error("Failed to close recall index", "error", err)
		}
	}

	return &Services{
		Settings:     settings,
		Workflow:     workflow,
		Generator:    gen,
		Conversation: ledger.NewConversation(settings.Host.StateDir, logger),
		Recall:       index,
	}, cleanup, nil
}

// NewPublisher creates the publish pipeline, or nil when publishing is disabled.
func NewPublisher(settings *config.Settings, logger *slog.Logger) (*publish.Pipeline, error) {
	if !settings.Publish.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	repo := settings.Repository
	git := publish.NewGitClient(settings.Publish.WorkDir, repo.Remote)

	ctx, cancel := context.WithTimeout(context.Background(), remoteLookupTimeout)
	defer cancel()
	slug, err := publish.ResolveSlug(ctx, git, repo.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to determine repository: %w", err)
	}
	if slug != repo.Slug {
		logger.Info("Repository derived from remote", "remote", repo.Remote, "repository", slug)
	}

	var host publish.Host
	switch repo.Provider {
	case config.ProviderGitHub:
		h, err := publish.NewGitHubHost(repo.BaseURL, slug, repo.Token, nil)
		if err != nil {
			return nil, err
		}
		host = h
	case config.ProviderGitLab:
		h, err := publish.NewGitLabHost(repo.BaseURL, slug, repo.Token)
		if err != nil {
			return nil, err
		}
		host = h
	default:
		return nil, fmt.Errorf("publishing requires a repository provider, got: %s", repo.Provider)
	}

	return publish.NewPipeline(host, git, publish.Options{
		BranchPrefix:    settings.Publish.BranchPrefix,
		BranchMaxLength: settings.Publish.BranchMaxLength,
		DefaultBranch:   repo.DefaultBranch,
		Retry: publish.RetryConfig{
			MaxAttempts: settings.Publish.MaxAttempts,
			BaseDelay:   settings.Publish.BackoffUnit,
		},
	}, logger), nil
}
