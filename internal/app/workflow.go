package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sha1n/mr-pickles/internal/config"
	"github.com/sha1n/mr-pickles/internal/domain"
	"github.com/sha1n/mr-pickles/internal/generator"
	"github.com/sha1n/mr-pickles/internal/ledger"
	"github.com/sha1n/mr-pickles/internal/patch"
	"github.com/sha1n/mr-pickles/internal/publish"
	"github.com/sha1n/mr-pickles/internal/sandbox"
	"github.com/sha1n/mr-pickles/internal/snippet"
	"github.com/sha1n/mr-pickles/internal/ui"
)

// hostExcerptLimit caps how much of the host file is sent to the generator.
const hostExcerptLimit = 4096

// Publisher runs the branch, commit, push and pull request workflow.
type Publisher interface {
	NewJob(request string, paths []string) publish.Job
	Run(ctx context.Context, job publish.Job) (*publish.Report, error)
}

// SmokeTester runs a materialized feature module.
type SmokeTester interface {
	SmokeTest(ctx context.Context, modulePath, entryPoint string) (*sandbox.Outcome, error)
}

// WorkflowOptions select how a feature is merged.
type WorkflowOptions struct {
	HostPath   string
	Mode       string
	Marker     string
	Classifier snippet.Mode

	// WorkDir is the git working copy; published paths are relative to it.
	WorkDir string

	// Persona is used for requests that do not carry their own.
	Persona domain.Persona
}

// Workflow turns a feature request into merged, optionally published code.
// Optional collaborators (Generator, Publisher, Sandbox) may be nil.
type Workflow struct {
	Generator    generator.Generator
	Features     *ledger.Features
	Applier      *patch.Applier
	Materializer *patch.Materializer
	Publisher    Publisher
	Sandbox      SmokeTester
	Progress     ui.Progress

	opts   WorkflowOptions
	logger *slog.Logger
}

// FeatureRequest is one request to the workflow.
type FeatureRequest struct {
	Text string

	// Code, if set, is used instead of asking the generator.
	Code string

	Persona *domain.Persona
}

// Outcome reports what a workflow run did.
type Outcome struct {
	Record  domain.FeatureRecord
	Snippet snippet.Snippet
	Files   []string
	Report  *publish.Report
	Smoke   *sandbox.Outcome
}

// NewWorkflow creates a workflow. Collaborators are set on the returned value.
func NewWorkflow(opts WorkflowOptions, features *ledger.Features, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Classifier == "" {
		opts.Classifier = snippet.ModeDefensive
	}
	if opts.Mode == "" {
		opts.Mode = config.ModeMaterialize
	}
	if opts.Persona == (domain.Persona{}) {
		opts.Persona = domain.DefaultPersona()
	}
	return &Workflow{
		Features: features,
		Progress: ui.NoProgress{},
		opts:     opts,
		logger:   logger,
	}
}

// Run executes the workflow for req. The ledger record is created pending and
// ends completed or failed; on failure the outcome still carries that record.
func (w *Workflow) Run(ctx context.Context, req FeatureRequest) (*Outcome, error) {
	record, err := w.Features.Append(req.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to record feature request: %w", err)
	}
	out := &Outcome{Record: record}
	w.logger.Info("Feature requested", "request", req.Text, "id", record.ID)

	if err := w.run(ctx, req, out); err != nil {
		w.logger.Error("Feature request failed", "request", req.Text, "error", err)
		if failed, lerr := w.Features.MarkFailed(req.Text, err); lerr == nil {
			out.Record = failed
		} else {
			w.logger.Error("Failed to update feature ledger", "error", lerr)
		}
		return out, err
	}

	done, err := w.Features.SetStatus(req.Text, domain.FeatureStatusCompleted)
	if err != nil {
		return out, fmt.Errorf("failed to update feature ledger: %w", err)
	}
	out.Record = done
	return out, nil
}

func (w *Workflow) run(ctx context.Context, req FeatureRequest, out *Outcome) error {
	code := req.Code
	if code == "" {
		generated, err := w.generate(ctx, req)
		if err != nil {
			return err
		}
		code = generated
	}

	s := snippet.Classify(code, w.opts.Classifier)
	if s.Empty() {
		return patch.ErrEmptySnippet
	}
	out.Snippet = s
	name := snippet.FeatureName(s, req.Text)

	var modulePath, entryPoint string
	switch w.opts.Mode {
	case config.ModeSplice:
		res, err := w.Applier.Splice(ctx, w.opts.HostPath, s, w.opts.Marker)
		if err != nil {
			return err
		}
		if res.Changed {
			out.Files = []string{res.Path}
		}
	default:
		res, err := w.Materializer.Materialize(ctx, patch.MaterializeRequest{
			HostPath: w.opts.HostPath,
			Name:     name,
			Request:  req.Text,
			Snippet:  s,
		})
		if err != nil {
			return err
		}
		out.Files = res.Files
		modulePath, entryPoint = res.ModulePath, res.EntryPoint
		name = res.Module
	}

	files := w.relativePaths(out.Files)
	record, err := w.Features.Update(req.Text, func(r *domain.FeatureRecord) {
		r.Name = name
		r.Files = files
		r.SnippetHash = s.Fingerprint()
	})
	if err != nil {
		return fmt.Errorf("failed to update feature ledger: %w", err)
	}
	out.Record = record

	if w.Sandbox != nil && modulePath != "" {
		smoke, err := w.Sandbox.SmokeTest(ctx, modulePath, entryPoint)
		if err != nil {
			return err
		}
		out.Smoke = smoke
	}

	if w.Publisher == nil {
		return nil
	}
	if len(files) == 0 {
		w.logger.Info("Nothing changed, skipping publish", "request", req.Text)
		return nil
	}

	report, err := w.Publisher.Run(ctx, w.Publisher.NewJob(req.Text, files))
	out.Report = report
	if err != nil {
		return err
	}
	record, err = w.Features.Update(req.Text, func(r *domain.FeatureRecord) {
		r.Branch = report.Branch
		r.PullRequestURL = report.PullRequestURL
	})
	if err != nil {
		return fmt.Errorf("failed to update feature ledger: %w", err)
	}
	out.Record = record
	return nil
}

// generate asks the generator for code while the progress indicator runs.
func (w *Workflow) generate(ctx context.Context, req FeatureRequest) (string, error) {
	if w.Generator == nil {
		return "", generator.ErrNoProvider
	}

	persona := w.opts.Persona
	if req.Persona != nil {
		persona = *req.Persona
	}

	stop := w.Progress.Start("Mr. Pickles is writing code...")
	defer stop()

	return w.Generator.GenerateCode(ctx, generator.CodeRequest{
		Request:     req.Text,
		HostExcerpt: w.hostExcerpt(),
		Persona:     persona,
	})
}

func (w *Workflow) hostExcerpt() string {
	data, err := os.ReadFile(w.opts.HostPath)
	if err != nil {
		return ""
	}
	if len(data) > hostExcerptLimit {
		data = data[:hostExcerptLimit]
	}
	return string(data)
}

// relativePaths makes paths relative to the working copy; paths outside it are kept as given.
func (w *Workflow) relativePaths(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	root, err := filepath.Abs(w.workDir())
	if err != nil {
		return paths
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			out = append(out, p)
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			out = append(out, p)
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func (w *Workflow) workDir() string {
	if w.opts.WorkDir == "" {
		return "."
	}
	return w.opts.WorkDir
}

// ApplyFeature runs the workflow with the default persona.
func (w *Workflow) ApplyFeature(ctx context.Context, request, code string) (domain.FeatureRecord, error) {
	out, err := w.Run(ctx, FeatureRequest{Text: request, Code: code})
	if out == nil {
		return domain.FeatureRecord{}, err
	}
	return out.Record, err
}

// ListFeatures returns ledger records, all of them when status is empty.
func (w *Workflow) ListFeatures(status domain.FeatureStatus) ([]domain.FeatureRecord, error) {
	if status == "" {
		return w.Features.List()
	}
	return w.Features.Filter(status)
}

// IsUserError reports whether err is caused by the request or its generated code
// rather than by the environment.
func IsUserError(err error) bool {
	return errors.Is(err, patch.ErrEmptySnippet) ||
		errors.Is(err, patch.ErrSyntaxInvalidAfterPatch) ||
		errors.Is(err, sandbox.ErrSmokeTestFailed)
}
