// Package publish pushes materialized changes to a remote repository:
// branch creation, commit and push with bounded retries, then a pull request.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// State is a step of the publish state machine.
type State string

const (
	StateIdle           State = "idle"
	StateBranchCreating State = "branch_creating"
	StateStaging        State = "staging"
	StateCommitting     State = "committing"
	StatePushing        State = "pushing"
	StatePRCreating     State = "pr_creating"
	StateDone           State = "done"
	StateError          State = "error"
)

// Job is one publish request.
type Job struct {
	Request       string
	Branch        string
	BaseBranch    string
	Paths         []string
	CommitMessage string
	Title         string
	Body          string
}

// Options configure a Pipeline.
type Options struct {
	BranchPrefix    string
	BranchMaxLength int

	// DefaultBranch is the fallback base; empty asks the host.
	DefaultBranch string

	Retry RetryConfig
}

// Report describes a pipeline run.
type Report struct {
	State          State
	Transitions    []State
	Branch         string
	Base           string
	PullRequestURL string
	Attempts       int
	Delays         []time.Duration
	Duration       time.Duration
}

// Pipeline runs publish jobs one at a time against a host and a working copy.
type Pipeline struct {
	host       Host
	git        *GitClient
	opts       Options
	sleep      Sleeper
	logger     *slog.Logger
	lastBranch string

	// OnTransition, if set, is called on every state change.
	OnTransition func(State)
}

// NewPipeline creates a Pipeline. A nil logger uses slog.Default().
func NewPipeline(host Host, git *GitClient, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryConfig()
	}
	return &Pipeline{host: host, git: git, opts: opts, sleep: SleepContext, logger: logger}
}

// WithSleeper replaces the backoff sleeper (for testing).
func (p *Pipeline) WithSleeper(s Sleeper) *Pipeline {
	p.sleep = s
	return p
}

// LastBranch returns the branch most recently created by this pipeline.
func (p *Pipeline) LastBranch() string {
	return p.lastBranch
}

// NewJob builds a job for request with a derived branch name and messages.
func (p *Pipeline) NewJob(request string, paths []string) Job {
	return Job{
		Request:       request,
		Branch:        BranchName(p.opts.BranchPrefix, request, p.opts.BranchMaxLength),
		Paths:         paths,
		CommitMessage: "Implement feature: " + request,
		Title:         "Implement feature: " + request,
		Body:          "This pull request implements the feature as requested.\n\n> " + request,
	}
}

// Run executes job and returns the report. The returned error is non-nil
// exactly when the report's state is StateError.
func (p *Pipeline) Run(ctx context.Context, job Job) (*Report, error) {
	start := time.Now()
	report := &Report{State: StateIdle, Branch: job.Branch}
	if job.Branch == "" {
		report.Branch = BranchName(p.opts.BranchPrefix, job.Request, p.opts.BranchMaxLength)
		job.Branch = report.Branch
	}

	fail := func(err error) (*Report, error) {
		p.transition(report, StateError)
		report.Duration = time.Since(start)
		p.logger.Error("Publish failed", "branch", job.Branch, "error", err)
		return report, err
	}

	p.transition(report, StateBranchCreating)
	base, err := p.resolveBase(ctx, job)
	if err != nil {
		return fail(err)
	}
	report.Base = base

	if err := p.createBranch(ctx, job.Branch, base); err != nil {
		return fail(err)
	}
	p.lastBranch = job.Branch

	result := Retry(ctx, p.opts.Retry, p.sleep, p.logger, func(attempt int) error {
		return p.pushChanges(ctx, report, job)
	})
	report.Attempts = result.Attempts
	report.Delays = result.Delays
	if !result.Success {
		return fail(fmt.Errorf("%w: %w", ErrRemoteTransient, result.LastError))
	}

	p.transition(report, StatePRCreating)
	url, err := p.host.CreatePullRequest(ctx, PullRequest{
		Title: job.Title,
		Body:  job.Body,
		Head:  job.Branch,
		Base:  base,
	})
	if err != nil && !errors.Is(err, ErrAlreadyExists) {
		return fail(fmt.Errorf("failed to create pull request: %w", err))
	}
	if errors.Is(err, ErrAlreadyExists) {
		p.logger.Info("Pull request already exists", "branch", job.Branch)
	}
	report.PullRequestURL = url

	p.transition(report, StateDone)
	report.Duration = time.Since(start)
	p.logger.Info("Published feature", "branch", job.Branch, "base", base, "attempts", report.Attempts, "url", url)
	return report, nil
}

// resolveBase picks the job's base, else the last branch this pipeline
// created if the host still has it, else the default branch.
func (p *Pipeline) resolveBase(ctx context.Context, job Job) (string, error) {
	if job.BaseBranch != "" {
		return job.BaseBranch, nil
	}

	if p.lastBranch != "" && p.lastBranch != job.Branch {
		branches, err := p.host.ListBranches(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list branches: %w", err)
		}
		if slices.Contains(branches, p.lastBranch) {
			return p.lastBranch, nil
		}
	}

	if p.opts.DefaultBranch != "" {
		return p.opts.DefaultBranch, nil
	}
	base, err := p.host.DefaultBranch(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get default branch: %w", err)
	}
	return base, nil
}

func (p *Pipeline) createBranch(ctx context.Context, name, base string) error {
	sha, err := p.host.BranchHead(ctx, base)
	if err != nil {
		return fmt.Errorf("failed to resolve base branch %q: %w", base, err)
	}
	if err := p.host.CreateBranch(ctx, name, sha); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			p.logger.Info("Branch already exists", "branch", name)
			return nil
		}
		return fmt.Errorf("failed to create branch %q: %w", name, err)
	}
	p.logger.Info("Created branch", "branch", name, "base", base, "sha", sha)
	return nil
}

// pushChanges is the retried block. Committing is skipped when nothing is
// staged, so a retry after a successful commit goes straight to the push.
func (p *Pipeline) pushChanges(ctx context.Context, report *Report, job Job) error {
	p.transition(report, StateStaging)
	if err := p.git.Fetch(ctx); err != nil {
		return err
	}
	if err := p.git.Checkout(ctx, job.Branch); err != nil {
		return err
	}
	if err := p.git.Add(ctx, job.Paths...); err != nil {
		return err
	}

	p.transition(report, StateCommitting)
	staged, err := p.git.StagedFiles(ctx)
	if err != nil {
		return err
	}
	if len(staged) > 0 {
		if err := p.git.Commit(ctx, job.CommitMessage); err != nil {
			return err
		}
	}

	p.transition(report, StatePushing)
	return p.git.Push(ctx, job.Branch)
}

func (p *Pipeline) transition(report *Report, s State) {
	report.State = s
	report.Transitions = append(report.Transitions, s)
	p.logger.Debug("Publish state", "state", s, "branch", report.Branch)
	if p.OnTransition != nil {
		p.OnTransition(s)
	}
}
