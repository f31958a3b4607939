package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sha1n/mr-pickles/internal/domain"
	"github.com/sha1n/mr-pickles/internal/generator"
	"github.com/sha1n/mr-pickles/internal/ledger"
	"github.com/sha1n/mr-pickles/internal/recall"
	"github.com/sha1n/mr-pickles/internal/ui"
)

const featureCommand = "/feature"

// Session is the interactive question and answer loop.
type Session struct {
	Console      *ui.Console
	Workflow     *Workflow
	Generator    generator.Generator
	Conversation *ledger.Conversation
	Recall       *recall.Index
	Progress     ui.Progress

	persona domain.Persona
	logger  *slog.Logger
}

// NewSession creates a session starting with persona.
func NewSession(console *ui.Console, workflow *Workflow, persona domain.Persona, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		Console:  console,
		Workflow: workflow,
		Progress: ui.NoProgress{},
		persona:  persona,
		logger:   logger,
	}
}

// Persona returns the current persona.
func (s *Session) Persona() domain.Persona {
	return s.persona
}

// ParseFeatureRequest reports whether input asks for a feature and returns the request text.
// "/feature <text>" yields <text>; any input mentioning "feature request" is used whole.
func ParseFeatureRequest(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if rest, ok := strings.CutPrefix(trimmed, featureCommand); ok && (rest == "" || rest[0] == ' ') {
		rest = strings.TrimSpace(rest)
		return rest, rest != ""
	}
	if strings.Contains(strings.ToLower(trimmed), "feature request") {
		return trimmed, true
	}
	return "", false
}

func isExit(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit":
		return true
	}
	return false
}

// Run loads past conversation into the recall index and serves input until
// exit, quit, end of input or context cancellation.
func (s *Session) Run(ctx context.Context) error {
	if s.Conversation != nil && s.Recall != nil {
		history, err := s.Conversation.List()
		if err != nil {
			s.logger.Warn("Failed to load conversation history", "error", err)
		} else if err := s.Recall.AddEntries(history); err != nil {
			s.logger.Warn("Failed to index conversation history", "error", err)
		}
	}

	s.Console.Box("Mr. Pickles reluctantly at your service.\nType 'exit' to leave, '/feature <request>' to ask for a feature.")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		input, err := s.Console.Prompt()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if input == "" {
			continue
		}
		if isExit(input) {
			s.Console.Info("The darkness recedes... for now.")
			return nil
		}
		s.Handle(ctx, input)
	}
}

// Handle processes one line of input. Failures are reported and never end the session.
func (s *Session) Handle(ctx context.Context, input string) {
	if next, changed := s.persona.ApplyFeedback(input); changed {
		s.persona = next
		s.logger.Info("Persona updated", "tone", next.Tone, "detail", next.Detail)
		s.Console.Info("Fine. Tone: %s, detail: %s.", next.Tone, next.Detail)
		return
	}

	related := s.related(ctx, input)
	if len(related) > 0 {
		s.Console.Info("I recall you have asked similar things before:")
		for _, r := range related {
			s.Console.Info("- You asked: %s", r)
		}
	}

	var reply string
	if request, ok := ParseFeatureRequest(input); ok {
		reply = s.handleFeature(ctx, request)
	} else {
		var err error
		reply, err = s.respond(ctx, input, related)
		if err != nil {
			s.Console.Error("An error occurred: %s", err)
			return
		}
		s.Console.Say(reply)
	}

	s.remember(input, reply)
}

func (s *Session) handleFeature(ctx context.Context, request string) string {
	persona := s.persona
	out, err := s.Workflow.Run(ctx, FeatureRequest{Text: request, Persona: &persona})
	if err != nil {
		if IsUserError(err) {
			s.Console.Warn("That feature did not work out: %s", err)
		} else {
			s.Console.Error("Feature request failed: %s", err)
		}
		return fmt.Sprintf("Feature request %q failed: %s", request, err)
	}

	s.Console.Code(out.Snippet.Text())
	for _, f := range out.Record.Files {
		s.Console.Info("Wrote %s", f)
	}
	if out.Smoke != nil {
		s.Console.Success("Smoke test of %s passed", out.Smoke.EntryPoint)
		if out.Smoke.Output != "" {
			s.Console.Say(out.Smoke.Output)
		}
	}
	if out.Report != nil {
		s.Console.Success("Pushed branch %s", out.Report.Branch)
		if out.Report.PullRequestURL != "" {
			s.Console.Success("Pull request: %s", out.Report.PullRequestURL)
		}
	}
	s.Console.Success("Feature %q completed", out.Record.Name)
	return fmt.Sprintf("Implemented feature %q as %s.", request, out.Record.Name)
}

func (s *Session) respond(ctx context.Context, input string, related []string) (string, error) {
	if s.Generator == nil {
		return "", generator.ErrNoProvider
	}

	var history []domain.ConversationEntry
	if s.Conversation != nil {
		recent, err := s.Conversation.Recent(generator.DefaultHistoryTurns)
		if err != nil {
			s.logger.Warn("Failed to load conversation history", "error", err)
		}
		history = recent
	}

	stop := s.Progress.Start("Mr. Pickles is thinking...")
	defer stop()

	return s.Generator.Respond(ctx, generator.ChatRequest{
		Query:   input,
		History: history,
		Related: related,
		Persona: s.persona,
	})
}

func (s *Session) related(ctx context.Context, input string) []string {
	if s.Recall == nil {
		return nil
	}
	matches, err := s.Recall.Related(ctx, input)
	if err != nil {
		s.logger.Warn("Recall failed", "error", err)
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Content)
	}
	return out
}

// remember appends the turn to the conversation ledger and the recall index.
func (s *Session) remember(input, reply string) {
	if s.Conversation == nil {
		return
	}
	err := s.Conversation.Append(
		domain.ConversationEntry{Role: domain.RoleUser, Content: input},
		domain.ConversationEntry{Role: domain.RoleAssistant, Content: reply},
	)
	if err != nil {
		s.logger.Warn("Failed to save conversation history", "error", err)
		return
	}
	if s.Recall == nil {
		return
	}
	all, err := s.Conversation.List()
	if err != nil {
		return
	}
	if err := s.Recall.Add(input, len(all)-2); err != nil {
		s.logger.Warn("Failed to index request", "error", err)
	}
}
