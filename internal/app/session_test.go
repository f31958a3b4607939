package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sha1n/mr-pickles/internal/config"
	"github.com/sha1n/mr-pickles/internal/domain"
	"github.com/sha1n/mr-pickles/internal/generator"
	"github.com/sha1n/mr-pickles/internal/ledger"
	"github.com/sha1n/mr-pickles/internal/recall"
	"github.com/sha1n/mr-pickles/internal/ui"
)

func TestParseFeatureRequest(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"/feature monitor the CPU", "monitor the CPU", true},
		{"  /feature   spaced out  ", "spaced out", true},
		{"/feature", "", false},
		{"/featureless", "", false},
		{"Feature request: add a timer", "Feature request: add a timer", true},
		{"I have a FEATURE REQUEST for you", "I have a FEATURE REQUEST for you", true},
		{"what is a pickle?", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseFeatureRequest(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseFeatureRequest(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

type sessionFixture struct {
	session *Session
	gen     *fakeGenerator
	out     *bytes.Buffer
}

func newSessionFixture(t *testing.T, input string) sessionFixture {
	t.Helper()
	f := newWorkflowFixture(t, config.ModeMaterialize)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen := &fakeGenerator{reply: "Obviously.", code: generatedReply}
	f.workflow.Generator = gen

	index, err := recall.NewIndex(recall.DefaultMaxResults)
	if err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}
	t.Cleanup(func() { _ = index.Close() })

	out := &bytes.Buffer{}
	s := NewSession(ui.NewConsole(strings.NewReader(input), out), f.workflow, domain.DefaultPersona(), logger)
	s.Generator = gen
	s.Conversation = ledger.NewConversation(filepath.Join(f.dir, ".pickles"), logger)
	s.Recall = index
	return sessionFixture{session: s, gen: gen, out: out}
}

func TestSession_RunUntilExit(t *testing.T) {
	f := newSessionFixture(t, "hello there\nexit\nnever read\n")

	if err := f.session.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(f.gen.chatReqs) != 1 {
		t.Fatalf("Expected exactly one chat request, got %d", len(f.gen.chatReqs))
	}
	if !strings.Contains(f.out.String(), "Obviously.") {
		t.Errorf("Expected reply in output, got %q", f.out.String())
	}
	if !strings.Contains(f.out.String(), "The darkness recedes") {
		t.Errorf("Expected farewell in output, got %q", f.out.String())
	}
}

func TestSession_EndOfInput(t *testing.T) {
	f := newSessionFixture(t, "")
	if err := f.session.Run(context.Background()); err != nil {
		t.Errorf("Expected clean exit on EOF, got %v", err)
	}
}

func TestSession_ChatIsRemembered(t *testing.T) {
	f := newSessionFixture(t, "")
	ctx := context.Background()

	f.session.Handle(ctx, "how do pickles ferment")
	f.session.Handle(ctx, "why do pickles ferment so slowly")

	history, err := f.session.Conversation.List()
	if err != nil {
		t.Fatalf("Failed to list conversation: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("Expected 4 conversation entries, got %d", len(history))
	}
	if history[0].Role != domain.RoleUser || history[1].Role != domain.RoleAssistant {
		t.Errorf("Expected user then assistant roles, got %q, %q", history[0].Role, history[1].Role)
	}

	second := f.gen.chatReqs[1]
	if len(second.History) != 2 {
		t.Errorf("Expected prior turn as history, got %d entries", len(second.History))
	}
	if len(second.Related) == 0 || second.Related[0] != "how do pickles ferment" {
		t.Errorf("Expected the first question as related, got %v", second.Related)
	}
	if !strings.Contains(f.out.String(), "You asked: how do pickles ferment") {
		t.Errorf("Expected recall message in output, got %q", f.out.String())
	}
}

func TestSession_PersonaFeedback(t *testing.T) {
	f := newSessionFixture(t, "")
	ctx := context.Background()

	f.session.Handle(ctx, "less sarcasm please, and more detail")

	want := domain.Persona{Tone: domain.ToneNeutral, Detail: domain.DetailDetailed}
	if f.session.Persona() != want {
		t.Errorf("Expected persona %+v, got %+v", want, f.session.Persona())
	}
	if len(f.gen.chatReqs) != 0 {
		t.Error("Persona feedback must not reach the generator")
	}

	f.session.Handle(ctx, "tell me about brine")
	if f.gen.chatReqs[0].Persona != want {
		t.Errorf("Expected updated persona on chat request, got %+v", f.gen.chatReqs[0].Persona)
	}
}

func TestSession_FeatureRequest(t *testing.T) {
	f := newSessionFixture(t, "")

	f.session.Handle(context.Background(), "/feature monitor the CPU")

	if len(f.gen.codeReqs) != 1 || len(f.gen.chatReqs) != 0 {
		t.Errorf("Expected one code request and no chat, got %d/%d", len(f.gen.codeReqs), len(f.gen.chatReqs))
	}
	if f.gen.codeReqs[0].Request != "monitor the CPU" {
		t.Errorf("Expected request text 'monitor the CPU', got %q", f.gen.codeReqs[0].Request)
	}
	if !strings.Contains(f.out.String(), `Feature "monitor_cpu" completed`) {
		t.Errorf("Expected completion message, got %q", f.out.String())
	}

	history, _ := f.session.Conversation.List()
	if len(history) != 2 || !strings.Contains(history[1].Content, "monitor_cpu") {
		t.Errorf("Expected feature summary as assistant turn, got %+v", history)
	}
}

func TestSession_FeatureFailureKeepsSessionAlive(t *testing.T) {
	f := newSessionFixture(t, "")
	f.gen.code = "no."

	f.session.Handle(context.Background(), "/feature do something impossible")

	if !strings.Contains(f.out.String(), "did not work out") {
		t.Errorf("Expected user-facing warning, got %q", f.out.String())
	}
	records, _ := f.session.Workflow.ListFeatures(domain.FeatureStatusFailed)
	if len(records) != 1 {
		t.Errorf("Expected one failed record, got %d", len(records))
	}
}

func TestSession_ChatError(t *testing.T) {
	f := newSessionFixture(t, "")
	f.session.Generator = nil

	f.session.Handle(context.Background(), "anyone there?")

	if !strings.Contains(f.out.String(), generator.ErrNoProvider.Error()) {
		t.Errorf("Expected error message, got %q", f.out.String())
	}
	history, _ := f.session.Conversation.List()
	if len(history) != 0 {
		t.Errorf("Failed turns must not be remembered, got %d entries", len(history))
	}
}
