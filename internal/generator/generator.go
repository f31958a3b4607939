// Package generator asks a language model for feature code and chat replies.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/sha1n/mr-pickles/internal/domain"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderNone   = "none"
)

// DefaultOllamaURL is used when no base URL is configured for ollama.
const DefaultOllamaURL = "http://localhost:11434"

// DefaultHistoryTurns is how many past conversation entries go into a chat prompt.
const DefaultHistoryTurns = 10

var (
	// ErrGeneration wraps every failure of the underlying model.
	ErrGeneration = errors.New("generation failed")

	// ErrNoProvider is returned when no model provider is configured.
	ErrNoProvider = errors.New("no generator provider configured")

	eagerPrefix = regexp.MustCompile(`(?i)^\s*certainly[!.,]?\s*`)
)

// CodeRequest asks for the code of a feature.
type CodeRequest struct {
	Request string

	// HostExcerpt is optional context from the file being extended.
	HostExcerpt string

	Persona domain.Persona
}

// ChatRequest asks for a conversational reply.
type ChatRequest struct {
	Query   string
	History []domain.ConversationEntry

	// Related are earlier requests similar to Query.
	Related []string

	Persona domain.Persona
}

// Generator produces feature code and chat replies.
type Generator interface {
	GenerateCode(ctx context.Context, req CodeRequest) (string, error)
	Respond(ctx context.Context, req ChatRequest) (string, error)
}

// ModelConfig selects and configures a model.
type ModelConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// NewModel creates the langchaingo model for cfg.
func NewModel(cfg ModelConfig) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		return ollama.New(ollama.WithServerURL(baseURL), ollama.WithModel(cfg.Model))
	case ProviderNone, "":
		return nil, ErrNoProvider
	default:
		return nil, fmt.Errorf("unknown generator provider: %s", cfg.Provider)
	}
}

// LLM implements Generator on top of a langchaingo model.
type LLM struct {
	model        llms.Model
	temperature  float64
	historyTurns int
	logger       *slog.Logger
}

// NewLLM wraps model. A nil logger uses slog.Default().
func NewLLM(model llms.Model, temperature float64, logger *slog.Logger) *LLM {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{model: model, temperature: temperature, historyTurns: DefaultHistoryTurns, logger: logger}
}

// GenerateCode asks the model for a Python implementation of the request.
func (l *LLM) GenerateCode(ctx context.Context, req CodeRequest) (string, error) {
	var human strings.Builder
	human.WriteString("Feature request: ")
	human.WriteString(req.Request)
	if req.HostExcerpt != "" {
		human.WriteString("\n\nThe code will be added to this file:\n```python\n")
		human.WriteString(req.HostExcerpt)
		human.WriteString("\n```")
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, codeSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, human.String()),
	}

	text, err := l.generate(ctx, messages)
	if err != nil {
		return "", err
	}
	l.logger.Debug("Generated code", "request", req.Request, "chars", len(text))
	return text, nil
}

// Respond produces a chat reply in the requested persona.
func (l *LLM) Respond(ctx context.Context, req ChatRequest) (string, error) {
	system := chatSystemPrompt + " " + req.Persona.Describe()
	if len(req.Related) > 0 {
		system += "\nThe user asked about related things before: " + strings.Join(req.Related, "; ")
	}

	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, system)}

	history := req.History
	if len(history) > l.historyTurns {
		history = history[len(history)-l.historyTurns:]
	}
	for _, e := range history {
		role := llms.ChatMessageTypeHuman
		if e.Role == domain.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, e.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Query))

	text, err := l.generate(ctx, messages)
	if err != nil {
		return "", err
	}
	return CleanReply(text), nil
}

func (l *LLM) generate(ctx context.Context, messages []llms.MessageContent) (string, error) {
	resp, err := l.model.GenerateContent(ctx, messages, llms.WithTemperature(l.temperature))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	return resp.Choices[0].Content, nil
}

// CleanReply trims the reply and drops a leading "Certainly!".
func CleanReply(text string) string {
	return strings.TrimSpace(eagerPrefix.ReplaceAllString(text, ""))
}

const codeSystemPrompt = "You write small, self-contained Python 3 features. " +
	"Reply with a single ```python fenced block containing imports first, then definitions. " +
	"Provide a zero-argument function that demonstrates the feature. No explanations outside the block."

const chatSystemPrompt = "You are Mr. Pickles, a command-line assistant."
