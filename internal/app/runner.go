package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/sha1n/mr-pickles/internal/auth"
	"github.com/sha1n/mr-pickles/internal/config"
	"github.com/sha1n/mr-pickles/internal/domain"
	mcputil "github.com/sha1n/mr-pickles/internal/mcp"
	"github.com/sha1n/mr-pickles/internal/ui"
)

// ServerName is the MCP implementation name.
const ServerName = "mr-pickles"

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// RunParams contains dependencies for the run functions
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	NewServices       func(*config.Settings, *slog.Logger) (*Services, func(), error)
	ServeSSE          func(context.Context, *mcp.Server, *config.ServeSettings) error
	CreateServer      func(*Services, string) *mcp.Server
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
	Progress          ui.Progress   // Optional: defaults to a terminal spinner
	LogOutput         io.Writer     // Optional: defaults to stderr
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:  config.LoadSettingsWithFlags,
		ValidSettings: config.ValidateSettings,
		NewServices:   NewServices,
		ServeSSE:      ServeSSE,
		CreateServer:  CreateMCPServer,
		Progress:      ui.Spinner{},
	}
}

// setup loads and validates settings, installs the default logger and builds services.
func setup(params RunParams, flags *pflag.FlagSet, defaultLevel slog.Level) (*Services, func(), error) {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logLevel(flags, defaultLevel)
	if err != nil {
		return nil, nil, err
	}
	out := params.LogOutput
	if out == nil {
		// Always use stderr to keep stdout for the conversation and MCP stdio.
		out = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	config.LogWithLogger(settings, logger)

	services, cleanup, err := params.NewServices(settings, logger)
	if err != nil {
		return nil, nil, err
	}
	if cleanup == nil {
		cleanup = func() {}
	}
	if params.Progress != nil {
		services.Workflow.Progress = params.Progress
	}
	return services, cleanup, nil
}

func logLevel(flags *pflag.FlagSet, fallback slog.Level) (slog.Level, error) {
	if flags == nil {
		return fallback, nil
	}
	f := flags.Lookup("log-level")
	if f == nil || f.Value.String() == "" {
		return fallback, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(f.Value.String())); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", f.Value.String(), err)
	}
	return level, nil
}

// RunServe runs the MCP server with the provided dependencies
func RunServe(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	services, cleanup, err := setup(params, flags, slog.LevelInfo)
	if err != nil {
		return err
	}
	defer cleanup()

	serve := &services.Settings.Serve
	if err := config.ValidateServeSettings(serve); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("Starting Mr. Pickles MCP server", "version", version)
	config.LogServe(serve, slog.Default())

	// Generation progress has no terminal in server mode.
	services.Workflow.Progress = ui.NoProgress{}
	mcpServer := params.CreateServer(services, version)

	if serve.Transport == "stdio" {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}

	slog.Info("Starting SSE server", "host", serve.Host, "port", serve.Port)
	return params.ServeSSE(ctx, mcpServer, serve)
}

// ServeSSE serves s over SSE until ctx is done, then shuts the listener down.
// Open SSE streams that outlive the shutdown grace period are closed.
func ServeSSE(ctx context.Context, s *mcp.Server, settings *config.ServeSettings) error {
	handler, err := newSSEHandler(s, settings.Auth, slog.Default())
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port)),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe() }()
	slog.Info("Server listening (HTTP)", "addr", srv.Addr, "auth_type", settings.Auth.Type)

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server", "addr", srv.Addr)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Graceful shutdown incomplete, closing connections", "error", err)
		_ = srv.Close()
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newSSEHandler routes /sse to the MCP server behind auth. /health stays open.
func newSSEHandler(s *mcp.Server, authSettings config.AuthSettings, logger *slog.Logger) (http.Handler, error) {
	authMiddleware, err := auth.NewMiddleware(authSettings, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth middleware: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})
	mux.Handle("/sse", mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return s }, nil))
	return authMiddleware(mux), nil
}

// CreateMCPServer creates the MCP server with the feature and recall tools
func CreateMCPServer(services *Services, version string) *mcp.Server {
	cfg := mcputil.ServerConfig{
		Name:     ServerName,
		Version:  version,
		Features: services.Workflow,
	}
	if services.Recall != nil {
		cfg.History = services.Recall
	}
	return mcputil.CreateServer(cfg)
}

// RunAsk starts the interactive session on in and out.
func RunAsk(ctx context.Context, params RunParams, flags *pflag.FlagSet, in io.Reader, out io.Writer) error {
	services, cleanup, err := setup(params, flags, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer cleanup()

	session := NewSession(ui.NewConsole(in, out), services.Workflow, services.Settings.Persona, slog.Default())
	session.Generator = services.Generator
	session.Conversation = services.Conversation
	session.Recall = services.Recall
	if params.Progress != nil {
		session.Progress = params.Progress
	}
	return session.Run(ctx)
}

// RunFeature runs the feature workflow once. A non-nil code reader supplies
// the code instead of the generator.
func RunFeature(ctx context.Context, params RunParams, flags *pflag.FlagSet, request string, code io.Reader, out io.Writer) error {
	request = strings.TrimSpace(request)
	if request == "" {
		return fmt.Errorf("feature request cannot be empty")
	}

	services, cleanup, err := setup(params, flags, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer cleanup()

	req := FeatureRequest{Text: request}
	if code != nil {
		data, err := io.ReadAll(code)
		if err != nil {
			return fmt.Errorf("failed to read code: %w", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return fmt.Errorf("no code provided")
		}
		req.Code = string(data)
	}

	console := ui.NewConsole(strings.NewReader(""), out)
	outcome, err := services.Workflow.Run(ctx, req)
	if err != nil {
		console.Error("Feature request failed: %s", err)
		return err
	}

	for _, f := range outcome.Record.Files {
		console.Info("Wrote %s", f)
	}
	if outcome.Report != nil && outcome.Report.PullRequestURL != "" {
		console.Success("Pull request: %s", outcome.Report.PullRequestURL)
	}
	console.Success("Feature %q completed", outcome.Record.Name)
	return nil
}

// RunFeatures prints the feature ledger, optionally filtered by status.
func RunFeatures(ctx context.Context, params RunParams, flags *pflag.FlagSet, status string, out io.Writer) error {
	services, cleanup, err := setup(params, flags, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer cleanup()

	st := domain.FeatureStatus(strings.ToLower(strings.TrimSpace(status)))
	if st != "" && !st.Valid() {
		return fmt.Errorf("unknown status: %s", status)
	}
	records, err := services.Workflow.ListFeatures(st)
	if err != nil {
		return err
	}

	console := ui.NewConsole(strings.NewReader(""), out)
	if len(records) == 0 {
		console.Info("No feature requests found.")
		return nil
	}
	for _, r := range records {
		line := fmt.Sprintf("[%s] %s", r.Status, r.Request)
		if r.Name != "" {
			line += " -> " + r.Name
		}
		switch r.Status {
		case domain.FeatureStatusCompleted:
			console.Success("%s", line)
		case domain.FeatureStatusFailed:
			console.Error("%s (%s)", line, r.Error)
		default:
			console.Warn("%s", line)
		}
	}
	return nil
}
