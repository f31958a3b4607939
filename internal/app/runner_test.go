package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/sha1n/mr-pickles/internal/config"
	"github.com/sha1n/mr-pickles/internal/domain"
	"github.com/sha1n/mr-pickles/internal/ledger"
	"github.com/sha1n/mr-pickles/internal/ui"
)

// noopValidate is a no-op validation function for tests
func noopValidate(*config.Settings) error {
	return nil
}

func serveSettings(transport string) *config.Settings {
	return &config.Settings{
		Serve: config.ServeSettings{
			Transport: transport,
			Auth:      config.AuthSettings{Type: config.AuthTypeNone},
		},
	}
}

func loadSettings(s *config.Settings) func(*pflag.FlagSet) (*config.Settings, error) {
	return func(*pflag.FlagSet) (*config.Settings, error) {
		return s, nil
	}
}

// stubServices builds services backed by a ledger in a temp dir.
func stubServices(t *testing.T, cleanup func()) func(*config.Settings, *slog.Logger) (*Services, func(), error) {
	t.Helper()
	dir := t.TempDir()
	return func(s *config.Settings, logger *slog.Logger) (*Services, func(), error) {
		features := ledger.NewFeatures(dir, logger)
		return &Services{
			Settings:     s,
			Workflow:     NewWorkflow(WorkflowOptions{}, features, logger),
			Conversation: ledger.NewConversation(dir, logger),
		}, cleanup, nil
	}
}

func TestRunServe_ErrorCases(t *testing.T) {
	tests := []struct {
		name           string
		params         func(t *testing.T) RunParams
		wantErrContain string
	}{
		{
			name: "LoadSettings error",
			params: func(*testing.T) RunParams {
				return RunParams{
					LoadSettings: func(*pflag.FlagSet) (*config.Settings, error) {
						return nil, errors.New("settings error")
					},
					ValidSettings: noopValidate,
				}
			},
			wantErrContain: "failed to load settings",
		},
		{
			name: "ValidSettings error",
			params: func(*testing.T) RunParams {
				return RunParams{
					LoadSettings: loadSettings(serveSettings("sse")),
					ValidSettings: func(*config.Settings) error {
						return errors.New("validation error")
					},
				}
			},
			wantErrContain: "invalid configuration",
		},
		{
			name: "NewServices error",
			params: func(*testing.T) RunParams {
				return RunParams{
					LoadSettings:  loadSettings(serveSettings("sse")),
					ValidSettings: noopValidate,
					NewServices: func(*config.Settings, *slog.Logger) (*Services, func(), error) {
						return nil, nil, errors.New("services error")
					},
				}
			},
			wantErrContain: "services error",
		},
		{
			name: "invalid transport",
			params: func(t *testing.T) RunParams {
				return RunParams{
					LoadSettings:  loadSettings(serveSettings("carrier-pigeon")),
					ValidSettings: noopValidate,
					NewServices:   stubServices(t, nil),
				}
			},
			wantErrContain: "transport must be",
		},
		{
			name: "ServeSSE error",
			params: func(t *testing.T) RunParams {
				return RunParams{
					LoadSettings:  loadSettings(serveSettings("sse")),
					ValidSettings: noopValidate,
					NewServices:   stubServices(t, nil),
					CreateServer:  CreateMCPServer,
					ServeSSE: func(context.Context, *mcp.Server, *config.ServeSettings) error {
						return errors.New("sse start error")
					},
				}
			},
			wantErrContain: "sse start error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := tt.params(t)
			params.LogOutput = io.Discard
			err := RunServe(context.Background(), params, nil, "test")
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErrContain)
			}
			if !strings.Contains(err.Error(), tt.wantErrContain) {
				t.Errorf("Expected error containing %q, got %q", tt.wantErrContain, err.Error())
			}
		})
	}
}

func TestRunServe_Cleanup(t *testing.T) {
	cleanupCalled := false
	params := RunParams{
		LoadSettings:  loadSettings(serveSettings("sse")),
		ValidSettings: noopValidate,
		NewServices:   stubServices(t, func() { cleanupCalled = true }),
		CreateServer:  CreateMCPServer,
		ServeSSE: func(context.Context, *mcp.Server, *config.ServeSettings) error {
			return errors.New("intentional error to trigger cleanup")
		},
		LogOutput: io.Discard,
	}

	_ = RunServe(context.Background(), params, nil, "test")

	if !cleanupCalled {
		t.Error("Cleanup was not called")
	}
}

func TestDefaultRunParams(t *testing.T) {
	params := DefaultRunParams()

	if params.LoadSettings == nil {
		t.Error("LoadSettings is nil")
	}
	if params.ValidSettings == nil {
		t.Error("ValidSettings is nil")
	}
	if params.NewServices == nil {
		t.Error("NewServices is nil")
	}
	if params.ServeSSE == nil {
		t.Error("ServeSSE is nil")
	}
	if params.CreateServer == nil {
		t.Error("CreateServer is nil")
	}
	if params.Progress == nil {
		t.Error("Progress is nil")
	}
}

func TestRunServe_StdioWithCustomTransport(t *testing.T) {
	transportUsed := false
	customTransport := &mockTransport{
		connectCalled: &transportUsed,
	}

	params := RunParams{
		LoadSettings:      loadSettings(serveSettings("stdio")),
		ValidSettings:     noopValidate,
		NewServices:       stubServices(t, nil),
		CreateServer:      CreateMCPServer,
		CustomIOTransport: customTransport,
		LogOutput:         io.Discard,
	}

	// Use a cancelled context to avoid hanging
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = RunServe(ctx, params, nil, "test")

	if !transportUsed {
		t.Error("Custom transport Connect was not called")
	}
}

func TestSetup_LogLevelFlag(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	if err := flags.Parse([]string{"--log-level", "debug"}); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var logs bytes.Buffer
	params := RunParams{
		LoadSettings:  loadSettings(serveSettings("stdio")),
		ValidSettings: noopValidate,
		NewServices:   stubServices(t, nil),
		LogOutput:     &logs,
	}

	_, cleanup, err := setup(params, flags, slog.LevelWarn)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	cleanup()

	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected debug logging to be enabled")
	}
	if !strings.Contains(logs.String(), "Config: host.path") {
		t.Errorf("Expected configuration to be logged, got %q", logs.String())
	}
}

func TestSetup_InvalidLogLevel(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	if err := flags.Parse([]string{"--log-level", "chatty"}); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}

	params := RunParams{
		LoadSettings:  loadSettings(serveSettings("stdio")),
		ValidSettings: noopValidate,
		NewServices:   stubServices(t, nil),
		LogOutput:     io.Discard,
	}

	if _, _, err := setup(params, flags, slog.LevelWarn); err == nil {
		t.Error("Expected error for invalid log level")
	}
}

func TestCreateMCPServer(t *testing.T) {
	services, _, err := stubServices(t, nil)(serveSettings("stdio"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	server := CreateMCPServer(services, "1.0.0")
	if server == nil {
		t.Error("Expected server to be created")
	}
}

func TestRunFeature_EmptyRequest(t *testing.T) {
	err := RunFeature(context.Background(), RunParams{}, nil, "   ", nil, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "cannot be empty") {
		t.Errorf("Expected empty request error, got %v", err)
	}
}

func TestRunFeature_NoCode(t *testing.T) {
	params := RunParams{
		LoadSettings:  loadSettings(serveSettings("stdio")),
		ValidSettings: noopValidate,
		NewServices:   stubServices(t, nil),
		LogOutput:     io.Discard,
	}

	err := RunFeature(context.Background(), params, nil, "add a thing", strings.NewReader("  \n"), io.Discard)
	if err == nil || !strings.Contains(err.Error(), "no code provided") {
		t.Errorf("Expected no code error, got %v", err)
	}
}

func TestRunFeatures_UnknownStatus(t *testing.T) {
	params := RunParams{
		LoadSettings:  loadSettings(serveSettings("stdio")),
		ValidSettings: noopValidate,
		NewServices:   stubServices(t, nil),
		LogOutput:     io.Discard,
	}

	err := RunFeatures(context.Background(), params, nil, "abandoned", io.Discard)
	if err == nil || !strings.Contains(err.Error(), "unknown status") {
		t.Errorf("Expected unknown status error, got %v", err)
	}
}

func TestRunFeatures_Lists(t *testing.T) {
	newServices := stubServices(t, nil)
	params := RunParams{
		LoadSettings:  loadSettings(serveSettings("stdio")),
		ValidSettings: noopValidate,
		NewServices: func(s *config.Settings, logger *slog.Logger) (*Services, func(), error) {
			services, cleanup, err := newServices(s, logger)
			if err != nil {
				return nil, nil, err
			}
			if _, err := services.Workflow.Features.Append("Feature request: ping"); err != nil {
				return nil, nil, err
			}
			if _, err := services.Workflow.Features.MarkFailed("Feature request: ping", errors.New("boom")); err != nil {
				return nil, nil, err
			}
			return services, cleanup, nil
		},
		Progress:  ui.NoProgress{},
		LogOutput: io.Discard,
	}

	var out bytes.Buffer
	if err := RunFeatures(context.Background(), params, nil, string(domain.FeatureStatusFailed), &out); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Feature request: ping") || !strings.Contains(out.String(), "boom") {
		t.Errorf("Expected failed record in output, got %q", out.String())
	}
}

// mockTransport implements mcp.Transport for testing
type mockTransport struct {
	connectCalled *bool
}

func (m *mockTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	if m.connectCalled != nil {
		*m.connectCalled = true
	}
	return nil, errors.New("mock transport - no real connection")
}
