package config

import (
	"context"
	"log/slog"
)

const masked = "****"

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: host.path", "value", s.Host.Path)
	logger.InfoContext(ctx, "Config: host.mode", "value", s.Host.Mode)
	if s.Host.Mode == ModeMaterialize {
		logger.InfoContext(ctx, "Config: host.features_dir", "value", s.Host.FeaturesDir)
		logger.InfoContext(ctx, "Config: host.docs_dir", "value", s.Host.DocsDir)
	}
	if s.Host.Marker != "" {
		logger.InfoContext(ctx, "Config: host.marker", "value", s.Host.Marker)
	}
	logger.InfoContext(ctx, "Config: host.classifier", "value", s.Host.Classifier)

	logger.InfoContext(ctx, "Config: generator", "value", GeneratorSettingsLogValue(s.Generator))
	logger.InfoContext(ctx, "Config: persona", "tone", s.Persona.Tone, "detail", s.Persona.Detail)

	logger.InfoContext(ctx, "Config: publish.enabled", "value", s.Publish.Enabled)
	if s.Publish.Enabled {
		logger.InfoContext(ctx, "Config: repository", "value", RepositorySettingsLogValue(s.Repository))
		logger.InfoContext(ctx, "Config: publish.max_attempts", "value", s.Publish.MaxAttempts)
		logger.InfoContext(ctx, "Config: publish.backoff_unit", "value", s.Publish.BackoffUnit)
	}

	logger.InfoContext(ctx, "Config: sandbox.enabled", "value", s.Sandbox.Enabled)
	if s.Sandbox.Enabled {
		logger.InfoContext(ctx, "Config: sandbox.timeout", "value", s.Sandbox.Timeout)
	}
}

// LogServe logs the MCP server settings.
func LogServe(s *ServeSettings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport == "sse" {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}

	logger.InfoContext(ctx, "Config: auth.type", "value", s.Auth.Type)
	switch s.Auth.Type {
	case AuthTypeBasic:
		logger.InfoContext(ctx, "Config: auth.basic.username", "value", s.Auth.Basic.Username)
		logger.InfoContext(ctx, "Config: auth.basic.password", "value", masked)
	case AuthTypeAPIKey:
		logger.InfoContext(ctx, "Config: auth.api_keys", "count", len(s.Auth.APIKeys))
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return masked
}

// AuthSettingsLogValue returns a slog.Value for AuthSettings with masked data
func AuthSettingsLogValue(s AuthSettings) slog.Value {
	keys := make([]string, len(s.APIKeys))
	for i := range s.APIKeys {
		keys[i] = masked
	}
	return slog.GroupValue(
		slog.String("type", s.Type),
		slog.Any("basic", BasicAuthSettingsLogValue(s.Basic)),
		slog.Any("api_keys", keys),
	)
}

// BasicAuthSettingsLogValue returns a slog.Value for BasicAuthSettings with masked data
func BasicAuthSettingsLogValue(s BasicAuthSettings) slog.Value {
	return slog.GroupValue(
		slog.String("username", s.Username),
		slog.String("password", masked),
	)
}

// GeneratorSettingsLogValue returns a slog.Value for GeneratorSettings with the API key masked
func GeneratorSettingsLogValue(s GeneratorSettings) slog.Value {
	return slog.GroupValue(
		slog.String("provider", s.Provider),
		slog.String("model", s.Model),
		slog.String("base_url", s.BaseURL),
		slog.String("api_key", mask(s.APIKey)),
		slog.Float64("temperature", s.Temperature),
	)
}

// RepositorySettingsLogValue returns a slog.Value for RepositorySettings with the token masked
func RepositorySettingsLogValue(s RepositorySettings) slog.Value {
	return slog.GroupValue(
		slog.String("provider", s.Provider),
		slog.String("slug", s.Slug),
		slog.String("token", mask(s.Token)),
		slog.String("base_url", s.BaseURL),
		slog.String("default_branch", s.DefaultBranch),
		slog.String("remote", s.Remote),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("host", s.Host.Path),
		slog.String("mode", s.Host.Mode),
		slog.Any("generator", GeneratorSettingsLogValue(s.Generator)),
		slog.Any("repository", RepositorySettingsLogValue(s.Repository)),
		slog.Bool("publish", s.Publish.Enabled),
		slog.Bool("sandbox", s.Sandbox.Enabled),
		slog.String("transport", s.Serve.Transport),
		slog.Any("auth", AuthSettingsLogValue(s.Serve.Auth)),
	)
}
