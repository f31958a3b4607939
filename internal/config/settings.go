package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sha1n/mr-pickles/internal/domain"
)

// EnvPrefix is the prefix of every environment variable read by the settings loader.
const EnvPrefix = "PICKLES"

// DefaultConfigFile is read from the working directory when no --config is given.
const DefaultConfigFile = "pickles.yaml"

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// Host modes
const (
	ModeMaterialize = "materialize"
	ModeSplice      = "splice"
)

// Classifier modes
const (
	ClassifierDefensive  = "defensive"
	ClassifierPermissive = "permissive"
)

// Provider names shared by the generator and repository sections.
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"
)

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// HostSettings locates the host script and the files generated next to it.
type HostSettings struct {
	Path        string `mapstructure:"path"`
	FeaturesDir string `mapstructure:"features_dir"`
	DocsDir     string `mapstructure:"docs_dir"`
	StateDir    string `mapstructure:"state_dir"`
	Mode        string `mapstructure:"mode"`
	Marker      string `mapstructure:"marker"`
	Classifier  string `mapstructure:"classifier"`
}

// GeneratorSettings configures the language model.
type GeneratorSettings struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float64 `mapstructure:"temperature"`
}

// RepositorySettings configures the remote repository host.
type RepositorySettings struct {
	Provider      string `mapstructure:"provider"`
	Slug          string `mapstructure:"slug"`
	Token         string `mapstructure:"token"`
	BaseURL       string `mapstructure:"base_url"`
	DefaultBranch string `mapstructure:"default_branch"`
	Remote        string `mapstructure:"remote"`
}

// PublishSettings configures the branch, commit, push and pull request workflow.
type PublishSettings struct {
	Enabled         bool          `mapstructure:"enabled"`
	BranchPrefix    string        `mapstructure:"branch_prefix"`
	BranchMaxLength int           `mapstructure:"branch_max_length"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BackoffUnit     time.Duration `mapstructure:"backoff_unit"`
	WorkDir         string        `mapstructure:"work_dir"`
}

// SandboxSettings configures the feature smoke test.
type SandboxSettings struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interpreter string        `mapstructure:"interpreter"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ServeSettings configures the MCP server.
type ServeSettings struct {
	Transport string       `mapstructure:"transport"`
	Host      string       `mapstructure:"host"`
	Port      int          `mapstructure:"port"`
	Auth      AuthSettings `mapstructure:"auth"`
}

// Settings application settings
type Settings struct {
	Host       HostSettings       `mapstructure:"host"`
	Generator  GeneratorSettings  `mapstructure:"generator"`
	Persona    domain.Persona     `mapstructure:"persona"`
	Repository RepositorySettings `mapstructure:"repository"`
	Publish    PublishSettings    `mapstructure:"publish"`
	Sandbox    SandboxSettings    `mapstructure:"sandbox"`
	Serve      ServeSettings      `mapstructure:"serve"`
}

// binding ties a settings key to its CLI flag and any extra environment variables.
type binding struct {
	key      string
	flag     string
	extraEnv []string
}

var bindings = []binding{
	{key: "host.path", flag: "host-path"},
	{key: "host.features_dir", flag: "features-dir"},
	{key: "host.docs_dir", flag: "docs-dir"},
	{key: "host.state_dir", flag: "state-dir"},
	{key: "host.mode", flag: "mode"},
	{key: "host.marker", flag: "marker"},
	{key: "host.classifier", flag: "classifier"},

	{key: "generator.provider", flag: "provider"},
	{key: "generator.model", flag: "model"},
	{key: "generator.base_url", flag: "generator-base-url"},
	{key: "generator.api_key", flag: "api-key", extraEnv: []string{"OPENAI_API_KEY"}},
	{key: "generator.temperature", flag: "temperature"},

	{key: "persona.tone", flag: "tone"},
	{key: "persona.detail", flag: "detail"},

	{key: "repository.provider", flag: "repo-provider"},
	{key: "repository.slug", flag: "repo"},
	{key: "repository.token", flag: "repo-token", extraEnv: []string{"GITHUB_TOKEN", "GITLAB_TOKEN"}},
	{key: "repository.base_url", flag: "repo-base-url"},
	{key: "repository.default_branch", flag: "default-branch"},
	{key: "repository.remote", flag: "remote"},

	{key: "publish.enabled", flag: "publish"},
	{key: "publish.branch_prefix", flag: "branch-prefix"},
	{key: "publish.branch_max_length", flag: "branch-max-length"},
	{key: "publish.max_attempts", flag: "max-attempts"},
	{key: "publish.backoff_unit", flag: "backoff-unit"},
	{key: "publish.work_dir", flag: "work-dir"},

	{key: "sandbox.enabled", flag: "sandbox"},
	{key: "sandbox.interpreter", flag: "interpreter"},
	{key: "sandbox.timeout", flag: "sandbox-timeout"},

	{key: "serve.transport", flag: "transport"},
	{key: "serve.host", flag: "listen-host"},
	{key: "serve.port", flag: "port"},
	{key: "serve.auth.type", flag: "auth-type"},
	{key: "serve.auth.basic.username", flag: "auth-basic-username"},
	{key: "serve.auth.basic.password", flag: "auth-basic-password"},
	{key: "serve.auth.api_keys", flag: "auth-api-keys"},
}

// EnvName returns the environment variable bound to a settings key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// LoadSettings loads settings from environment variables and optional config files
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > config file > .env file > defaults.
// If flags is nil, only env vars, config files and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Host defaults
	v.SetDefault("host.path", "main.py")
	v.SetDefault("host.features_dir", "features")
	v.SetDefault("host.docs_dir", "docs")
	v.SetDefault("host.state_dir", ".")
	v.SetDefault("host.mode", ModeMaterialize)
	v.SetDefault("host.marker", "")
	v.SetDefault("host.classifier", ClassifierDefensive)

	// Generator defaults
	v.SetDefault("generator.provider", ProviderOpenAI)
	v.SetDefault("generator.model", "gpt-4o-mini")
	v.SetDefault("generator.base_url", "")
	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.temperature", 0.7)

	persona := domain.DefaultPersona()
	v.SetDefault("persona.tone", persona.Tone)
	v.SetDefault("persona.detail", persona.Detail)

	// Repository defaults
	v.SetDefault("repository.provider", ProviderNone)
	v.SetDefault("repository.slug", "")
	v.SetDefault("repository.token", "")
	v.SetDefault("repository.base_url", "")
	v.SetDefault("repository.default_branch", "")
	v.SetDefault("repository.remote", "origin")

	// Publish defaults
	v.SetDefault("publish.enabled", false)
	v.SetDefault("publish.branch_prefix", "feature")
	v.SetDefault("publish.branch_max_length", 60)
	v.SetDefault("publish.max_attempts", 5)
	v.SetDefault("publish.backoff_unit", time.Second)
	v.SetDefault("publish.work_dir", ".")

	// Sandbox defaults
	v.SetDefault("sandbox.enabled", false)
	v.SetDefault("sandbox.interpreter", "python3")
	v.SetDefault("sandbox.timeout", 10*time.Second)

	// Serve defaults
	v.SetDefault("serve.transport", "stdio")
	v.SetDefault("serve.host", "0.0.0.0")
	v.SetDefault("serve.port", 8080)
	v.SetDefault("serve.auth.type", AuthTypeNone)

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, b := range bindings {
		_ = v.BindEnv(append([]string{b.key, EnvName(b.key)}, b.extraEnv...)...)
	}

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		for _, b := range bindings {
			if f := flags.Lookup(b.flag); f != nil {
				_ = v.BindPFlag(b.key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	configFile, explicit := configFilePath(flags)
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType(strings.TrimPrefix(filepath.Ext(configFile), "."))
		if err := v.MergeInConfig(); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Handle explicit parsing of API keys if provided via env var as comma-separated string
	apiKeysEnv := os.Getenv(EnvName("serve.auth.api_keys"))
	if apiKeysEnv != "" {
		if len(settings.Serve.Auth.APIKeys) == 0 || (len(settings.Serve.Auth.APIKeys) == 1 && strings.Contains(settings.Serve.Auth.APIKeys[0], ",")) {
			settings.Serve.Auth.APIKeys = strings.Split(apiKeysEnv, ",")
		}
	}

	// Trim spaces from API keys
	for i := range settings.Serve.Auth.APIKeys {
		settings.Serve.Auth.APIKeys[i] = strings.TrimSpace(settings.Serve.Auth.APIKeys[i])
	}
	settings.Serve.Auth.APIKeys = filterEmptyStrings(settings.Serve.Auth.APIKeys)

	// Expand home directory in paths
	settings.Host.Path = expandHomeDir(settings.Host.Path)
	settings.Host.FeaturesDir = expandHomeDir(settings.Host.FeaturesDir)
	settings.Host.DocsDir = expandHomeDir(settings.Host.DocsDir)
	settings.Host.StateDir = expandHomeDir(settings.Host.StateDir)
	settings.Publish.WorkDir = expandHomeDir(settings.Publish.WorkDir)

	return &settings, nil
}

// configFilePath returns the config file to merge and whether it was requested explicitly.
func configFilePath(flags *pflag.FlagSet) (string, bool) {
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			return expandHomeDir(f.Value.String()), true
		}
	}
	if p := os.Getenv(EnvName("config")); p != "" {
		return expandHomeDir(p), true
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile, false
	}
	return "", false
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// filterEmptyStrings removes empty strings from a slice
func filterEmptyStrings(s []string) []string {
	var result []string
	for _, str := range s {
		if str != "" {
			result = append(result, str)
		}
	}
	return result
}

// ValidateSettings checks for conflicting or incomplete configuration.
func ValidateSettings(s *Settings) error {
	if err := validateHostSettings(&s.Host); err != nil {
		return err
	}
	if err := validateGeneratorSettings(&s.Generator); err != nil {
		return err
	}
	if err := validatePersona(s.Persona); err != nil {
		return err
	}
	if err := validateRepositorySettings(&s.Repository, &s.Publish); err != nil {
		return err
	}
	if err := validateSandboxSettings(&s.Sandbox); err != nil {
		return err
	}
	return ValidateServeSettings(&s.Serve)
}

func validateHostSettings(h *HostSettings) error {
	if h.Path == "" {
		return errors.New("host-path cannot be empty")
	}
	if h.FeaturesDir == "" {
		return errors.New("features-dir cannot be empty")
	}
	switch h.Mode {
	case ModeMaterialize, ModeSplice:
	default:
		return errors.New("mode must be 'materialize' or 'splice', got: " + h.Mode)
	}
	switch h.Classifier {
	case ClassifierDefensive, ClassifierPermissive:
	default:
		return errors.New("classifier must be 'defensive' or 'permissive', got: " + h.Classifier)
	}
	return nil
}

func validateGeneratorSettings(g *GeneratorSettings) error {
	switch g.Provider {
	case ProviderOpenAI, ProviderOllama, ProviderNone:
	default:
		return errors.New("unknown generator provider: " + g.Provider)
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got: %v", g.Temperature)
	}
	return nil
}

func validatePersona(p domain.Persona) error {
	switch p.Tone {
	case domain.ToneNeutral, domain.ToneSarcastic:
	default:
		return errors.New("unknown persona tone: " + p.Tone)
	}
	switch p.Detail {
	case domain.DetailNormal, domain.DetailDetailed:
	default:
		return errors.New("unknown persona detail: " + p.Detail)
	}
	return nil
}

func validateRepositorySettings(r *RepositorySettings, p *PublishSettings) error {
	switch r.Provider {
	case ProviderGitHub:
		// An empty slug is derived from the remote URL.
		if r.Slug != "" && strings.Count(r.Slug, "/") != 1 {
			return errors.New("github repository must be owner/repo, got: " + r.Slug)
		}
	case ProviderGitLab:
	case ProviderNone:
	default:
		return errors.New("unknown repo-provider: " + r.Provider)
	}

	if !p.Enabled {
		return nil // No validation needed when disabled
	}
	if r.Provider == ProviderNone {
		return errors.New("publish requires a repo-provider")
	}
	if r.Remote == "" {
		return errors.New("remote cannot be empty")
	}
	if p.MaxAttempts <= 0 {
		return errors.New("max-attempts must be positive")
	}
	if p.BackoffUnit <= 0 {
		return errors.New("backoff-unit must be positive")
	}
	if p.BranchMaxLength <= 0 {
		return errors.New("branch-max-length must be positive")
	}
	return nil
}

func validateSandboxSettings(s *SandboxSettings) error {
	if !s.Enabled {
		return nil
	}
	if s.Interpreter == "" {
		return errors.New("interpreter cannot be empty")
	}
	if s.Timeout <= 0 {
		return errors.New("sandbox-timeout must be positive")
	}
	return nil
}

// ValidateServeSettings checks the MCP server transport and auth configuration.
func ValidateServeSettings(s *ServeSettings) error {
	// Validate transport type
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	hasBasicCreds := s.Auth.Basic.Username != "" || s.Auth.Basic.Password != ""
	hasAPIKeys := len(s.Auth.APIKeys) > 0

	switch s.Auth.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if s.Auth.Basic.Username == "" || s.Auth.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + s.Auth.Type)
	}

	return nil
}
