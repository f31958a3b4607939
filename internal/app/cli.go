package app

import "github.com/spf13/pflag"

// RegisterFlags registers the flags shared by every command
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "Config file (default ./pickles.yaml if present)")
	flags.String("log-level", "", "Log level: debug, info, warn or error")

	flags.String("host-path", "", "Python host script to extend")
	flags.String("features-dir", "", "Directory for generated feature modules")
	flags.String("docs-dir", "", "Directory for generated feature docs")
	flags.String("state-dir", "", "Directory for the feature and conversation ledgers")
	flags.StringP("mode", "m", "", "Merge mode: materialize or splice")
	flags.String("marker", "", "Insert spliced code after the line containing this text")
	flags.String("classifier", "", "Snippet classifier: defensive or permissive")

	flags.String("provider", "", "Generator provider: openai, ollama or none")
	flags.String("model", "", "Generator model name")
	flags.String("generator-base-url", "", "Generator API base URL")
	flags.String("api-key", "", "Generator API key")
	flags.Float64("temperature", 0, "Generator sampling temperature")

	flags.String("tone", "", "Persona tone: neutral or sarcastic")
	flags.String("detail", "", "Persona detail: normal or detailed")

	flags.Bool("publish", false, "Branch, commit, push and open a pull request for each feature")
	flags.String("repo-provider", "", "Repository host: github, gitlab or none")
	flags.StringP("repo", "r", "", "Repository (owner/repo or group/project), derived from the git remote when empty")
	flags.String("repo-token", "", "Repository host token")
	flags.String("repo-base-url", "", "Repository host API base URL")
	flags.String("default-branch", "", "Base branch for feature branches")
	flags.String("remote", "", "Git remote to push to")
	flags.String("branch-prefix", "", "Prefix of feature branch names")
	flags.Int("branch-max-length", 0, "Maximum feature branch name length")
	flags.Int("max-attempts", 0, "Commit and push attempts")
	flags.Duration("backoff-unit", 0, "Retry backoff unit")
	flags.String("work-dir", "", "Git working copy")

	flags.Bool("sandbox", false, "Smoke test materialized features in a separate interpreter")
	flags.String("interpreter", "", "Python interpreter for the smoke test")
	flags.Duration("sandbox-timeout", 0, "Smoke test timeout")
}

// RegisterServeFlags registers the MCP server flags
func RegisterServeFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("listen-host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")
}
