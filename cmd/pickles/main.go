package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sha1n/mr-pickles/internal/app"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "pickles"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	rootCmd := newRootCommand(version, programName, app.DefaultRunParams(), os.Stdin, os.Stdout)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func newRootCommand(version, programName string, params app.RunParams, in io.Reader, out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Mr. Pickles, a reluctant coding assistant",
		Long:         "Mr. Pickles answers questions and turns feature requests into Python code merged into your project.",
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSignals(func(ctx context.Context) error {
				return app.RunAsk(ctx, params, cmd.Flags(), in, out)
			})
		},
	}
	rootCmd.SetVersionTemplate(`{{.Version}}
`)
	rootCmd.SetOut(out)
	app.RegisterFlags(rootCmd.PersistentFlags())

	askCmd := &cobra.Command{
		Use:   "ask",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE:  rootCmd.RunE,
	}

	featureCmd := &cobra.Command{
		Use:   "feature <request>",
		Short: "Generate, merge and publish a single feature",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSignals(func(ctx context.Context) error {
				return app.RunFeature(ctx, params, cmd.Flags(), strings.Join(args, " "), nil, out)
			})
		},
	}

	applyCmd := &cobra.Command{
		Use:   "apply <request>",
		Short: "Merge existing code for a feature request without calling the generator",
		Long:  "Reads Python code from --file, or from standard input, and merges it like a generated feature.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := in
			if path, _ := cmd.Flags().GetString("file"); path != "" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				code = f
			}
			return withSignals(func(ctx context.Context) error {
				return app.RunFeature(ctx, params, cmd.Flags(), strings.Join(args, " "), code, out)
			})
		},
	}
	applyCmd.Flags().StringP("file", "f", "", "File with the code to apply (default stdin)")

	featuresCmd := &cobra.Command{
		Use:   "features",
		Short: "List recorded feature requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			return app.RunFeatures(cmd.Context(), params, cmd.Flags(), status, out)
		},
	}
	featuresCmd.Flags().StringP("status", "s", "", "Only show pending, completed or failed requests")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run as an MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSignals(func(ctx context.Context) error {
				return app.RunServe(ctx, params, cmd.Flags(), version)
			})
		},
	}
	app.RegisterServeFlags(serveCmd.Flags())

	rootCmd.AddCommand(askCmd, featureCmd, applyCmd, featuresCmd, serveCmd)
	return rootCmd
}

// withSignals runs fn with a context cancelled on SIGINT or SIGTERM.
func withSignals(fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx)
}
