package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/drewcsillag/notecove/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the persistent flags every command's PersistentPreRunE
// resolves into a CLIContext. Grouped into a struct (rather than package
// globals referenced piecemeal) so tests can build a CLIContext without
// mutating shared state.
type CLIFlags struct {
	ConfigPath string
	SD         string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// skipConfigAnnotation marks commands that handle config loading
// themselves or need none at all (e.g. version).
const skipConfigAnnotation = "skipConfig"

// CLIContext bundles resolved config, logger, and flags. Created once in
// PersistentPreRunE; eliminates redundant config/logger construction in
// RunE handlers.
type CLIContext struct {
	Cfg    *config.Resolved
	Logger *slog.Logger
	Flags  CLIFlags
}

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context.
// Returns nil if no config was loaded (e.g., commands that skip config).
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}
	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable
// message. Use in RunE handlers for commands that require config (no
// skipConfigAnnotation).
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — ensure the command " +
			"does not skip config loading (no skipConfigAnnotation) or " +
			"explicitly loads config in its RunE")
	}
	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	flags := &CLIFlags{}

	cmd := &cobra.Command{
		Use:           "notecove",
		Short:         "Collaborative note-taking CRDT store",
		Long:          "notecove synchronizes a CRDT note store across instances sharing a Storage Directory via an untrusted replicator.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}
			return loadConfig(cmd, flags)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flags.SD, "sd", "", "storage directory selector (alias or path)")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newOpenCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newGCCmd())
	cmd.AddCommand(newQuarantineCmd())
	cmd.AddCommand(newFuzzCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the layered
// override chain and stores the result in the command's context for use
// by subcommands.
func loadConfig(cmd *cobra.Command, flags *CLIFlags) error {
	logger := buildLogger(nil, *flags)

	env := config.ReadEnvOverrides()
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}
	if cmd.Flags().Changed("sd") {
		cli.SD = flags.SD
	}

	logger.Debug("resolving config",
		slog.String("config_path", cli.ConfigPath),
		slog.String("env_config", env.ConfigPath),
		slog.String("cli_sd", cli.SD),
	)

	resolved, err := config.Resolve(env, cli, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	finalLogger := buildLogger(resolved.Config, *flags)
	cc := &CLIContext{Cfg: resolved, Logger: finalLogger, Flags: *flags}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config
// and CLI flags. Pass nil for pre-config bootstrap (no config-file log
// level). Config-file log level provides the baseline; --verbose,
// --debug, and --quiet override it because CLI flags always win.
func buildLogger(cfg *config.Config, flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flags.Verbose {
		level = slog.LevelInfo
	}
	if flags.Debug {
		level = slog.LevelDebug
	}
	if flags.Quiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// newVersionCmd prints the build version; it needs no resolved config.
func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the notecove version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
	cmd.Annotations = map[string]string{skipConfigAnnotation: "true"}
	return cmd
}

// resolveSDPath resolves the filesystem path this command should operate
// on: a positional path argument wins if given, falling back to whatever
// the layered config resolved (--sd selector or sole configured entry).
func resolveSDPath(cc *CLIContext, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cc.Cfg.SD == nil {
		return "", fmt.Errorf("no storage directory given and none configured; pass a path or set --sd")
	}
	return cc.Cfg.SD.Path, nil
}

// defaultShutdownTimeout bounds how long `watch` waits for the web bridge's
// HTTP server to shut down after a shutdown signal.
const defaultShutdownTimeout = 30 * time.Second
