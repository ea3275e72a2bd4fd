package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sophialabs/mockexpect/internal/app"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mockexpect",
		Short: "mockexpect serves HTTP mocks from prioritised expectations",
		Long: `mockexpect matches incoming HTTP requests against per-project expectations
stored as YAML files and answers with a canned (optionally templated) response
or by proxying upstream. Expectations are edited through /__admin or on disk.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newValidateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cfg := app.DefaultConfig()
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mock server",
		Example: `  # Serve ./expectations on :8080
  mockexpect serve

  # Use a config file, overriding its port
  mockexpect serve --config mockexpect.yaml --port 9090

  # Answer unprefixed paths from the "default" project
  mockexpect serve --root ./mocks --default-project default`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := applyConfigFile(cmd, configPath, &cfg); err != nil {
				return err
			}
			a, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			return a.Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML config file; flags given explicitly take precedence")
	bindConfigFlags(f, &cfg)
	return cmd
}

func newValidateCmd() *cobra.Command {
	cfg := app.DefaultConfig()
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load the expectation files and resolve every matcher and action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := applyConfigFile(cmd, configPath, &cfg); err != nil {
				return err
			}
			res, err := app.Check(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range res.Problems {
				fmt.Fprintln(out, p.String())
			}
			fmt.Fprintf(out, "%d projects, %d expectations, %d problems\n", res.Projects, res.Expectations, len(res.Problems))
			if len(res.Problems) > 0 {
				return errors.New("expectations failed validation")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML config file")
	f.StringVar(&cfg.RootDir, "root", cfg.RootDir, "root directory of the expectation files")
	f.StringVar(&cfg.DefaultEngine, "default-engine", cfg.DefaultEngine, "template engine for mock bodies that name none (expr, jinja2)")
	f.StringVar(&cfg.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	return cmd
}

func bindConfigFlags(f *pflag.FlagSet, cfg *app.Config) {
	f.StringVar(&cfg.RootDir, "root", cfg.RootDir, "root directory of the expectation files")
	f.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	f.IntVar(&cfg.TraceSize, "trace-size", cfg.TraceSize, "number of dispatch traces to keep")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	f.IntVar(&cfg.LogBufferSize, "log-buffer-size", cfg.LogBufferSize, "request/response log entries kept in memory")
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "append request/response logs to this JSONL file")
	f.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "also push request/response logs to this redis server")
	f.StringVar(&cfg.RedisKeyPrefix, "redis-key-prefix", cfg.RedisKeyPrefix, "prefix of the redis log keys")
	f.Int64Var(&cfg.RedisMaxLen, "redis-max-len", cfg.RedisMaxLen, "log entries kept per project in redis")
	f.Int64Var(&cfg.MaxRawBodyBytes, "max-body-bytes", cfg.MaxRawBodyBytes, "request body bytes buffered for matching")
	f.DurationVar(&cfg.ActionTimeout, "action-timeout", cfg.ActionTimeout, "upper bound on delay plus action time (0 disables)")
	f.IntVar(&cfg.UnmatchedStatus, "unmatched-status", cfg.UnmatchedStatus, "status returned when no expectation matches")
	f.StringVar(&cfg.DefaultProject, "default-project", cfg.DefaultProject, "project serving paths outside /mock/{project}/")
	f.IntVar(&cfg.CapabilityCacheSize, "cache-size", cfg.CapabilityCacheSize, "resolved matchers and actions kept in cache")
	f.DurationVar(&cfg.WatcherDebounce, "watch-debounce", cfg.WatcherDebounce, "quiet period before reloading changed files")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown limit")
	f.StringVar(&cfg.DefaultEngine, "default-engine", cfg.DefaultEngine, "template engine for mock bodies that name none (expr, jinja2)")
}

// applyConfigFile overlays the config file, then re-applies the flags the
// user set explicitly so they win over the file.
func applyConfigFile(cmd *cobra.Command, path string, cfg *app.Config) error {
	if path == "" {
		return nil
	}
	explicit := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		explicit[f.Name] = f.Value.String()
	})

	if err := app.LoadConfigFile(path, cfg); err != nil {
		return err
	}

	for name, value := range explicit {
		if err := cmd.Flags().Set(name, value); err != nil {
			return fmt.Errorf("failed to re-apply --%s: %w", name, err)
		}
	}
	return nil
}
