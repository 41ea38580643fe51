package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sokinpui/rejfix/cli"
	"github.com/sokinpui/rejfix/internal/logging"
	"github.com/sokinpui/rejfix/rejfix"
)

var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "rejfix",
		Short: "Recover rejected patch hunks against a drifted source tree",
		Long: `Applies a patch to the source tree (or takes existing .rej files), places every
rejected hunk by fuzzy context matching and structural fallbacks, and writes one
regenerated patch per group to the output directory.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cli.Load(cmd.Flags(), configPath)
			if err != nil {
				return err
			}
			return execute(cmd.Context(), cfg)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default .rejfix.yaml in the working directory or $HOME).")
	rootCmd.Flags().AddFlagSet(cli.Flags())

	rootCmd.AddCommand(revertCmd(&configPath))
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var detailed *rejfix.DetailedError
		if errors.As(err, &detailed) {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
		}
		os.Exit(1)
	}
}

// setupLogging attaches the configured logger to ctx. When deferred is true
// and the logger would write to stderr, records are buffered until flush.
func setupLogging(ctx context.Context, cfg *cli.Config, deferred bool) (context.Context, func(), error) {
	logCfg := logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}

	if deferred && (logCfg.Output == "" || logCfg.Output == logging.OutputStderr) {
		level, err := logging.ParseLevel(logCfg.Level)
		if err != nil {
			return ctx, func() {}, err
		}
		buf := &logging.Deferred{}
		logger, err := logging.NewWithWriter(buf, level, logCfg.Format)
		if err != nil {
			return ctx, func() {}, err
		}
		return logging.WithContext(ctx, logger), func() { buf.Flush(os.Stderr) }, nil
	}

	logger, closer, err := logging.New(logCfg)
	if err != nil {
		return ctx, func() {}, err
	}
	return logging.WithContext(ctx, logger), func() { closer.Close() }, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
