package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sokinpui/rejfix/cli"
	"github.com/sokinpui/rejfix/internal/logging"
	"github.com/sokinpui/rejfix/internal/ui"
	"github.com/sokinpui/rejfix/rejfix"
)

const (
	formatTable = "table"
	formatYAML  = "yaml"
)

func inspectCmd() *cobra.Command {
	var format, logLevel string

	cmd := &cobra.Command{
		Use:   "inspect [reject-file]",
		Short: "Show the hunks of a reject without applying them",
		Long:  `Parses reject text from a file, piped stdin or the clipboard and prints its hunks. Markdown with fenced diff blocks is accepted.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(format)
			if format != formatTable && format != formatYAML {
				return fmt.Errorf("unknown format %q, want %s or %s", format, formatTable, formatYAML)
			}

			cfg := &cli.Config{
				Match:   cli.MatchConfig{Window: 50},
				Diff:    cli.DiffConfig{Tool: "builtin"},
				Logging: cli.LoggingConfig{Level: logLevel},
			}
			ctx, flush, err := setupLogging(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer flush()

			app, err := rejfix.New(cfg)
			if err != nil {
				return err
			}

			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			records, err := app.Inspect(ctx, path)
			if err != nil {
				return err
			}
			logging.FromContext(ctx).Debug("inspect finished", "records", len(records))

			out := cmd.OutOrStdout()
			if format == formatYAML {
				data, err := ui.RenderYAML(records)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			_, err = fmt.Fprintln(out, ui.HunkTable(records))
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table or yaml.")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error.")
	return cmd
}
