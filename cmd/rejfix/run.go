package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sokinpui/rejfix/cli"
	"github.com/sokinpui/rejfix/internal/tui"
	"github.com/sokinpui/rejfix/internal/ui"
	"github.com/sokinpui/rejfix/model"
	"github.com/sokinpui/rejfix/rejfix"
)

// execute runs the app, behind the spinner unless animation is disabled.
func execute(ctx context.Context, cfg *cli.Config) error {
	app, err := rejfix.New(cfg)
	if err != nil {
		return err
	}

	animate := !cfg.UI.NoAnimation
	ctx, flush, err := setupLogging(ctx, cfg, animate)
	if err != nil {
		return err
	}
	defer flush()

	if animate {
		return tui.Run(ctx, func(ctx context.Context) (model.Summary, error) {
			app.SetProgressCallback(tui.ProgressFromContext(ctx))
			return app.Execute(ctx)
		})
	}

	summary, err := app.Execute(ctx)
	if err != nil {
		return err
	}
	if cfg.Revert {
		if summary.Message != "" {
			ui.Info(summary.Message)
		}
		ui.PrintRevertSummary(summary.Reverted, summary.Failed)
		return nil
	}
	ui.PrintRunSummary(summary)
	return nil
}

func revertCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revert",
		Short: "Undo the files written by the last run",
		Long:  `Removes the patches and modified files the last run created and restores the ones it overwrote. Files changed since the run are left alone.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cli.Load(cmd.Flags(), *configPath)
			if err != nil {
				return err
			}
			cfg.Revert = true
			if err := cfg.Validate(); err != nil {
				return err
			}
			return execute(cmd.Context(), cfg)
		},
	}
	cmd.Flags().AddFlagSet(cli.Flags())
	return cmd
}
