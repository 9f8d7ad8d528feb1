package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"commitment-reaper/internal/common/errors"
	"commitment-reaper/internal/models"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var live, ignoreLease bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Perform a single reaper pass and print the run report",
		Long: "run performs one pass against the configured account and prints the run report as JSON. " +
			"The pass is a dry run unless --live is given or cleanup.dry_run is false.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if live {
				cfg.Cleanup.DryRun = false
			}

			ctx := cmd.Context()
			a, err := wireApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if !ignoreLease {
				l, err := a.wireLease(ctx)
				if err != nil {
					return err
				}
				release, err := l.Acquire(ctx)
				if err != nil {
					if errors.HasCode(err, errors.ErrCodeLeaseHeld) {
						a.log.Warn("another run holds the lease, not running", nil)
					}
					return err
				}
				defer func() {
					if err := release(ctx); err != nil {
						a.log.WithError(err).Warn("failed to release run lease", nil)
					}
				}()
			}

			report := a.handler.Run(ctx, models.TriggerCLI)
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "delete deployments instead of simulating")
	cmd.Flags().BoolVar(&ignoreLease, "ignore-lease", false, "run even when the lease is enabled and held elsewhere")

	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
