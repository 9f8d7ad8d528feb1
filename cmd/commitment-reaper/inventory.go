package main

import (
	"github.com/spf13/cobra"

	"commitment-reaper/internal/inventory"
)

func newInventoryCmd(opts *rootOptions) *cobra.Command {
	var (
		subscriptionID string
		expiringOnly   bool
	)

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List the OpenAI accounts the credential can see and their lapsed commitment plans",
		Long: "inventory walks subscriptions, resource groups and OpenAI accounts and reports the expired, " +
			"non-renewing commitment plans on each. It never deletes anything.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := wireApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := a.provider.Acquire(ctx)
			if err != nil {
				a.log.WithError(err).Error("token acquisition failed", nil)
				return err
			}

			report := inventory.Collect(ctx, a.managementClient(token), subscriptionID, a.log)
			if expiringOnly {
				report.Accounts = report.Expiring()
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().StringVar(&subscriptionID, "subscription", "", "only walk this subscription")
	cmd.Flags().BoolVar(&expiringOnly, "expiring-only", false, "only list accounts with lapsed plans")

	return cmd
}
