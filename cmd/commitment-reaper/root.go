package main

import (
	"github.com/spf13/cobra"

	"commitment-reaper/internal/common/config"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "commitment-reaper",
		Short: "Remove provisioned deployments from Azure OpenAI accounts whose commitment plan lapsed",
		Long: "commitment-reaper finds expired commitment plans without auto-renew on an Azure OpenAI account " +
			"and removes the account's ProvisionedManaged deployments. Runs are dry-run unless configured otherwise.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a config file (default: configs/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(opts),
		newServeCmd(opts),
		newInventoryCmd(opts),
	)

	return rootCmd
}

func (o *rootOptions) load() (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadFromFile(o.configPath)
	}
	return config.Load()
}
