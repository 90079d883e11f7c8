package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "leasing",
		Short: "Showing scheduler for the leasing assistant",
		Long: "Books property showings against the agent's Outlook calendar, keeps the two in sync " +
			"and serves the dashboard API.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment; empty to skip")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newReconcileCmd(opts),
		newSeedCmd(opts),
	)
	return root
}
