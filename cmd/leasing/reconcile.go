package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/example/leasing-assistant/internal/application"
)

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass against Outlook and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

func runReconcile(ctx context.Context, opts *rootOptions, out io.Writer) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.reconcile.Tick(ctx)
	if err != nil {
		a.logger.Error("reconciliation failed", "error", err, "error_kind", application.ErrorKind(err))
		return err
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
