package main

import (
	"context"

	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status batchID",
		Short: "Print the status of a batch",
		Long: `
The "status" command prints the commit status of a batch.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), globalOptions, args)
		},
	}
	return cmd
}

func runStatus(ctx context.Context, gopts GlobalOptions, args []string) error {
	if len(args) != 1 {
		return errors.Fatal("the status command expects exactly one batch id")
	}

	client, err := OpenClient(ctx, gopts)
	if err != nil {
		return err
	}

	status, err := client.BatchStatus(ctx, args[0])
	if err != nil {
		return err
	}

	Printf("%v %v\n", args[0], status)
	return nil
}
