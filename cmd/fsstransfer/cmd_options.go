package main

import (
	"text/tabwriter"

	"github.com/exchangesets/fsstransfer/internal/options"
	"github.com/spf13/cobra"
)

func newOptionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "List the extended options",
		Long: `
The "options" command lists every extended option with its help text. Options
are passed to any command as "-o namespace.name=value".

EXIT STATUS
===========

Exit status is 0.
`,
		DisableAutoGenTag: true,
		Args:              cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, h := range options.List() {
				if _, err := tw.Write([]byte("  " + h.Namespace + "." + h.Name + "\t" + h.Text + "\n")); err != nil {
					return err
				}
			}
			return tw.Flush()
		},
	}
}
