package main

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of fsstransfer",
		Long: `
The "version" command prints the fsstransfer version together with the Go
release and the platform it was built for.

EXIT STATUS
===========

Exit status is 0.
`,
		DisableAutoGenTag: true,
		Args:              cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			v := version
			if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
				v = info.Main.Version
			}
			Printf("fsstransfer %s (%v, %v/%v)\n", v, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
