package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"
)

func init() {
	// set GOMAXPROCS from the cgroup quota without logging
	_, _ = maxprocs.Set()
}

// ErrDiagnostics is returned by commands which completed but reported
// problems that did not fail them.
var ErrDiagnostics = errors.New("completed with diagnostics")

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fsstransfer",
		Short: "Upload and retrieve files of the File Share Service",
		Long: `
fsstransfer moves files into and out of a File Share Service. Files are
uploaded in fixed-size blocks and committed with a block list, batches are
retrieved into a local workspace and their archives are extracted.

The "serve" command runs a self-contained service for tests and local
development.
`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		DisableAutoGenTag: true,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return globalOptions.PreRun()
		},
	}

	globalOptions.AddFlags(cmd.PersistentFlags())

	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(
		newOptionsCommand(),
		newRetrieveCommand(),
		newServeCommand(),
		newStatusCommand(),
		newUploadCommand(),
		newVersionCommand(),
	)

	registerProfiling(cmd)

	return cmd
}

func main() {
	// libraries that log through the standard logger are only shown when
	// the command fails
	var libLog bytes.Buffer
	log.SetOutput(&libLog)

	debug.Log("fsstransfer %s, %v %v/%v, args %q",
		version, runtime.Version(), runtime.GOOS, runtime.GOARCH, os.Args)

	ctx := createGlobalContext()
	err := newRootCommand().ExecuteContext(ctx)
	if err == nil {
		err = ctx.Err()
	}

	if msg := errorMessage(err, libLog.String()); msg != "" {
		Warnf("%s\n", msg)
	}
	Exit(exitCode(err))
}

// errorMessage formats err for the terminal. Fatal errors are printed
// without a stack trace.
func errorMessage(err error, libLog string) string {
	switch {
	case err == nil:
		return ""
	case err == ErrDiagnostics:
		return "Warning: " + err.Error()
	case errors.IsFatal(err):
		return err.Error()
	}

	msg := fmt.Sprintf("%+v", err)
	if libLog = strings.TrimSpace(libLog); libLog != "" {
		msg += "\nmessages logged by libraries:\n" + libLog
	}
	return msg
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case err == ErrDiagnostics:
		return 3
	case errors.Is(err, context.Canceled):
		return 130
	}

	switch errors.KindOf(err) {
	case errors.InvalidInput, errors.ValidationFailed:
		return 2
	case errors.TransferFailed, errors.CommitFailed:
		return 4
	case errors.ExtractionFailed:
		return 5
	}
	return 1
}
