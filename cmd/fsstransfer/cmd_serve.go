package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/exchangesets/fsstransfer/internal/assembler"
	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/server"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var opts ServeOptions

	cmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "Run a self-contained File Share Service",
		Long: `
The "serve" command runs a File Share Service which accepts blocks, assembles
them into files on write-block-list requests and serves the committed files.
Committed files are kept in the store given with --store:

    /srv/files                        local directory
    s3:host/bucket/prefix             S3 compatible object storage
    azure:container:/prefix           Azure Blob Storage
    gs:bucket:/prefix                 Google Cloud Storage

Block sets which are not committed within assembler.block-ttl are removed by a
sweep, which runs every server.sweep-interval or when requested with
POST /admin/sweep.

EXIT STATUS
===========

Exit status is 0 if the server was stopped by a signal.
Exit status is 1 if there was any error.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, globalOptions)
		},
	}

	opts.AddFlags(cmd)
	return cmd
}

// ServeOptions collects all options for the serve command.
type ServeOptions struct {
	Listen string
	Store  string
}

func (opts *ServeOptions) AddFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&opts.Listen, "listen", "l", "localhost:8080", "listen on this `address:port`")
	f.StringVar(&opts.Store, "store", "", "`location` for committed files (default: "+assembler.DefaultRoot+")")
}

func runServe(ctx context.Context, opts ServeOptions, gopts GlobalOptions) error {
	store, err := openArtifactStore(ctx, opts.Store, gopts)
	if err != nil {
		return err
	}

	acfg := assembler.NewConfig()
	if err := gopts.extended.Extract("assembler").Apply("assembler", &acfg); err != nil {
		return err
	}

	scfg := server.NewConfig()
	if err := gopts.extended.Extract("server").Apply("server", &scfg); err != nil {
		return err
	}

	asm := assembler.New(assembler.NewMemoryBlockStore(), store, acfg)
	srv, err := server.New(asm, scfg)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		return errors.Fatalf("listen on %v failed: %v", opts.Listen, err)
	}

	if scfg.SweepInterval > 0 {
		go srv.RunSweeper(ctx, scfg.SweepInterval)
	}

	hs := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 30 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		debug.Log("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	Printf("serving on http://%v, block ttl %v\n", ln.Addr(), acfg.BlockTTL)
	err = hs.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.WithStack(err)
}
