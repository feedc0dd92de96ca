package main

import (
	"context"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/fss"
	"github.com/exchangesets/fsstransfer/internal/upload"
	"github.com/spf13/cobra"
)

func newUploadCommand() *cobra.Command {
	var opts UploadOptions

	cmd := &cobra.Command{
		Use:   "upload [flags] FILE [FILE...]",
		Short: "Upload files into a new batch",
		Long: `
The "upload" command creates a new batch, uploads the given files block by
block, writes the block list of every file and commits the batch. The MD5
digest of every committed file is printed.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
Exit status is 2 if the input was invalid.
Exit status is 4 if a block upload or a commit failed.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd.Context(), opts, globalOptions, args)
		},
	}

	opts.AddFlags(cmd)
	return cmd
}

// UploadOptions collects all options for the upload command.
type UploadOptions struct {
	BusinessUnit   string
	Attributes     []string
	FileAttributes []string
	MIMEType       string
	Expiry         time.Duration
	NoCommit       bool
	Wait           time.Duration
}

func (opts *UploadOptions) AddFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&opts.BusinessUnit, "business-unit", "b", "", "business `unit` owning the batch (required)")
	f.StringArrayVarP(&opts.Attributes, "attribute", "a", nil, "add batch attribute (`key=value`, can be specified multiple times)")
	f.StringArrayVar(&opts.FileAttributes, "file-attribute", nil, "add attribute to every file (`key=value`, can be specified multiple times)")
	f.StringVar(&opts.MIMEType, "mime-type", "", "MIME `type` of the files (default: derived from the file extension)")
	f.DurationVar(&opts.Expiry, "expiry", 0, "let the batch expire after `duration` (default: never)")
	f.BoolVar(&opts.NoCommit, "no-commit", false, "upload the files but do not commit the batch")
	f.DurationVar(&opts.Wait, "wait", time.Minute, "wait up to `duration` for the batch to become committed, 0 to not wait")
}

func mimeType(opts UploadOptions, name string) string {
	if opts.MIMEType != "" {
		return opts.MIMEType
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func runUpload(ctx context.Context, opts UploadOptions, gopts GlobalOptions, args []string) error {
	if len(args) == 0 {
		return errors.Fatal("nothing to upload, please specify at least one file")
	}
	if opts.BusinessUnit == "" {
		return errors.Fatal("please specify the business unit with --business-unit")
	}

	batchAttrs, err := parseKeyValues(opts.Attributes)
	if err != nil {
		return err
	}
	fileAttrs, err := parseKeyValues(opts.FileAttributes)
	if err != nil {
		return err
	}

	ucfg := upload.NewConfig()
	if err := gopts.extended.Extract("upload").Apply("upload", &ucfg); err != nil {
		return err
	}

	client, err := OpenClient(ctx, gopts)
	if err != nil {
		return err
	}

	// all requests of this run share one correlation id
	ctx = fss.WithCorrelationID(ctx, fss.NewCorrelationID())

	req := fss.CreateBatchRequest{
		BusinessUnit: opts.BusinessUnit,
		Attributes:   batchAttrs,
	}
	if opts.Expiry > 0 {
		expiry := time.Now().Add(opts.Expiry).UTC()
		req.ExpiryDate = &expiry
	}

	batchID, err := client.CreateBatch(ctx, req)
	if err != nil {
		return err
	}
	Verbosef("created batch %v\n", batchID)

	handle := upload.NewBatchHandle(batchID)
	up := upload.New(client, ucfg)

	for _, name := range args {
		res, err := uploadFile(ctx, up, handle, name, upload.File{
			Name:       filepath.Base(name),
			MIMEType:   mimeType(opts, name),
			Attributes: fileAttrs,
		}, gopts.verbosity > 0)
		if err != nil {
			return err
		}
		Verbosef("%v: %d bytes in %d blocks\n", res.FileName, res.Size, len(res.BlockIDs))
	}

	if opts.NoCommit {
		Printf("batch %v uploaded, not committed\n", batchID)
		printDigests(handle)
		return nil
	}

	if err := client.CommitBatch(ctx, batchID); err != nil {
		return errors.WithKind(errors.CommitFailed, err)
	}

	if opts.Wait > 0 {
		if err := waitCommitted(ctx, client, batchID, opts.Wait); err != nil {
			return err
		}
	}

	Printf("batch %v committed\n", batchID)
	printDigests(handle)
	return nil
}

func uploadFile(ctx context.Context, up *upload.Uploader, handle *upload.BatchHandle, path string, f upload.File, showProgress bool) (upload.Result, error) {
	src, err := os.Open(path)
	if err != nil {
		return upload.Result{}, errors.WithKind(errors.InvalidInput, errors.WithStack(err))
	}
	defer func() {
		_ = src.Close()
	}()

	debug.Log("uploading %v as %v (%v)", path, f.Name, f.MIMEType)
	return up.UploadFile(ctx, handle, f, src, newUploadProgress(showProgress, f.Name))
}

func printDigests(handle *upload.BatchHandle) {
	for _, name := range handle.Files() {
		Printf("  %v  %v\n", handle.ContentMD5(name), name)
	}
}

type statusClient interface {
	BatchStatus(ctx context.Context, batchID string) (string, error)
}

// waitCommitted polls the status of the batch until it is committed, the
// commit failed or timeout expired.
func waitCommitted(ctx context.Context, client statusClient, batchID string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(waitInterval)
	defer ticker.Stop()

	for {
		status, err := client.BatchStatus(ctx, batchID)
		if err != nil {
			return err
		}
		debug.Log("batch %v has status %v", batchID, status)

		switch status {
		case fss.StatusCommitted:
			return nil
		case fss.StatusFailed:
			return errors.KindErrorf(errors.CommitFailed, "commit of batch %v failed", batchID)
		}

		select {
		case <-ctx.Done():
			return errors.KindErrorf(errors.CommitFailed, "batch %v not committed within %v, last status %v", batchID, timeout, status)
		case <-ticker.C:
		}
	}
}

var waitInterval = time.Second
