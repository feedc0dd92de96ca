package main

import (
	"context"
	"os"

	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/extract"
	"github.com/exchangesets/fsstransfer/internal/fss"
	"github.com/exchangesets/fsstransfer/internal/retriever"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRetrieveCommand() *cobra.Command {
	var opts RetrieveOptions

	cmd := &cobra.Command{
		Use:   "retrieve [flags]",
		Short: "Download batches into the workspace",
		Long: `
The "retrieve" command downloads the files of batches into the workspace
directory. The batches are either read from a descriptor file (YAML or JSON,
as returned by a search) or found with a search for the given attributes.

Of several batches for the same product, edition and update only the most
recently published one is downloaded. Downloaded zip archives are extracted
into a directory named after the archive and removed afterwards.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
Exit status is 3 if an archive could not be extracted.
Exit status is 4 if a download failed.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRetrieve(cmd.Context(), opts, globalOptions)
		},
	}

	opts.AddFlags(cmd)
	return cmd
}

// RetrieveOptions collects all options for the retrieve command.
type RetrieveOptions struct {
	Descriptors string
	Filter      []string
	Manifest    string
	NoExtract   bool
}

func (opts *RetrieveOptions) AddFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&opts.Descriptors, "descriptors", "d", "", "read batch descriptors from `file` instead of searching")
	f.StringArrayVarP(&opts.Filter, "filter", "f", nil, "search for batches with attribute (`key=value`, can be specified multiple times)")
	f.StringVar(&opts.Manifest, "manifest", "", "write the list of retrieved files to `file`")
	f.BoolVar(&opts.NoExtract, "no-extract", false, "do not extract downloaded archives")
}

// descriptorFile is the document read with --descriptors. Both a bare list
// and a search response are accepted.
type descriptorFile struct {
	Entries []fss.BatchDescriptor `yaml:"entries"`
}

func loadDescriptors(filename string) ([]fss.BatchDescriptor, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Fatalf("unable to read descriptors: %v", err)
	}

	var list []fss.BatchDescriptor
	if err := yaml.Unmarshal(buf, &list); err == nil {
		return list, nil
	}

	var doc descriptorFile
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return nil, errors.WithKind(errors.InvalidInput, errors.Wrapf(err, "parse %v", filename))
	}
	return doc.Entries, nil
}

type manifestFile struct {
	Files []manifestEntry `yaml:"files"`
}

type manifestEntry struct {
	Name        string `yaml:"name"`
	BatchID     string `yaml:"batchId"`
	File        string `yaml:"file"`
	Size        int64  `yaml:"size"`
	Fingerprint string `yaml:"xxhash"`
}

func writeManifest(filename string, res *retriever.Result) error {
	var doc manifestFile
	for _, e := range res.Manifest {
		doc.Files = append(doc.Files, manifestEntry{
			Name:        e.Name,
			BatchID:     e.BatchID,
			File:        e.File,
			Size:        e.Size,
			Fingerprint: formatFingerprint(e.Fingerprint),
		})
	}

	buf, err := yaml.Marshal(doc)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(filename, buf, 0644))
}

func runRetrieve(ctx context.Context, opts RetrieveOptions, gopts GlobalOptions) error {
	if gopts.Workspace == "" {
		return errors.Fatal("please specify the workspace directory with --workspace or $FSS_WORKSPACE")
	}

	client, err := OpenClient(ctx, gopts)
	if err != nil {
		return err
	}
	ctx = fss.WithCorrelationID(ctx, fss.NewCorrelationID())

	var descriptors []fss.BatchDescriptor
	if opts.Descriptors != "" {
		descriptors, err = loadDescriptors(opts.Descriptors)
	} else {
		descriptors, err = search(ctx, client, opts.Filter)
	}
	if err != nil {
		return err
	}

	ecfg := extract.NewConfig()
	if err := gopts.extended.Extract("extract").Apply("extract", &ecfg); err != nil {
		return err
	}

	r := retriever.New(client, gopts.Workspace, gopts.extended)
	if opts.NoExtract {
		r.WithExtractor(nil)
	} else {
		r.WithExtractor(extract.New(ecfg))
	}

	res, err := r.Retrieve(ctx, descriptors)
	if err != nil {
		return err
	}

	if res.NothingToDo {
		Printf("no batches found, nothing to do\n")
		return nil
	}

	for _, id := range res.Dropped {
		Verbosef("skipped batch %v\n", id)
	}
	for _, e := range res.Manifest {
		Verbosef("  %v  %10s  %v\n", formatFingerprint(e.Fingerprint), formatBytes(uint64(e.Size)), e.File)
	}
	for _, rep := range res.Extracted {
		Verbosef("extracted %v: %d files, %d directories, %v\n", rep.Archive, rep.Files, rep.Dirs, formatBytes(uint64(rep.Bytes)))
		for _, s := range rep.Skipped {
			Warnf("skipped entry %q of %v: %v\n", s.Name, rep.Archive, s.Reason)
		}
	}

	Printf("retrieved %d files of %d batches into %v (%d downloads)\n",
		len(res.Manifest), len(res.Selected), gopts.Workspace, res.Downloads)

	if opts.Manifest != "" {
		if err := writeManifest(opts.Manifest, res); err != nil {
			return err
		}
	}

	failed := false
	for _, d := range res.Diagnostics {
		Warnf("%v\n", d)
		if d.Kind != errors.ConfigurationDefaulted {
			failed = true
		}
	}
	if failed {
		return ErrDiagnostics
	}
	return nil
}

type searchClient interface {
	Search(ctx context.Context, filter map[string]string) ([]fss.BatchDescriptor, error)
}

func search(ctx context.Context, client searchClient, filter []string) ([]fss.BatchDescriptor, error) {
	attrs, err := parseKeyValues(filter)
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, errors.Fatal("please specify --descriptors or at least one --filter")
	}

	query := make(map[string]string, len(attrs))
	for _, a := range attrs {
		query[a.Key] = a.Value
	}
	return client.Search(ctx, query)
}
