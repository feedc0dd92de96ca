// Package retriever downloads the files of remote batches into a local
// workspace. Duplicate batches of the same product version are skipped,
// downloads run with a bounded concurrency and downloaded archives are
// extracted.
package retriever

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/extract"
	"github.com/exchangesets/fsstransfer/internal/fss"
	"github.com/exchangesets/fsstransfer/internal/hashing"
	"github.com/exchangesets/fsstransfer/internal/options"
	"github.com/exchangesets/fsstransfer/internal/sema"
	"golang.org/x/sync/errgroup"
)

// Downloader fetches a single file of a batch.
type Downloader interface {
	Download(ctx context.Context, batchID, fileName string, fn func(rd io.Reader, info fss.DownloadInfo) error) error
}

// Extractor unpacks a downloaded archive.
type Extractor interface {
	Extract(archivePath string) (extract.Report, error)
}

// Diagnostic is a problem that did not fail the retrieval.
type Diagnostic struct {
	Kind    errors.Kind
	Subject string
	Err     error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%v: %v: %v", d.Kind, d.Subject, d.Err)
}

// ManifestEntry describes one file that landed in the workspace.
type ManifestEntry struct {
	// Name is the file name without extension.
	Name        string
	BatchID     string
	File        string
	Size        int64
	Fingerprint uint64
}

// Result is returned by Retrieve.
type Result struct {
	// NothingToDo is set if no descriptors were passed.
	NothingToDo bool
	Selected    []fss.BatchDescriptor
	Dropped     []string
	Manifest    []ManifestEntry
	Extracted   []extract.Report
	Diagnostics []Diagnostic
	Downloads   int
}

// Has returns true if a file with the given name without extension was
// retrieved.
func (r *Result) Has(name string) bool {
	for _, e := range r.Manifest {
		if e.Name == name {
			return true
		}
	}
	return false
}

// Retriever downloads batches into a workspace directory.
type Retriever struct {
	dl          Downloader
	workspace   string
	concurrency int
	extractor   Extractor
	diagnostics []Diagnostic
}

// New returns a Retriever writing to workspace. The concurrency limit is
// taken from the retriever.concurrency option; if it is unusable the
// default is used and reported as a diagnostic of every Result.
func New(dl Downloader, workspace string, opts options.Options) *Retriever {
	r := &Retriever{
		dl:        dl,
		workspace: workspace,
		extractor: extract.New(extract.NewConfig()),
	}

	n, defaulted := ConcurrencyFromOptions(opts)
	r.concurrency = n
	if defaulted {
		debug.Log("retriever.concurrency not set or invalid, using %d", n)
		r.diagnostics = append(r.diagnostics, Diagnostic{
			Kind:    errors.ConfigurationDefaulted,
			Subject: "retriever.concurrency",
			Err:     errors.Errorf("using default concurrency %d", n),
		})
	}
	return r
}

// WithExtractor replaces the archive extractor. A nil extractor disables
// extraction.
func (r *Retriever) WithExtractor(e Extractor) *Retriever {
	r.extractor = e
	return r
}

// Concurrency returns the maximum number of parallel downloads.
func (r *Retriever) Concurrency() int {
	return r.concurrency
}

type job struct {
	batchID string
	file    fss.FileDescriptor
	path    string
}

func (r *Retriever) targetPath(fileName string) (string, error) {
	if fileName == "" || fileName == "." || fileName == ".." ||
		strings.ContainsAny(fileName, `/\`) || filepath.IsAbs(fileName) {
		return "", errors.KindErrorf(errors.InvalidInput, "invalid file name %q", fileName)
	}
	return filepath.Join(r.workspace, fileName), nil
}

// Retrieve downloads the files of the latest descriptor of every product
// version. The first failed download fails the whole call with
// TransferFailed; files already written are left in place. Problems with
// archives are reported in Result.Diagnostics.
func (r *Retriever) Retrieve(ctx context.Context, descriptors []fss.BatchDescriptor) (*Result, error) {
	res := &Result{
		Diagnostics: append([]Diagnostic(nil), r.diagnostics...),
	}

	if len(descriptors) == 0 {
		debug.Log("no descriptors, nothing to do")
		res.NothingToDo = true
		return res, nil
	}

	res.Selected, res.Dropped = Select(descriptors)
	debug.Log("selected %d of %d descriptors", len(res.Selected), len(descriptors))

	if err := os.MkdirAll(r.workspace, 0700); err != nil {
		return res, errors.WithStack(err)
	}

	var jobs []job
	for _, d := range res.Selected {
		for _, f := range d.Files {
			path, err := r.targetPath(f.Filename)
			if err != nil {
				return res, err
			}

			if f.Size() == 0 {
				if err := createEmpty(path); err != nil {
					return res, err
				}
				res.addManifest(d.BatchID, f.Filename, 0, xxhash.Sum64(nil))
				continue
			}
			jobs = append(jobs, job{batchID: d.BatchID, file: f, path: path})
		}
	}

	err := r.download(ctx, jobs, res)
	if err != nil {
		return res, err
	}

	sort.Slice(res.Manifest, func(i, j int) bool {
		return res.Manifest[i].File < res.Manifest[j].File
	})

	r.extractArchives(res)
	return res, nil
}

func createEmpty(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(f.Close())
}

func (res *Result) addManifest(batchID, fileName string, size int64, fingerprint uint64) {
	res.Manifest = append(res.Manifest, ManifestEntry{
		Name:        strings.TrimSuffix(fileName, filepath.Ext(fileName)),
		BatchID:     batchID,
		File:        fileName,
		Size:        size,
		Fingerprint: fingerprint,
	})
}

func (r *Retriever) download(ctx context.Context, jobs []job, res *Result) error {
	sem, err := sema.New(uint(r.concurrency))
	if err != nil {
		return err
	}

	var m sync.Mutex
	wg, ctx := errgroup.WithContext(ctx)

	for _, j := range jobs {
		wg.Go(func() error {
			if err := sem.GetToken(ctx); err != nil {
				return err
			}
			defer sem.ReleaseToken()

			size, fingerprint, err := r.downloadFile(ctx, j)
			if err != nil {
				debug.Log("download %v/%v failed: %v", j.batchID, j.file.Filename, err)
				return errors.WithKind(errors.TransferFailed, err)
			}

			m.Lock()
			res.Downloads++
			res.addManifest(j.batchID, j.file.Filename, size, fingerprint)
			m.Unlock()
			return nil
		})
	}

	return wg.Wait()
}

// downloadFile writes the file to its workspace path, replacing any previous
// content. The callback may run again if the download is retried.
func (r *Retriever) downloadFile(ctx context.Context, j job) (size int64, fingerprint uint64, err error) {
	err = r.dl.Download(ctx, j.batchID, j.file.Filename, func(rd io.Reader, _ fss.DownloadInfo) error {
		f, err := os.Create(j.path)
		if err != nil {
			return errors.WithStack(err)
		}

		h := xxhash.New()
		n, err := io.Copy(hashing.NewWriter(f, h), rd)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Wrap(err, "write "+j.file.Filename)
		}

		size, fingerprint = n, h.Sum64()
		return nil
	})
	return size, fingerprint, err
}

func (r *Retriever) extractArchives(res *Result) {
	if r.extractor == nil {
		return
	}

	for _, e := range res.Manifest {
		if !extract.IsArchive(e.File) || e.Size == 0 {
			continue
		}

		report, err := r.extractor.Extract(filepath.Join(r.workspace, e.File))
		if err != nil {
			debug.Log("extracting %v failed: %v", e.File, err)
			kind := errors.KindOf(err)
			if kind == errors.Unclassified {
				kind = errors.ExtractionFailed
			}
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Kind: kind, Subject: e.File, Err: err})
			continue
		}
		res.Extracted = append(res.Extracted, report)
	}
}
