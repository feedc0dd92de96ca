// Package extract unpacks zip archives below the directory they were
// downloaded to. Entries that would escape the destination are skipped.
package extract

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"

	"github.com/klauspost/compress/zip"
	"golang.org/x/text/unicode/norm"
)

// IsArchive returns true for file names the Extractor can handle.
func IsArchive(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}

// Destination returns the directory an archive is extracted to: its own
// directory joined with its name without extension.
func Destination(archivePath string) string {
	base := filepath.Base(archivePath)
	return filepath.Join(filepath.Dir(archivePath), strings.TrimSuffix(base, filepath.Ext(base)))
}

// Skipped is an entry that was not extracted.
type Skipped struct {
	Name   string
	Reason string
}

// Report summarizes an extraction.
type Report struct {
	Archive     string
	Destination string
	Files       int
	Dirs        int
	Bytes       int64
	Skipped     []Skipped
}

// Extractor unpacks archives within the configured limits.
type Extractor struct {
	cfg Config
}

// New returns an Extractor. Limits <= 0 select the defaults.
func New(cfg Config) *Extractor {
	def := NewConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.MaxTotalSize <= 0 {
		cfg.MaxTotalSize = def.MaxTotalSize
	}
	return &Extractor{cfg: cfg}
}

// entryPath maps the name of an archive entry to a slash separated path
// relative to the destination. A non-empty reason means the entry must be
// skipped.
func entryPath(name string) (rel string, isDir bool, reason string) {
	name = norm.NFC.String(name)
	if name == "" {
		return "", false, "empty name"
	}

	// backslashes are separators in archives created on Windows
	name = strings.ReplaceAll(name, `\`, "/")
	isDir = strings.HasSuffix(name, "/")

	if strings.HasPrefix(name, "/") || hasVolumeName(name) {
		return "", isDir, "absolute path"
	}

	rel = path.Clean(name)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", isDir, "path escapes destination"
	}
	if rel == "." {
		return "", isDir, "empty name"
	}
	return rel, isDir, ""
}

// hasVolumeName detects names like "C:/x" independent of the platform.
func hasVolumeName(name string) bool {
	return len(name) >= 2 && name[1] == ':' &&
		(('a' <= name[0] && name[0] <= 'z') || ('A' <= name[0] && name[0] <= 'Z'))
}

// Extract unpacks archivePath into Destination(archivePath) and removes the
// archive afterwards. Unsafe entries are skipped and listed in the report.
// A corrupt archive or one exceeding the limits fails with
// ExtractionFailed; in that case the archive is kept.
func (e *Extractor) Extract(archivePath string) (Report, error) {
	dest := Destination(archivePath)
	report := Report{Archive: archivePath, Destination: dest}

	zr, err := zip.OpenReader(archivePath)
	if zr == nil {
		return report, errors.WithKind(errors.ExtractionFailed, errors.Wrap(err, "open archive"))
	}
	if err != nil {
		// insecure entry names are handled below
		debug.Log("archive %v: %v", archivePath, err)
	}
	defer func() { _ = zr.Close() }()

	if len(zr.File) > e.cfg.MaxEntries {
		return report, errors.KindErrorf(errors.ExtractionFailed,
			"archive %v has %d entries, limit is %d", filepath.Base(archivePath), len(zr.File), e.cfg.MaxEntries)
	}

	var declared uint64
	for _, f := range zr.File {
		declared += f.UncompressedSize64
	}
	if declared > uint64(e.cfg.MaxTotalSize) {
		return report, errors.KindErrorf(errors.ExtractionFailed,
			"archive %v expands to %d bytes, limit is %d", filepath.Base(archivePath), declared, e.cfg.MaxTotalSize)
	}

	if err := os.MkdirAll(dest, 0700); err != nil {
		return report, errors.WithKind(errors.ExtractionFailed, errors.WithStack(err))
	}

	for _, f := range zr.File {
		rel, isDir, reason := entryPath(f.Name)
		if reason != "" {
			debug.Log("skipping entry %q of %v: %v", f.Name, archivePath, reason)
			report.Skipped = append(report.Skipped, Skipped{Name: f.Name, Reason: reason})
			continue
		}

		target := filepath.Join(dest, filepath.FromSlash(rel))

		if isDir || f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0700); err != nil {
				return report, errors.WithKind(errors.ExtractionFailed, errors.WithStack(err))
			}
			report.Dirs++
			continue
		}

		n, err := e.extractFile(f, target, e.cfg.MaxTotalSize-report.Bytes)
		report.Bytes += n
		if err != nil {
			return report, errors.WithKind(errors.ExtractionFailed, err)
		}
		report.Files++
	}

	if err := os.Remove(archivePath); err != nil {
		return report, errors.WithKind(errors.ExtractionFailed, errors.WithStack(err))
	}

	debug.Log("extracted %v: %d files, %d dirs, %d bytes, %d skipped",
		archivePath, report.Files, report.Dirs, report.Bytes, len(report.Skipped))
	return report, nil
}

// extractFile writes f to target. At most remaining bytes are written, the
// declared size of an entry is not trusted.
func (e *Extractor) extractFile(f *zip.File, target string, remaining int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return 0, errors.WithStack(err)
	}

	rc, err := f.Open()
	if err != nil {
		return 0, errors.Wrapf(err, "open entry %v", f.Name)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	n, err := io.Copy(out, io.LimitReader(rc, remaining+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, errors.Wrapf(err, "extract entry %v", f.Name)
	}
	if n > remaining {
		return n, errors.Errorf("archive expands to more than %d bytes", e.cfg.MaxTotalSize)
	}
	return n, nil
}
