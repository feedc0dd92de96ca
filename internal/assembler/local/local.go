// Package local stores committed files in a directory on the local
// filesystem.
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/exchangesets/fsstransfer/internal/assembler"
	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"
)

// Store is an artifact store in a local directory.
type Store struct {
	root string
}

// ensure statically that *Store implements assembler.ArtifactStore.
var _ assembler.ArtifactStore = &Store{}

// Open returns a store below root. An empty root selects
// assembler.DefaultRoot. The directory is created when the first file is
// written.
func Open(root string) *Store {
	if root == "" {
		root = assembler.DefaultRoot
	}
	debug.Log("open local artifact store at %v", root)
	return &Store{root: root}
}

// Root returns the base directory.
func (s *Store) Root() string {
	return s.root
}

// Filename returns the path of fileName in batchID.
func (s *Store) Filename(batchID, fileName string) (string, error) {
	if err := assembler.ValidName(batchID); err != nil {
		return "", err
	}
	if err := assembler.ValidName(fileName); err != nil {
		return "", err
	}
	return filepath.Join(s.root, batchID, fileName), nil
}

// Put writes the file to a temporary name first and renames it afterwards,
// so readers never see a partial file.
func (s *Store) Put(_ context.Context, batchID, fileName string, rd io.Reader, size int64) (err error) {
	finalname, err := s.Filename(batchID, fileName)
	if err != nil {
		return err
	}
	dir := filepath.Dir(finalname)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.WithStack(err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(finalname)+"-tmp-")
	if err != nil {
		return errors.WithStack(err)
	}

	defer func(f *os.File) {
		if err != nil {
			_ = f.Close() // Double Close is harmless.
			_ = os.Remove(f.Name())
		}
	}(f)

	wbytes, err := io.Copy(f, rd)
	if err != nil {
		return errors.WithStack(err)
	}
	if wbytes != size {
		return errors.Errorf("wrote %d bytes instead of the expected %d bytes", wbytes, size)
	}

	// Ignore error if filesystem does not support fsync.
	err = f.Sync()
	if err != nil && !errors.Is(err, syscall.ENOTSUP) && !errors.Is(err, syscall.EINVAL) {
		return errors.WithStack(err)
	}

	// Close, then rename. Windows doesn't like the reverse order.
	if err = f.Close(); err != nil {
		return errors.WithStack(err)
	}
	if err = os.Rename(f.Name(), finalname); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// Open implements assembler.ArtifactStore.
func (s *Store) Open(_ context.Context, batchID, fileName string) (io.ReadCloser, int64, error) {
	name, err := s.Filename(batchID, fileName)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, errors.WithStack(err)
	}

	return f, fi.Size(), nil
}

// IsNotExist implements assembler.ArtifactStore.
func (s *Store) IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
