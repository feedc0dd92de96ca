// Package gs stores committed files in a Google Cloud Storage bucket.
package gs

import (
	"context"
	"io"
	"net/http"

	"github.com/exchangesets/fsstransfer/internal/assembler"
	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// Store is an artifact store in a GCS bucket.
type Store struct {
	client *storage.Client
	cfg    Config
}

// make sure that *Store implements assembler.ArtifactStore
var _ assembler.ArtifactStore = &Store{}

// Open returns a store for the bucket in cfg, authenticated with the
// default application credentials.
func Open(ctx context.Context, cfg Config, rt http.RoundTripper) (*Store, error) {
	debug.Log("open, bucket %v prefix %v", cfg.Bucket, cfg.Prefix)

	ts, err := google.DefaultTokenSource(ctx, storage.ScopeReadWrite)
	if err != nil {
		return nil, errors.Wrap(err, "DefaultTokenSource")
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: rt},
	}

	client, err := storage.NewClient(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.Wrap(err, "storage.NewClient")
	}

	return &Store{client: client, cfg: cfg}, nil
}

func (s *Store) objectName(batchID, fileName string) (string, error) {
	return assembler.ObjectName(s.cfg.Prefix, batchID, fileName)
}

// Put implements assembler.ArtifactStore.
func (s *Store) Put(ctx context.Context, batchID, fileName string, rd io.Reader, size int64) error {
	objName, err := s.objectName(batchID, fileName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.cfg.Bucket).Object(objName).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.ChunkSize = s.cfg.ChunkSize

	debug.Log("NewWriter(%v, %v, %v)", s.cfg.Bucket, objName, size)
	wbytes, err := io.Copy(w, rd)
	if err != nil {
		// cancelling the context aborts the upload
		cancel()
		_ = w.Close()
		return errors.Wrap(err, "Copy")
	}

	if err := w.Close(); err != nil {
		return errors.Wrap(err, "Close")
	}

	// sanity check
	if wbytes != size {
		return errors.Errorf("wrote %d bytes instead of the expected %d bytes", wbytes, size)
	}
	return nil
}

// Open implements assembler.ArtifactStore.
func (s *Store) Open(ctx context.Context, batchID, fileName string) (io.ReadCloser, int64, error) {
	objName, err := s.objectName(batchID, fileName)
	if err != nil {
		return nil, 0, err
	}

	r, err := s.client.Bucket(s.cfg.Bucket).Object(objName).NewReader(ctx)
	if err != nil {
		return nil, 0, errors.Wrap(err, "NewReader")
	}
	return r, r.Attrs.Size, nil
}

// IsNotExist returns true if the error is caused by a not existing file.
func (s *Store) IsNotExist(err error) bool {
	return errors.Is(err, storage.ErrObjectNotExist)
}

// Close closes the storage client.
func (s *Store) Close() error {
	return s.client.Close()
}
