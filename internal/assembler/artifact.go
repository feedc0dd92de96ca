package assembler

import (
	"context"
	"io"
)

// DefaultRoot is the directory or key prefix committed files are stored
// under.
const DefaultRoot = "/S100-ExchangeSets"

// ArtifactStore persists committed files. A file written with Put replaces
// any previous file of the same batch and name.
type ArtifactStore interface {
	// Put stores size bytes read from rd as fileName of batchID.
	Put(ctx context.Context, batchID, fileName string, rd io.Reader, size int64) error
	// Open returns a reader for fileName of batchID and its size.
	Open(ctx context.Context, batchID, fileName string) (io.ReadCloser, int64, error)
	// IsNotExist returns true if err was caused by a missing file.
	IsNotExist(err error) bool
}
