// Package hashing feeds data that passes through a reader or writer into a
// hash function.
package hashing

import (
	"hash"
	"io"
)

// Reader hashes all data read from the underlying reader.
type Reader struct {
	r io.Reader
	h hash.Hash
}

// NewReader wraps r and feeds all data read into h.
func NewReader(r io.Reader, h hash.Hash) *Reader {
	return &Reader{r: r, h: h}
}

func (h *Reader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	// hash.Hash.Write never returns an error
	_, _ = h.h.Write(p[:n])
	return n, err
}

// Sum appends the hash of all data read so far to d.
func (h *Reader) Sum(d []byte) []byte {
	return h.h.Sum(d)
}
