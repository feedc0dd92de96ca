package hashing

import (
	"hash"
	"io"
)

// Writer transparently hashes all data while writing it to the underlying writer.
type Writer struct {
	w  io.Writer
	hs []hash.Hash
}

// NewWriter wraps the writer w and feeds all data written to every hash in hs.
func NewWriter(w io.Writer, hs ...hash.Hash) *Writer {
	return &Writer{w: w, hs: hs}
}

// Write wraps the write method of the underlying writer and also hashes all data.
func (h *Writer) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	for _, hh := range h.hs {
		_, _ = hh.Write(p[:n])
	}
	return n, err
}

// Sum returns the hash of all data written so far, computed by the i-th hash.
func (h *Writer) Sum(i int, d []byte) []byte {
	return h.hs[i].Sum(d)
}
