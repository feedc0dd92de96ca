// Package chunker splits a seekable stream into fixed-size blocks for the
// File Share Service block protocol. Every block carries its MD5 digest and
// a zero-padded sequential id; the MD5 of the whole stream is accumulated
// while reading.
package chunker

import (
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/hashing"
)

// DefaultBlockSize is the largest block the File Share Service accepts.
const DefaultBlockSize = 4 * 1024 * 1024

// MaxBlocks is the number of ids that fit into the five digit block id.
const MaxBlocks = 99999

// BlockID returns the id of the n-th block (starting at 1).
func BlockID(n int) string {
	return fmt.Sprintf("%05d", n)
}

// Block is one chunk of the source stream. Data is only valid until the
// next call to Chunker.Next.
type Block struct {
	ID   string
	Data []byte
	MD5  [md5.Size]byte
}

// ContentMD5 returns the digest in the encoding used by the Content-MD5
// header.
func (b Block) ContentMD5() string {
	return base64.StdEncoding.EncodeToString(b.MD5[:])
}

// Chunker reads fixed-size blocks from a stream.
type Chunker struct {
	rd        *hashing.Reader
	buf       []byte
	length    int64
	blockSize int
	next      int
	done      bool
}

// New rewinds src to its start and returns a Chunker producing blocks of at
// most blockSize bytes. A blockSize <= 0 selects DefaultBlockSize.
func New(src io.ReadSeeker, blockSize int) (*Chunker, error) {
	if src == nil {
		return nil, errors.NewKind(errors.InvalidInput, "source stream is nil")
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	length, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.WithKind(errors.InvalidInput, errors.Wrap(err, "Seek"))
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, errors.WithKind(errors.InvalidInput, errors.Wrap(err, "Seek"))
	}

	c := &Chunker{
		rd:        hashing.NewReader(src, md5.New()),
		buf:       make([]byte, blockSize),
		length:    length,
		blockSize: blockSize,
		next:      1,
	}

	if c.ExpectedBlocks() > MaxBlocks {
		return nil, errors.KindErrorf(errors.InvalidInput,
			"stream of %d bytes needs %d blocks of %d bytes, at most %d are supported",
			length, c.ExpectedBlocks(), blockSize, MaxBlocks)
	}

	return c, nil
}

// Length returns the number of bytes in the stream.
func (c *Chunker) Length() int64 {
	return c.length
}

// ExpectedBlocks returns ceil(Length / blockSize).
func (c *Chunker) ExpectedBlocks() int {
	return int((c.length + int64(c.blockSize) - 1) / int64(c.blockSize))
}

// Next returns the next block. At the end of the stream io.EOF is returned.
func (c *Chunker) Next() (Block, error) {
	if c.done {
		return Block{}, io.EOF
	}

	n, err := io.ReadFull(c.rd, c.buf)
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	if err == io.EOF || n == 0 {
		c.done = true
		return Block{}, io.EOF
	}
	if err != nil {
		return Block{}, errors.WithKind(errors.InvalidInput, errors.Wrap(err, "ReadFull"))
	}

	b := Block{
		ID:   BlockID(c.next),
		Data: c.buf[:n],
		MD5:  md5.Sum(c.buf[:n]),
	}
	c.next++

	return b, nil
}

// Sum returns the MD5 digest of all data read so far. After Next returned
// io.EOF this is the digest of the whole stream.
func (c *Chunker) Sum() []byte {
	return c.rd.Sum(nil)
}
