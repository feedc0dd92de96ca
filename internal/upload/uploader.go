// Package upload sends files to the File Share Service as a sequence of
// fixed-size blocks followed by a single write-block-list commit.
package upload

import (
	"context"
	"crypto/md5"
	"io"

	"github.com/exchangesets/fsstransfer/internal/chunker"
	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/fss"
)

// ErrEmptySource is returned for a zero-length source if the Uploader is
// configured to reject empty files.
var ErrEmptySource = errors.NewKind(errors.InvalidInput, "source stream is empty")

// BlockClient is the part of the File Share Service API used for uploads.
type BlockClient interface {
	AddFile(ctx context.Context, batchID, fileName string, size int64, mimeType string, attrs fss.Attributes) error
	PutBlock(ctx context.Context, batchID, fileName, blockID string, data []byte, digest [md5.Size]byte) error
	WriteBlockList(ctx context.Context, batchID, fileName string, blockIDs []string) error
}

// ProgressFunc is called with the number of uploaded blocks and the number
// of blocks expected in total. It is called once with done == 0 before the
// first block is sent.
type ProgressFunc func(done, expected int)

// File describes the file record created before the blocks of a file are
// uploaded.
type File struct {
	Name       string
	MIMEType   string
	Attributes fss.Attributes
}

// Result describes a committed file.
type Result struct {
	FileName string
	Size     int64
	BlockIDs []string
	MD5      []byte
}

// Uploader uploads files block by block. It is safe for concurrent use, but
// the blocks of a single file are always sent sequentially.
type Uploader struct {
	client BlockClient
	cfg    Config
}

// New returns an Uploader sending blocks through client.
func New(client BlockClient, cfg Config) *Uploader {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = chunker.DefaultBlockSize
	}
	return &Uploader{client: client, cfg: cfg}
}

// Upload splits src into blocks, uploads them in order and commits the
// block list as fileName in the batch. On success the whole-file MD5 is
// recorded in handle. On failure handle is left unchanged.
func (u *Uploader) Upload(ctx context.Context, handle *BatchHandle, fileName string, src io.ReadSeeker, progress ProgressFunc) (Result, error) {
	return u.upload(ctx, handle, fileName, src, progress, nil)
}

// UploadFile creates the file record for f before uploading its blocks
// like Upload.
func (u *Uploader) UploadFile(ctx context.Context, handle *BatchHandle, f File, src io.ReadSeeker, progress ProgressFunc) (Result, error) {
	return u.upload(ctx, handle, f.Name, src, progress, func(length int64) error {
		return u.client.AddFile(ctx, handle.ID(), f.Name, length, f.MIMEType, f.Attributes)
	})
}

func (u *Uploader) upload(ctx context.Context, handle *BatchHandle, fileName string, src io.ReadSeeker, progress ProgressFunc, before func(length int64) error) (Result, error) {
	if progress == nil {
		progress = func(int, int) {}
	}

	chnk, err := chunker.New(src, u.cfg.BlockSize)
	if err != nil {
		return Result{}, err
	}

	if chnk.Length() == 0 && u.cfg.RejectEmpty {
		return Result{}, ErrEmptySource
	}

	if before != nil {
		if err := before(chnk.Length()); err != nil {
			return Result{}, err
		}
	}

	expected := chnk.ExpectedBlocks()
	debug.Log("uploading %v/%v: %d bytes in %d blocks", handle.ID(), fileName, chnk.Length(), expected)
	progress(0, expected)

	ids := make([]string, 0, expected)
	for {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}

		block, err := chnk.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, err
		}

		err = u.client.PutBlock(ctx, handle.ID(), fileName, block.ID, block.Data, block.MD5)
		if err != nil {
			debug.Log("block %v of %v/%v failed: %v", block.ID, handle.ID(), fileName, err)
			return Result{}, errors.WithKind(errors.TransferFailed, err)
		}

		ids = append(ids, block.ID)
		progress(len(ids), expected)
	}

	err = u.client.WriteBlockList(ctx, handle.ID(), fileName, ids)
	if err != nil {
		return Result{}, errors.WithKind(errors.CommitFailed, err)
	}

	sum := chnk.Sum()
	handle.record(fileName, sum)
	debug.Log("committed %v/%v with %d blocks", handle.ID(), fileName, len(ids))

	return Result{
		FileName: fileName,
		Size:     chnk.Length(),
		BlockIDs: ids,
		MD5:      sum,
	}, nil
}
