// Package assembler implements the receiving side of the block protocol:
// blocks are staged per file until a block list commits them, then they
// are concatenated into an artifact.
package assembler

import (
	"bytes"
	"context"
	"crypto/md5"
	"io"
	"sort"
	"time"

	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/hashing"
)

// ErrEmptyBlockList is returned by Commit for a block list without ids.
var ErrEmptyBlockList = errors.NewKind(errors.ValidationFailed, "block list is empty")

// Assembler stages blocks and assembles committed files.
type Assembler struct {
	blocks BlockStore
	store  ArtifactStore
	cfg    Config
	now    func() time.Time
}

// Artifact describes a committed file.
type Artifact struct {
	BatchID  string
	FileName string
	Size     int64
	MD5      []byte
}

// New returns an Assembler keeping blocks in blocks and writing committed
// files to store.
func New(blocks BlockStore, store ArtifactStore, cfg Config) *Assembler {
	if cfg.BlockTTL <= 0 {
		cfg.BlockTTL = NewConfig().BlockTTL
	}
	return &Assembler{
		blocks: blocks,
		store:  store,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Store returns the artifact store.
func (a *Assembler) Store() ArtifactStore {
	return a.store
}

// Pending returns the number of uncommitted block sets.
func (a *Assembler) Pending() int {
	return a.blocks.Len()
}

// PutBlock stages data as blockID of fileName. If digest is not nil, it must
// be the MD5 of data.
func (a *Assembler) PutBlock(batchID, fileName, blockID string, data []byte, digest []byte) error {
	if _, err := ObjectName("", batchID, fileName); err != nil {
		return err
	}
	if blockID == "" {
		return errors.NewKind(errors.ValidationFailed, "block id is empty")
	}

	if digest != nil {
		sum := md5.Sum(data)
		if !bytes.Equal(sum[:], digest) {
			return errors.KindErrorf(errors.DigestMismatch,
				"block %v of %v: content does not match Content-MD5", blockID, fileName)
		}
	}

	a.blocks.Put(BlockKey(batchID, fileName), blockID, data, a.now())
	return nil
}

// Commit assembles fileName from the staged blocks named in blockIDs. The
// blocks are concatenated in ascending lexical order of their ids,
// independent of the order in blockIDs. If any id is unknown, nothing is
// written and the staged blocks are kept for another attempt.
func (a *Assembler) Commit(ctx context.Context, batchID, fileName string, blockIDs []string) (Artifact, error) {
	if _, err := ObjectName("", batchID, fileName); err != nil {
		return Artifact{}, err
	}
	if len(blockIDs) == 0 {
		return Artifact{}, ErrEmptyBlockList
	}

	key := BlockKey(batchID, fileName)
	set, ok := a.blocks.Take(key)
	if !ok {
		return Artifact{}, errors.KindErrorf(errors.NoBlocksFound, "no blocks staged for %v", fileName)
	}

	ids := append([]string(nil), blockIDs...)
	sort.Strings(ids)

	readers := make([]io.Reader, 0, len(ids))
	var size int64
	for _, id := range ids {
		data, ok := set.Blocks[id]
		if !ok {
			a.blocks.Restore(key, set)
			return Artifact{}, errors.KindErrorf(errors.BlockNotFound, "block %v of %v not found", id, fileName)
		}
		readers = append(readers, bytes.NewReader(data))
		size += int64(len(data))
	}

	rd := hashing.NewReader(io.MultiReader(readers...), md5.New())
	err := a.store.Put(ctx, batchID, fileName, rd, size)
	if err != nil {
		a.blocks.Restore(key, set)
		return Artifact{}, errors.Wrap(err, "Put")
	}

	debug.Log("committed %v: %d blocks, %d bytes", key, len(ids), size)

	return Artifact{
		BatchID:  batchID,
		FileName: fileName,
		Size:     size,
		MD5:      rd.Sum(nil),
	}, nil
}

// Sweep removes all block sets that were not touched for longer than the
// configured TTL and returns their keys.
func (a *Assembler) Sweep() []string {
	removed := a.blocks.Sweep(a.now(), a.cfg.BlockTTL)
	if len(removed) > 0 {
		debug.Log("swept %d stale block sets", len(removed))
	}
	return removed
}
