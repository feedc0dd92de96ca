package assembler

import (
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// BlockKey returns the key of the block set of fileName in batchID.
func BlockKey(batchID, fileName string) string {
	return batchID + ":" + fileName
}

// BlockSet holds the staged blocks of one file, keyed by block id.
type BlockSet struct {
	Blocks  map[string][]byte
	Touched time.Time
}

// Size returns the sum of the length of all blocks.
func (s BlockSet) Size() (n int64) {
	for _, b := range s.Blocks {
		n += int64(len(b))
	}
	return n
}

// BlockStore keeps block sets until they are committed or swept. All
// operations on a single key are atomic.
type BlockStore interface {
	// Put stores data as blockID in the set for key, creating the set if
	// necessary. An existing block with the same id is replaced.
	Put(key, blockID string, data []byte, now time.Time)
	// Take removes the set for key and returns it.
	Take(key string) (BlockSet, bool)
	// Restore puts a set returned by Take back. Blocks staged for key in the
	// meantime take precedence.
	Restore(key string, set BlockSet)
	// Sweep removes all sets not touched since now-ttl and returns their
	// keys, sorted.
	Sweep(now time.Time, ttl time.Duration) []string
	// Len returns the number of block sets.
	Len() int
}

// MemoryBlockStore is a BlockStore held in memory.
type MemoryBlockStore struct {
	sets *xsync.MapOf[string, BlockSet]
}

// NewMemoryBlockStore returns an empty MemoryBlockStore.
func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{
		sets: xsync.NewMapOf[string, BlockSet](),
	}
}

var _ BlockStore = &MemoryBlockStore{}

// Put implements BlockStore.
func (s *MemoryBlockStore) Put(key, blockID string, data []byte, now time.Time) {
	s.sets.Compute(key, func(old BlockSet, loaded bool) (BlockSet, bool) {
		if !loaded {
			old = BlockSet{Blocks: make(map[string][]byte)}
		}
		old.Blocks[blockID] = data
		old.Touched = now
		return old, false
	})
}

// Take implements BlockStore.
func (s *MemoryBlockStore) Take(key string) (BlockSet, bool) {
	return s.sets.LoadAndDelete(key)
}

// Restore implements BlockStore.
func (s *MemoryBlockStore) Restore(key string, set BlockSet) {
	s.sets.Compute(key, func(old BlockSet, loaded bool) (BlockSet, bool) {
		if !loaded {
			return set, false
		}
		for id, data := range set.Blocks {
			if _, ok := old.Blocks[id]; !ok {
				old.Blocks[id] = data
			}
		}
		return old, false
	})
}

// Sweep implements BlockStore.
func (s *MemoryBlockStore) Sweep(now time.Time, ttl time.Duration) []string {
	deadline := now.Add(-ttl)

	var stale []string
	s.sets.Range(func(key string, set BlockSet) bool {
		if set.Touched.Before(deadline) {
			stale = append(stale, key)
		}
		return true
	})

	removed := make([]string, 0, len(stale))
	for _, key := range stale {
		deleted := false
		// the set may have been touched since Range saw it
		s.sets.Compute(key, func(old BlockSet, loaded bool) (BlockSet, bool) {
			deleted = loaded && old.Touched.Before(deadline)
			return old, deleted || !loaded
		})
		if deleted {
			removed = append(removed, key)
		}
	}

	sort.Strings(removed)
	return removed
}

// Len implements BlockStore.
func (s *MemoryBlockStore) Len() int {
	return s.sets.Size()
}
