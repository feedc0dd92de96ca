package upload

import (
	"encoding/base64"
	"sort"
	"sync"
)

// BatchHandle identifies a batch on the File Share Service and collects the
// MD5 digest of every file committed into it.
type BatchHandle struct {
	id string

	m       sync.Mutex
	digests map[string][]byte
}

// NewBatchHandle returns a handle for the batch with the given id.
func NewBatchHandle(id string) *BatchHandle {
	return &BatchHandle{
		id:      id,
		digests: make(map[string][]byte),
	}
}

// ID returns the batch id.
func (h *BatchHandle) ID() string {
	return h.id
}

// Digest returns the whole-file MD5 recorded for fileName.
func (h *BatchHandle) Digest(fileName string) ([]byte, bool) {
	h.m.Lock()
	defer h.m.Unlock()

	d, ok := h.digests[fileName]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), d...), true
}

// ContentMD5 returns the digest of fileName base64 encoded, or "" if the
// file was not committed through this handle.
func (h *BatchHandle) ContentMD5(fileName string) string {
	d, ok := h.Digest(fileName)
	if !ok {
		return ""
	}
	return base64.StdEncoding.EncodeToString(d)
}

// Files returns the names of all committed files, sorted.
func (h *BatchHandle) Files() []string {
	h.m.Lock()
	defer h.m.Unlock()

	names := make([]string, 0, len(h.digests))
	for name := range h.digests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *BatchHandle) record(fileName string, digest []byte) {
	h.m.Lock()
	h.digests[fileName] = digest
	h.m.Unlock()
}
