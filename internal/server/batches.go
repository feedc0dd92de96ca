package server

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/exchangesets/fsstransfer/internal/fss"
)

type fileRecord struct {
	attributes fss.Attributes
	mimeType   string
	size       *int64
	md5        string
}

type batch struct {
	id           string
	businessUnit string
	attributes   fss.Attributes
	status       string
	created      time.Time
	published    time.Time
	files        map[string]*fileRecord
}

// registry keeps the metadata of all batches in memory.
type registry struct {
	m       sync.Mutex
	batches map[string]*batch
}

func newRegistry() *registry {
	return &registry{batches: make(map[string]*batch)}
}

func (r *registry) create(id string, req fss.CreateBatchRequest, now time.Time) {
	r.m.Lock()
	defer r.m.Unlock()

	r.batches[id] = &batch{
		id:           id,
		businessUnit: req.BusinessUnit,
		attributes:   req.Attributes,
		status:       fss.StatusIncomplete,
		created:      now,
		files:        make(map[string]*fileRecord),
	}
}

func (r *registry) status(id string) (string, bool) {
	r.m.Lock()
	defer r.m.Unlock()

	b, ok := r.batches[id]
	if !ok {
		return "", false
	}
	return b.status, true
}

func (r *registry) addFile(id, fileName, mimeType string, size *int64, attrs fss.Attributes) bool {
	r.m.Lock()
	defer r.m.Unlock()

	b, ok := r.batches[id]
	if !ok {
		return false
	}
	b.files[fileName] = &fileRecord{
		attributes: attrs,
		mimeType:   mimeType,
		size:       size,
	}
	return true
}

// fileCommitted records the size and digest of a committed file. Files of
// unknown batches are ignored.
func (r *registry) fileCommitted(id, fileName string, size int64, md5 string) {
	r.m.Lock()
	defer r.m.Unlock()

	b, ok := r.batches[id]
	if !ok {
		return
	}

	f, ok := b.files[fileName]
	if !ok {
		f = &fileRecord{}
		b.files[fileName] = f
	}
	f.size = &size
	f.md5 = md5
}

func (r *registry) mimeType(id, fileName string) string {
	r.m.Lock()
	defer r.m.Unlock()

	if b, ok := r.batches[id]; ok {
		if f, ok := b.files[fileName]; ok {
			return f.mimeType
		}
	}
	return ""
}

func (r *registry) commit(id string, now time.Time) bool {
	r.m.Lock()
	defer r.m.Unlock()

	b, ok := r.batches[id]
	if !ok {
		return false
	}
	b.status = fss.StatusCommitted
	b.published = now
	return true
}

// search returns the descriptors of all committed batches whose attributes
// match every key/value pair of filter. Keys and values are compared
// case-insensitively. The result is ordered by publication date.
func (r *registry) search(filter map[string]string) []fss.BatchDescriptor {
	r.m.Lock()
	defer r.m.Unlock()

	entries := []fss.BatchDescriptor{}
	for _, b := range r.batches {
		if b.status != fss.StatusCommitted || !matches(b, filter) {
			continue
		}
		entries = append(entries, b.descriptor())
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].PublishedAt.Equal(entries[j].PublishedAt) {
			return entries[i].BatchID < entries[j].BatchID
		}
		return entries[i].PublishedAt.Before(entries[j].PublishedAt)
	})
	return entries
}

func matches(b *batch, filter map[string]string) bool {
	for k, want := range filter {
		if strings.EqualFold(k, fss.AttrBusinessUnit) && strings.EqualFold(b.businessUnit, want) {
			continue
		}
		got, ok := b.attributes.Get(k)
		if !ok || !strings.EqualFold(got, want) {
			return false
		}
	}
	return true
}

func (b *batch) descriptor() fss.BatchDescriptor {
	d := fss.BatchDescriptor{
		BatchID:     b.id,
		PublishedAt: b.published,
		Attributes:  append(fss.Attributes(nil), b.attributes...),
		Files:       []fss.FileDescriptor{},
	}

	names := make([]string, 0, len(b.files))
	for name := range b.files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := b.files[name]
		fd := fss.FileDescriptor{
			Filename: name,
			MIMEType: f.mimeType,
			Hash:     f.md5,
		}
		if f.size != nil {
			size := *f.size
			fd.FileSize = &size
		}
		d.Files = append(d.Files, fd)
	}
	return d
}
