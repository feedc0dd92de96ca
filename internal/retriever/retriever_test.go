package retriever

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/fss"
	"github.com/exchangesets/fsstransfer/internal/options"
	rtest "github.com/exchangesets/fsstransfer/internal/test"
	"github.com/google/go-cmp/cmp"
)

// fakeDownloader serves file contents from memory and records every call.
type fakeDownloader struct {
	files   map[string][]byte
	delay   time.Duration
	failFor string

	m       sync.Mutex
	calls   []string
	current int32
	peak    int32
}

func (d *fakeDownloader) Download(ctx context.Context, batchID, fileName string, fn func(rd io.Reader, info fss.DownloadInfo) error) error {
	n := atomic.AddInt32(&d.current, 1)
	defer atomic.AddInt32(&d.current, -1)
	for {
		p := atomic.LoadInt32(&d.peak)
		if n <= p || atomic.CompareAndSwapInt32(&d.peak, p, n) {
			break
		}
	}

	d.m.Lock()
	d.calls = append(d.calls, batchID+"/"+fileName)
	d.m.Unlock()

	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if fileName == d.failFor {
		return errors.WithKind(errors.TransferFailed, errors.New("500 Internal Server Error"))
	}

	data, ok := d.files[batchID+"/"+fileName]
	if !ok {
		return errors.Errorf("unknown file %v/%v", batchID, fileName)
	}
	return fn(bytes.NewReader(data), fss.DownloadInfo{ContentLength: int64(len(data))})
}

func size(n int64) *int64 { return &n }

func descriptor(batchID string, published time.Time, product string, files ...fss.FileDescriptor) fss.BatchDescriptor {
	return fss.BatchDescriptor{
		BatchID:     batchID,
		PublishedAt: published,
		Attributes: fss.Attributes{
			{Key: fss.AttrProductName, Value: product},
			{Key: fss.AttrEditionNumber, Value: "1"},
			{Key: fss.AttrUpdateNumber, Value: "0"},
		},
		Files: files,
	}
}

func testOptions(t testing.TB, concurrency string) options.Options {
	opts, err := options.Parse([]string{"retriever.concurrency=" + concurrency})
	rtest.OK(t, err)
	return opts
}

func TestNothingToDo(t *testing.T) {
	dl := &fakeDownloader{}
	dir := filepath.Join(rtest.TempDir(t), "workspace")

	for _, descriptors := range [][]fss.BatchDescriptor{nil, {}} {
		res, err := New(dl, dir, testOptions(t, "2")).Retrieve(context.Background(), descriptors)
		rtest.OK(t, err)
		rtest.Assert(t, res.NothingToDo, "NothingToDo not set")
	}

	rtest.Equals(t, 0, len(dl.calls))
	_, err := os.Stat(dir)
	rtest.Assert(t, os.IsNotExist(err), "workspace was created")
}

func TestDedupLatestWins(t *testing.T) {
	now := time.Now()
	dl := &fakeDownloader{files: map[string][]byte{
		"b1/old.000": []byte("old"),
		"b2/new.000": []byte("new"),
	}}
	dir := rtest.TempDir(t)

	res, err := New(dl, dir, testOptions(t, "2")).Retrieve(context.Background(), []fss.BatchDescriptor{
		descriptor("b1", now.Add(-2*time.Hour), "101GB004DEVQK", fss.FileDescriptor{Filename: "old.000", FileSize: size(3)}),
		descriptor("b2", now.Add(-time.Hour), "101GB004DEVQK", fss.FileDescriptor{Filename: "new.000", FileSize: size(3)}),
	})
	rtest.OK(t, err)

	rtest.Equals(t, []string{"b2/new.000"}, dl.calls)
	rtest.Equals(t, []string{"new.000"}, rtest.ListFiles(t, dir))
	rtest.Equals(t, []string{"b1"}, res.Dropped)
	rtest.Assert(t, res.Has("new"), "manifest does not contain new")
	rtest.Assert(t, !res.Has("old"), "manifest contains old")
}

func TestDropUnusableAttributes(t *testing.T) {
	now := time.Now()
	dl := &fakeDownloader{files: map[string][]byte{"b2/a.000": []byte("a")}}

	noAttrs := fss.BatchDescriptor{BatchID: "b1", PublishedAt: now, Files: []fss.FileDescriptor{{Filename: "x", FileSize: size(1)}}}
	noUpdate := fss.BatchDescriptor{
		BatchID:    "b3",
		Attributes: fss.Attributes{{Key: fss.AttrProductName, Value: "p"}, {Key: fss.AttrEditionNumber, Value: "1"}},
		Files:      []fss.FileDescriptor{{Filename: "y", FileSize: size(1)}},
	}

	res, err := New(dl, rtest.TempDir(t), testOptions(t, "2")).Retrieve(context.Background(), []fss.BatchDescriptor{
		noAttrs,
		descriptor("b2", now, "p", fss.FileDescriptor{Filename: "a.000", FileSize: size(1)}),
		noUpdate,
	})
	rtest.OK(t, err)
	rtest.Equals(t, []string{"b2/a.000"}, dl.calls)
	rtest.Equals(t, []string{"b1", "b3"}, res.Dropped)
}

func TestZeroSizeShortcut(t *testing.T) {
	dl := &fakeDownloader{}
	dir := rtest.TempDir(t)

	// a stale file is truncated
	rtest.OK(t, os.WriteFile(filepath.Join(dir, "empty.txt"), []byte("stale"), 0600))

	res, err := New(dl, dir, testOptions(t, "2")).Retrieve(context.Background(), []fss.BatchDescriptor{
		descriptor("b1", time.Now(), "p",
			fss.FileDescriptor{Filename: "empty.txt", FileSize: size(0)},
			fss.FileDescriptor{Filename: "unknown.txt"},
		),
	})
	rtest.OK(t, err)

	rtest.Equals(t, 0, len(dl.calls))
	rtest.Equals(t, 0, res.Downloads)
	rtest.Equals(t, []string{"empty.txt", "unknown.txt"}, rtest.ListFiles(t, dir))

	for _, name := range []string{"empty.txt", "unknown.txt"} {
		fi, err := os.Stat(filepath.Join(dir, name))
		rtest.OK(t, err)
		rtest.Equals(t, int64(0), fi.Size())
	}
	rtest.Assert(t, res.Has("empty") && res.Has("unknown"), "manifest incomplete: %v", res.Manifest)
}

func TestConcurrencyBound(t *testing.T) {
	const files = 50
	const delay = 20 * time.Millisecond

	dl := &fakeDownloader{files: make(map[string][]byte), delay: delay}
	var fds []fss.FileDescriptor
	for i := 0; i < files; i++ {
		name := fmt.Sprintf("cell%03d.bin", i)
		dl.files["b1/"+name] = []byte(name)
		fds = append(fds, fss.FileDescriptor{Filename: name, FileSize: size(int64(len(name)))})
	}

	start := time.Now()
	res, err := New(dl, rtest.TempDir(t), testOptions(t, "4")).Retrieve(context.Background(), []fss.BatchDescriptor{
		descriptor("b1", time.Now(), "p", fds...),
	})
	elapsed := time.Since(start)
	rtest.OK(t, err)

	rtest.Equals(t, files, res.Downloads)
	rtest.Assert(t, atomic.LoadInt32(&dl.peak) <= 4, "peak concurrency %d exceeds 4", dl.peak)
	// 13 rounds of 20ms if the limit is used, 1s if downloads are serialized
	rtest.Assert(t, elapsed < files*delay/2, "downloads took %v, not running concurrently", elapsed)
}

func TestDownloadFailure(t *testing.T) {
	dl := &fakeDownloader{
		files: map[string][]byte{
			"b1/a.000": []byte("a"),
			"b1/b.000": []byte("b"),
		},
		failFor: "broken.000",
	}
	dir := rtest.TempDir(t)

	_, err := New(dl, dir, testOptions(t, "1")).Retrieve(context.Background(), []fss.BatchDescriptor{
		descriptor("b1", time.Now(), "p",
			fss.FileDescriptor{Filename: "a.000", FileSize: size(1)},
			fss.FileDescriptor{Filename: "broken.000", FileSize: size(10)},
			fss.FileDescriptor{Filename: "b.000", FileSize: size(1)},
		),
	})
	rtest.Assert(t, errors.IsKind(err, errors.TransferFailed), "want TransferFailed, got %v", err)
}

func TestInvalidFileName(t *testing.T) {
	dl := &fakeDownloader{}
	_, err := New(dl, rtest.TempDir(t), testOptions(t, "1")).Retrieve(context.Background(), []fss.BatchDescriptor{
		descriptor("b1", time.Now(), "p", fss.FileDescriptor{Filename: "../escape", FileSize: size(1)}),
	})
	rtest.Assert(t, errors.IsKind(err, errors.InvalidInput), "want InvalidInput, got %v", err)
	rtest.Equals(t, 0, len(dl.calls))
}

func TestManifestFingerprint(t *testing.T) {
	data := rtest.Random(1, 5000)
	dl := &fakeDownloader{files: map[string][]byte{"b1/cell.000": data}}

	res, err := New(dl, rtest.TempDir(t), testOptions(t, "1")).Retrieve(context.Background(), []fss.BatchDescriptor{
		descriptor("b1", time.Now(), "p", fss.FileDescriptor{Filename: "cell.000", FileSize: size(5000)}),
	})
	rtest.OK(t, err)

	want := []ManifestEntry{{
		Name:        "cell",
		BatchID:     "b1",
		File:        "cell.000",
		Size:        5000,
		Fingerprint: xxhash.Sum64(data),
	}}
	if diff := cmp.Diff(want, res.Manifest); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrencyDefaulted(t *testing.T) {
	for _, opts := range []options.Options{
		nil,
		{"retriever.concurrency": "many"},
		{"retriever.concurrency": "0"},
		{"retriever.concurrency": ""},
	} {
		r := New(&fakeDownloader{}, rtest.TempDir(t), opts)
		rtest.Equals(t, DefaultConcurrency, r.Concurrency())

		res, err := r.Retrieve(context.Background(), nil)
		rtest.OK(t, err)
		rtest.Equals(t, 1, len(res.Diagnostics))
		rtest.Equals(t, errors.ConfigurationDefaulted, res.Diagnostics[0].Kind)
	}

	r := New(&fakeDownloader{}, rtest.TempDir(t), options.Options{"retriever.concurrency": "7"})
	rtest.Equals(t, 7, r.Concurrency())
	res, err := r.Retrieve(context.Background(), nil)
	rtest.OK(t, err)
	rtest.Equals(t, 0, len(res.Diagnostics))
}

func TestExtractionIsSoft(t *testing.T) {
	dir := rtest.TempDir(t)

	archive := filepath.Join(rtest.TempDir(t), "src.zip")
	rtest.WriteZip(t, archive, []rtest.ZipEntry{
		{Name: "../../../invalid.txt", Data: []byte("x")},
		{Name: "CATALOG.XML", Data: []byte("<catalog/>")},
	})
	good, err := os.ReadFile(archive)
	rtest.OK(t, err)

	dl := &fakeDownloader{files: map[string][]byte{
		"b1/good.zip":   good,
		"b1/broken.zip": []byte("not a zip"),
	}}

	res, err := New(dl, dir, testOptions(t, "2")).Retrieve(context.Background(), []fss.BatchDescriptor{
		descriptor("b1", time.Now(), "p",
			fss.FileDescriptor{Filename: "good.zip", FileSize: size(int64(len(good)))},
			fss.FileDescriptor{Filename: "broken.zip", FileSize: size(9)},
		),
	})
	rtest.OK(t, err)

	rtest.Equals(t, 1, len(res.Diagnostics))
	rtest.Equals(t, errors.ExtractionFailed, res.Diagnostics[0].Kind)
	rtest.Equals(t, "broken.zip", res.Diagnostics[0].Subject)

	rtest.Equals(t, 1, len(res.Extracted))
	rtest.Equals(t, 1, len(res.Extracted[0].Skipped))

	rtest.Equals(t, []string{"broken.zip", "good/CATALOG.XML"}, rtest.ListFiles(t, dir))
}
