package upload

import (
	"bytes"
	"context"
	"crypto/md5"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/fss"
	rtest "github.com/exchangesets/fsstransfer/internal/test"
)

// memClient stages blocks in memory and assembles them on commit.
type memClient struct {
	m        sync.Mutex
	files    map[string]fss.Attributes
	blocks   map[string][]byte
	digests  map[string][md5.Size]byte
	commits  map[string][]byte
	putErrAt string
	listErr  error
	puts     int
	lists    [][]string
}

func newMemClient() *memClient {
	return &memClient{
		files:   make(map[string]fss.Attributes),
		blocks:  make(map[string][]byte),
		digests: make(map[string][md5.Size]byte),
		commits: make(map[string][]byte),
	}
}

func (c *memClient) AddFile(_ context.Context, batchID, fileName string, _ int64, _ string, attrs fss.Attributes) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.files[batchID+":"+fileName] = attrs
	return nil
}

func (c *memClient) PutBlock(_ context.Context, batchID, fileName, blockID string, data []byte, digest [md5.Size]byte) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.puts++
	if blockID == c.putErrAt {
		return errors.New("block rejected")
	}
	key := batchID + ":" + fileName + ":" + blockID
	c.blocks[key] = append([]byte(nil), data...)
	c.digests[key] = digest
	return nil
}

func (c *memClient) WriteBlockList(_ context.Context, batchID, fileName string, ids []string) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.lists = append(c.lists, ids)
	if c.listErr != nil {
		return c.listErr
	}
	if len(ids) == 0 {
		return errors.NewKind(errors.ValidationFailed, "empty block list")
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var buf []byte
	for _, id := range sorted {
		b, ok := c.blocks[batchID+":"+fileName+":"+id]
		if !ok {
			return errors.NewKind(errors.BlockNotFound, id)
		}
		buf = append(buf, b...)
	}
	c.commits[batchID+":"+fileName] = buf
	return nil
}

type progressCall struct{ done, expected int }

func TestUploadBlocks(t *testing.T) {
	data := rtest.Random(23, 10*1024+17)
	c := newMemClient()
	u := New(c, Config{BlockSize: 1024})
	h := NewBatchHandle("batch-1")

	var calls []progressCall
	res, err := u.Upload(context.Background(), h, "chart.zip", bytes.NewReader(data), func(done, expected int) {
		calls = append(calls, progressCall{done, expected})
	})
	rtest.OK(t, err)

	rtest.Equals(t, 11, len(res.BlockIDs))
	rtest.Equals(t, "00001", res.BlockIDs[0])
	rtest.Equals(t, "00011", res.BlockIDs[10])
	rtest.Equals(t, int64(len(data)), res.Size)

	rtest.Equals(t, 12, len(calls))
	rtest.Equals(t, progressCall{0, 11}, calls[0])
	rtest.Equals(t, progressCall{11, 11}, calls[11])

	rtest.Equals(t, data, c.commits["batch-1:chart.zip"])

	sum := md5.Sum(data)
	digest, ok := h.Digest("chart.zip")
	rtest.Assert(t, ok, "digest not recorded")
	rtest.Equals(t, sum[:], digest)
	rtest.Equals(t, []string{"chart.zip"}, h.Files())

	blockSum := md5.Sum(data[:1024])
	rtest.Equals(t, blockSum, c.digests["batch-1:chart.zip:00001"])
}

func TestUploadRewindsSource(t *testing.T) {
	data := []byte("0123456789")
	rd := bytes.NewReader(data)
	_, err := rd.Seek(5, io.SeekStart)
	rtest.OK(t, err)

	c := newMemClient()
	_, err = New(c, Config{BlockSize: 4}).Upload(context.Background(), NewBatchHandle("b"), "f", rd, nil)
	rtest.OK(t, err)
	rtest.Equals(t, data, c.commits["b:f"])
}

type brokenSeeker struct{ io.Reader }

func (brokenSeeker) Seek(int64, int) (int64, error) {
	return 0, errors.New("not seekable")
}

func TestUploadInvalidInput(t *testing.T) {
	c := newMemClient()
	_, err := New(c, NewConfig()).Upload(context.Background(), NewBatchHandle("b"), "f", brokenSeeker{strings.NewReader("x")}, nil)
	rtest.Assert(t, errors.IsKind(err, errors.InvalidInput), "want InvalidInput, got %v", err)
	rtest.Equals(t, 0, c.puts)
}

func TestUploadTransferFailedIsTerminal(t *testing.T) {
	c := newMemClient()
	c.putErrAt = "00002"
	h := NewBatchHandle("b")

	_, err := New(c, Config{BlockSize: 2}).Upload(context.Background(), h, "f", bytes.NewReader([]byte("abcdefgh")), nil)
	rtest.Assert(t, errors.IsKind(err, errors.TransferFailed), "want TransferFailed, got %v", err)
	rtest.Equals(t, 2, c.puts)
	rtest.Equals(t, 0, len(c.lists))
	rtest.Equals(t, []string{}, h.Files())
}

func TestUploadCommitFailedLeavesHandle(t *testing.T) {
	c := newMemClient()
	c.listErr = errors.New("500 Internal Server Error")
	h := NewBatchHandle("b")

	_, err := New(c, NewConfig()).Upload(context.Background(), h, "f", bytes.NewReader([]byte("abc")), nil)
	rtest.Assert(t, errors.IsKind(err, errors.CommitFailed), "want CommitFailed, got %v", err)

	_, ok := h.Digest("f")
	rtest.Assert(t, !ok, "digest recorded for failed commit")
}

func TestUploadEmptySource(t *testing.T) {
	c := newMemClient()
	h := NewBatchHandle("b")

	var calls []progressCall
	_, err := New(c, NewConfig()).Upload(context.Background(), h, "empty", bytes.NewReader(nil), func(done, expected int) {
		calls = append(calls, progressCall{done, expected})
	})
	rtest.Assert(t, errors.IsKind(err, errors.CommitFailed), "want CommitFailed, got %v", err)
	rtest.Equals(t, []progressCall{{0, 0}}, calls)
	rtest.Equals(t, 0, c.puts)
	rtest.Equals(t, [][]string{{}}, c.lists)
}

func TestUploadRejectEmpty(t *testing.T) {
	c := newMemClient()
	_, err := New(c, Config{RejectEmpty: true}).Upload(context.Background(), NewBatchHandle("b"), "empty", bytes.NewReader(nil), nil)
	rtest.Assert(t, errors.Is(err, ErrEmptySource), "want ErrEmptySource, got %v", err)
	rtest.Equals(t, 0, len(c.lists))
}

func TestUploadFileAddsRecord(t *testing.T) {
	c := newMemClient()
	attrs := fss.Attributes{{Key: fss.AttrProductName, Value: "101GB004DEVQK"}}

	_, err := New(c, NewConfig()).UploadFile(context.Background(), NewBatchHandle("b"),
		File{Name: "f.zip", MIMEType: "application/zip", Attributes: attrs},
		bytes.NewReader([]byte("zip")), nil)
	rtest.OK(t, err)
	rtest.Equals(t, attrs, c.files["b:f.zip"])
}

func TestUploadCancelled(t *testing.T) {
	c := newMemClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(c, Config{BlockSize: 1}).Upload(ctx, NewBatchHandle("b"), "f", bytes.NewReader([]byte("abc")), nil)
	rtest.Assert(t, errors.Is(err, context.Canceled), "want context.Canceled, got %v", err)
	rtest.Equals(t, 0, c.puts)
}
