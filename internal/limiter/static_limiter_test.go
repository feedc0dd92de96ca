package limiter

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	rtest "github.com/exchangesets/fsstransfer/internal/test"
)

func TestLimiterWrapping(t *testing.T) {
	reader := bytes.NewReader([]byte{})

	for _, limits := range []Limits{
		{0, 0},
		{42, 0},
		{0, 42},
		{42, 42},
	} {
		limiter := NewStaticLimiter(limits)

		mustWrapUpstream := limits.UploadKb > 0
		rtest.Equals(t, limiter.Upstream(reader) != reader, mustWrapUpstream)

		mustWrapDownstream := limits.DownloadKb > 0
		rtest.Equals(t, limiter.Downstream(reader) != reader, mustWrapDownstream)
	}
}

func TestReadLimiterPreservesData(t *testing.T) {
	data := rtest.Random(7, 64*1024)
	limiter := NewStaticLimiter(Limits{DownloadKb: 4 * 1024})

	got, err := io.ReadAll(limiter.Downstream(bytes.NewReader(data)))
	rtest.OK(t, err)
	rtest.Assert(t, bytes.Equal(data, got), "limited reader modified data")
}

type mockRoundTripper struct {
	body []byte
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	sent, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	m.body = sent
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(sent))}, nil
}

func TestRoundTripperReader(t *testing.T) {
	limiter := NewStaticLimiter(Limits{UploadKb: 1024, DownloadKb: 1024})
	data := rtest.Random(42, 8*1024)
	mock := &mockRoundTripper{}

	req, err := http.NewRequest(http.MethodPut, "http://fss.local/batch/b/files/f/00001", bytes.NewReader(data))
	rtest.OK(t, err)

	res, err := limiter.Transport(mock).RoundTrip(req)
	rtest.OK(t, err)

	out, err := io.ReadAll(res.Body)
	rtest.OK(t, err)
	rtest.OK(t, res.Body.Close())

	rtest.Assert(t, bytes.Equal(data, mock.body), "upload body differs")
	rtest.Assert(t, bytes.Equal(data, out), "download body differs")
}
