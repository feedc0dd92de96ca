package limiter

import (
	"context"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

type staticLimiter struct {
	upstream   *rate.Limiter
	downstream *rate.Limiter
}

// NewStaticLimiter constructs a Limiter with a fixed (static) upload and
// download rate cap. A limit of zero or less means unlimited.
func NewStaticLimiter(l Limits) Limiter {
	var up, down *rate.Limiter

	if l.UploadKb > 0 {
		up = rate.NewLimiter(rate.Limit(toByteRate(l.UploadKb)), toByteRate(l.UploadKb))
	}

	if l.DownloadKb > 0 {
		down = rate.NewLimiter(rate.Limit(toByteRate(l.DownloadKb)), toByteRate(l.DownloadKb))
	}

	return staticLimiter{
		upstream:   up,
		downstream: down,
	}
}

func (l staticLimiter) Upstream(r io.Reader) io.Reader {
	return l.limitReader(context.Background(), r, l.upstream)
}

func (l staticLimiter) Downstream(r io.Reader) io.Reader {
	return l.limitReader(context.Background(), r, l.downstream)
}

type roundTripper func(*http.Request) (*http.Response, error)

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req)
}

func (l staticLimiter) roundTripper(rt http.RoundTripper, req *http.Request) (*http.Response, error) {
	type readCloser struct {
		io.Reader
		io.Closer
	}

	if req.Body != nil {
		req.Body = &readCloser{
			Reader: l.limitReader(req.Context(), req.Body, l.upstream),
			Closer: req.Body,
		}
	}

	res, err := rt.RoundTrip(req)

	if res != nil && res.Body != nil {
		res.Body = &readCloser{
			Reader: l.limitReader(req.Context(), res.Body, l.downstream),
			Closer: res.Body,
		}
	}

	return res, err
}

// Transport returns an HTTP transport limited with the limiter l.
func (l staticLimiter) Transport(rt http.RoundTripper) http.RoundTripper {
	return roundTripper(func(req *http.Request) (*http.Response, error) {
		return l.roundTripper(rt, req)
	})
}

func (l staticLimiter) limitReader(ctx context.Context, r io.Reader, lim *rate.Limiter) io.Reader {
	if lim == nil {
		return r
	}
	return &rateReader{ctx: ctx, r: r, lim: lim}
}

type rateReader struct {
	ctx context.Context
	r   io.Reader
	lim *rate.Limiter
}

func (r *rateReader) Read(p []byte) (int, error) {
	// a single wait must never exceed the burst size
	if len(p) > r.lim.Burst() {
		p = p[:r.lim.Burst()]
	}

	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.lim.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func toByteRate(val int) int {
	return val * 1024
}
