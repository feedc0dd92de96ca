// Package limiter caps the bandwidth used for block uploads and file
// downloads.
package limiter

import (
	"io"
	"net/http"
)

// Limiter limits the upload and download rates.
type Limiter interface {
	// Upstream returns a rate limited reader that is intended to be used in
	// uploads.
	Upstream(r io.Reader) io.Reader

	// Downstream returns a rate limited reader that is intended to be used
	// for downloads.
	Downstream(r io.Reader) io.Reader

	// Transport returns an http.RoundTripper limited with the limiter.
	Transport(http.RoundTripper) http.RoundTripper
}

// Limits represents the upload and download limits in KiB/s.
type Limits struct {
	UploadKb   int
	DownloadKb int
}
