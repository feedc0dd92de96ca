package debug

import (
	"net/http"
	"net/http/httputil"
)

// CorrelationHeader is the header the File Share Service echoes back on
// every response.
const CorrelationHeader = "X-Correlation-ID"

var secretHeaders = []string{"Authorization", "Ocp-Apim-Subscription-Key"}

type loggingRoundTripper struct {
	http.RoundTripper
}

// RoundTripper returns a new http.RoundTripper which logs all requests (if
// debug is enabled). When debug is not enabled, upstream is returned.
func RoundTripper(upstream http.RoundTripper) http.RoundTripper {
	if Enabled() {
		return loggingRoundTripper{upstream}
	}
	return upstream
}

// redactHeader replaces the values of credential headers in place.
func redactHeader(header http.Header) {
	for _, name := range secretHeaders {
		if _, ok := header[name]; ok {
			header[name] = []string{"**redacted**"}
		}
	}
}

func (tr loggingRoundTripper) RoundTrip(req *http.Request) (res *http.Response, err error) {
	// the request must not be modified, so redact a copy of the header
	header := req.Header.Clone()
	redactHeader(header)
	logReq := req.Clone(req.Context())
	logReq.Header = header
	logReq.Body = nil

	trace, err := httputil.DumpRequestOut(logReq, false)
	if err != nil {
		Log("DumpRequestOut() error: %v\n", err)
	} else {
		Log("------------  HTTP REQUEST -----------\n%s", trace)
	}

	res, err = tr.RoundTripper.RoundTrip(req)
	if err != nil {
		Log("RoundTrip() returned error: %v", err)
	}

	if res != nil {
		trace, err := httputil.DumpResponse(res, false)
		if err != nil {
			Log("DumpResponse() error: %v\n", err)
		} else {
			Log("------------  HTTP RESPONSE (%s) ----------\n%s", res.Header.Get(CorrelationHeader), trace)
		}
	}

	return res, err
}
