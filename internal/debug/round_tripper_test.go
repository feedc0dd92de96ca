package debug

import (
	"net/http"
	"testing"

	"github.com/exchangesets/fsstransfer/internal/test"
)

func TestRedactHeader(t *testing.T) {
	header := http.Header{
		"Authorization":             {"Bearer 123"},
		"Ocp-Apim-Subscription-Key": {"1234"},
		"Host":                      {"fss.example.org"},
	}

	redactHeader(header)
	test.Equals(t, []string{"**redacted**"}, header["Authorization"])
	test.Equals(t, []string{"**redacted**"}, header["Ocp-Apim-Subscription-Key"])
	test.Equals(t, []string{"fss.example.org"}, header["Host"])

	// absent headers are not added
	header = http.Header{"Host": {"fss.example.org"}}
	redactHeader(header)
	_, ok := header["Authorization"]
	test.Assert(t, !ok, "Authorization header added: %v", header)
}

type recordingTransport struct {
	header http.Header
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.header = req.Header
	return &http.Response{StatusCode: http.StatusNoContent, Header: http.Header{}, Request: req}, nil
}

func TestLoggingRoundTripperKeepsRequest(t *testing.T) {
	upstream := &recordingTransport{}
	req, err := http.NewRequest(http.MethodGet, "http://fss.example.org/batch", nil)
	test.OK(t, err)
	req.Header.Set("Authorization", "Bearer 123")

	res, err := loggingRoundTripper{upstream}.RoundTrip(req)
	test.OK(t, err)
	test.Equals(t, http.StatusNoContent, res.StatusCode)

	test.Equals(t, "Bearer 123", req.Header.Get("Authorization"))
	test.Equals(t, "Bearer 123", upstream.header.Get("Authorization"))
}
