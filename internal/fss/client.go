package fss

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/hashing"
	"golang.org/x/oauth2"
)

// Client talks to a File Share Service over HTTP. Transient failures
// (network errors, 408, 429 and 5xx responses) are retried with an
// exponential backoff; every other non-success response is final.
type Client struct {
	base          string
	client        http.Client
	cfg           Config
	correlationID CorrelationIDProvider
}

// ResponseError is returned whenever the service answers with a
// non-successful HTTP status.
type ResponseError struct {
	Op            string
	StatusCode    int
	Status        string
	CorrelationID string
	Message       string
	BlockIDs      []string
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("%v: unexpected HTTP response (%v)", e.Op, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.CorrelationID != "" {
		msg += fmt.Sprintf(" [correlation id %v]", e.CorrelationID)
	}
	return msg
}

// IsNotExist returns true if the error was caused by a non-existing batch or
// file.
func IsNotExist(err error) bool {
	var e *ResponseError
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}

func isTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// speeds up tests
var fastRetries = false

// New returns a client for the service described by cfg. If tokens is not
// nil, every request carries a bearer token obtained from it.
func New(cfg Config, rt http.RoundTripper, tokens oauth2.TokenSource) (*Client, error) {
	if cfg.URL == nil {
		return nil, errors.New("no File Share Service URL configured")
	}
	if rt == nil {
		rt = http.DefaultTransport
	}
	if tokens != nil {
		rt = &oauth2.Transport{Source: tokens, Base: rt}
	}

	return &Client{
		base:          strings.TrimSuffix(cfg.URL.String(), "/"),
		client:        http.Client{Transport: rt},
		cfg:           cfg,
		correlationID: NewCorrelationID,
	}, nil
}

// WithCorrelationIDs replaces the provider used for requests whose context
// does not carry a correlation id.
func (c *Client) WithCorrelationIDs(p CorrelationIDProvider) *Client {
	c.correlationID = p
	return c
}

func (c *Client) batchURL(batchID string, elems ...string) string {
	u := c.base + "/batch/" + url.PathEscape(batchID)
	for _, e := range elems {
		u += "/" + url.PathEscape(e)
	}
	return u
}

func drainAndClose(resp *http.Response) error {
	_, err := io.Copy(io.Discard, resp.Body)
	cerr := resp.Body.Close()

	if err != nil {
		return errors.Errorf("drain: %v", err)
	}
	return cerr
}

// responseError reads the error document from resp and closes the body.
func responseError(op string, resp *http.Response) *ResponseError {
	e := &ResponseError{
		Op:            op,
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		CorrelationID: resp.Header.Get(CorrelationHeader),
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	_ = drainAndClose(resp)

	var serverErr ServerError
	if json.Unmarshal(body, &serverErr) == nil && len(serverErr.Errors) > 0 {
		var descriptions []string
		for _, d := range serverErr.Errors {
			descriptions = append(descriptions, d.Description)
		}
		e.Message = strings.Join(descriptions, "; ")
		if serverErr.CorrelationID != "" {
			e.CorrelationID = serverErr.CorrelationID
		}
		return e
	}

	var clientErr ClientError
	if json.Unmarshal(body, &clientErr) == nil && clientErr.Message != "" {
		e.Message = clientErr.Message
		e.BlockIDs = clientErr.BlockIDs
	}

	return e
}

type request struct {
	op          string
	method      string
	url         string
	body        []byte
	contentType string
	header      http.Header
}

func (c *Client) newRequest(ctx context.Context, r request) (*http.Request, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	for k, v := range r.header {
		req.Header[k] = v
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	id, ok := CorrelationID(ctx)
	if !ok {
		id = c.correlationID()
	}
	req.Header.Set(CorrelationHeader, id)

	return req, nil
}

// do sends the request, retrying transient failures, and hands a successful
// response to fn. The body is drained and closed afterwards.
func (c *Client) do(ctx context.Context, r request, fn func(*http.Response) error) error {
	return c.retry(ctx, r.op, func() error {
		req, err := c.newRequest(ctx, r)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return errors.Wrap(err, r.op)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			rerr := responseError(r.op, resp)
			if isTransientStatus(resp.StatusCode) {
				return rerr
			}
			return backoff.Permanent(rerr)
		}

		if fn != nil {
			err = fn(resp)
		}

		if cerr := drainAndClose(resp); err == nil && cerr != nil {
			debug.Log("%v: closing body failed: %v", r.op, cerr)
		}
		return err
	})
}

func (c *Client) retry(ctx context.Context, msg string, f func() error) error {
	// never start a request with a cancelled context
	if ctx.Err() != nil {
		return ctx.Err()
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.RetryTimeout
	if fastRetries {
		bo.InitialInterval = time.Millisecond
		bo.MaxElapsedTime = 200 * time.Millisecond
	}

	b := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx)

	return backoff.RetryNotify(f, b, func(err error, d time.Duration) {
		debug.Log("%v returned error, retrying after %v: %v", msg, d, err)
	})
}

func jsonBody(v interface{}) ([]byte, error) {
	buf, err := json.Marshal(v)
	return buf, errors.WithStack(err)
}

// CreateBatch creates a new batch and returns its id.
func (c *Client) CreateBatch(ctx context.Context, req CreateBatchRequest) (string, error) {
	body, err := jsonBody(req)
	if err != nil {
		return "", err
	}

	var res CreateBatchResponse
	err = c.do(ctx, request{
		op:          "CreateBatch",
		method:      http.MethodPost,
		url:         c.base + "/batch",
		body:        body,
		contentType: "application/json",
	}, func(resp *http.Response) error {
		return errors.Wrap(json.NewDecoder(resp.Body).Decode(&res), "decode batch")
	})
	if err != nil {
		return "", err
	}

	if res.BatchID == "" {
		return "", errors.New("CreateBatch: service returned an empty batch id")
	}

	debug.Log("created batch %v", res.BatchID)
	return res.BatchID, nil
}

// AddFile creates the file record for fileName in the batch.
func (c *Client) AddFile(ctx context.Context, batchID, fileName string, size int64, mimeType string, attrs Attributes) error {
	if attrs == nil {
		attrs = Attributes{}
	}
	body, err := jsonBody(FileRecordRequest{Attributes: attrs})
	if err != nil {
		return err
	}

	header := make(http.Header)
	header.Set("X-Content-Size", strconv.FormatInt(size, 10))
	if mimeType != "" {
		header.Set("X-MIME-Type", mimeType)
	}

	return c.do(ctx, request{
		op:          fmt.Sprintf("AddFile(%v, %v)", batchID, fileName),
		method:      http.MethodPost,
		url:         c.batchURL(batchID, "files", fileName),
		body:        body,
		contentType: "application/json",
		header:      header,
	}, nil)
}

// PutBlock uploads one block of fileName. digest is the MD5 of data and is
// sent in the Content-MD5 header.
func (c *Client) PutBlock(ctx context.Context, batchID, fileName, blockID string, data []byte, digest [md5.Size]byte) error {
	header := make(http.Header)
	header.Set("Content-MD5", base64.StdEncoding.EncodeToString(digest[:]))

	err := c.do(ctx, request{
		op:          fmt.Sprintf("PutBlock(%v, %v, %v)", batchID, fileName, blockID),
		method:      http.MethodPut,
		url:         c.batchURL(batchID, "files", fileName, blockID),
		body:        data,
		contentType: "application/octet-stream",
		header:      header,
	}, nil)

	return errors.WithKind(errors.TransferFailed, err)
}

// WriteBlockList commits fileName from the previously uploaded blocks.
func (c *Client) WriteBlockList(ctx context.Context, batchID, fileName string, blockIDs []string) error {
	if blockIDs == nil {
		blockIDs = []string{}
	}
	body, err := jsonBody(CommitRequest{BlockIDs: blockIDs})
	if err != nil {
		return errors.WithKind(errors.CommitFailed, err)
	}

	err = c.do(ctx, request{
		op:          fmt.Sprintf("WriteBlockList(%v, %v)", batchID, fileName),
		method:      http.MethodPut,
		url:         c.batchURL(batchID, "files", fileName),
		body:        body,
		contentType: "application/json",
	}, nil)

	return errors.WithKind(errors.CommitFailed, err)
}

// CommitBatch finalizes the batch after all files were written.
func (c *Client) CommitBatch(ctx context.Context, batchID string) error {
	return c.do(ctx, request{
		op:     fmt.Sprintf("CommitBatch(%v)", batchID),
		method: http.MethodPut,
		url:    c.batchURL(batchID),
	}, nil)
}

// BatchStatus returns the status of the batch.
func (c *Client) BatchStatus(ctx context.Context, batchID string) (string, error) {
	var res BatchStatusResponse
	err := c.do(ctx, request{
		op:     fmt.Sprintf("BatchStatus(%v)", batchID),
		method: http.MethodGet,
		url:    c.batchURL(batchID, "status"),
	}, func(resp *http.Response) error {
		return errors.Wrap(json.NewDecoder(resp.Body).Decode(&res), "decode status")
	})
	return res.Status, err
}

// Search returns the descriptors of all batches matching the attribute
// filter, e.g. {"ProductName": "101GB004DEVQK"}.
func (c *Client) Search(ctx context.Context, filter map[string]string) ([]BatchDescriptor, error) {
	q := make(url.Values)
	for k, v := range filter {
		q.Set(k, v)
	}

	u := c.base + "/batch"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var res SearchResponse
	err := c.do(ctx, request{
		op:     "Search",
		method: http.MethodGet,
		url:    u,
	}, func(resp *http.Response) error {
		return errors.Wrap(json.NewDecoder(resp.Body).Decode(&res), "decode search")
	})
	return res.Entries, err
}

// DownloadInfo describes the body handed to a Download callback.
type DownloadInfo struct {
	ContentType   string
	ContentLength int64
	CorrelationID string
}

// Download runs fn with a reader that yields the contents of fileName. fn may
// be called more than once if a transient failure occurs, so it must start
// from scratch on every call. When the service sends a Content-MD5 header,
// the data read by fn is verified against it.
func (c *Client) Download(ctx context.Context, batchID, fileName string, fn func(rd io.Reader, info DownloadInfo) error) error {
	op := fmt.Sprintf("Download(%v, %v)", batchID, fileName)

	err := c.do(ctx, request{
		op:     op,
		method: http.MethodGet,
		url:    c.batchURL(batchID, "files", fileName),
	}, func(resp *http.Response) error {
		info := DownloadInfo{
			ContentType:   resp.Header.Get("Content-Type"),
			ContentLength: resp.ContentLength,
			CorrelationID: resp.Header.Get(CorrelationHeader),
		}

		expected := resp.Header.Get("Content-MD5")
		if expected == "" {
			return fn(resp.Body, info)
		}

		rd := hashing.NewReader(resp.Body, md5.New())
		if err := fn(rd, info); err != nil {
			return err
		}

		// consume what fn left unread so the digest covers the whole body
		if _, err := io.Copy(io.Discard, rd); err != nil {
			return errors.Wrap(err, op)
		}

		got := base64.StdEncoding.EncodeToString(rd.Sum(nil))
		if got != expected {
			return errors.WithKind(errors.DigestMismatch,
				errors.Errorf("%v: content digest %v does not match Content-MD5 %v", op, got, expected))
		}
		return nil
	})

	return errors.WithKind(errors.TransferFailed, err)
}
