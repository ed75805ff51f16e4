package resclone

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	pkgerr "github.com/pkg/errors"

	"github.com/gateleen/resclone/misc"
)

// TransportConfig configures the HTTP side of a run.
type TransportConfig struct {
	// Client defaults to a plain http.Client. Its redirect policy is
	// always replaced: redirects are never followed.
	Client *http.Client
	// Header is added to every request.
	Header http.Header
	// NoCompress asks the server for identity encoding.
	NoCompress bool
	Logger     *misc.Logger
	Metrics    *Metrics
}

// Transport performs the GET and PUT requests of one run. It is used
// sequentially and holds one http.Client for the whole run.
type Transport struct {
	client     *http.Client
	header     http.Header
	noCompress bool
	logger     *misc.Logger
	metrics    *Metrics
}

// Result describes a finished request.
type Result struct {
	StatusCode   int
	Status       string
	LastModified time.Time
	// Bytes is the decoded body length appended to the caller's buffer.
	Bytes int64
}

func NewTransport(cfg TransportConfig) *Transport {
	client := &http.Client{}
	if cfg.Client != nil {
		c := *cfg.Client
		client = &c
	}
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if cfg.Logger == nil {
		cfg.Logger = misc.Discard()
	}
	return &Transport{
		client:     client,
		header:     cfg.Header.Clone(),
		noCompress: cfg.NoCompress,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

func (t *Transport) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, newError(KindTransport, method+" "+url, err)
	}
	for k, vs := range t.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

func (t *Transport) setAcceptEncoding(req *http.Request) {
	if t.noCompress {
		req.Header.Set("Accept-Encoding", "identity")
	} else {
		req.Header.Set("Accept-Encoding", "zstd, gzip")
	}
}

// Get requests url and, when the status is 200 or bodyOnAnyStatus is set,
// appends the decoded body to buf. Other bodies are discarded.
func (t *Transport) Get(ctx context.Context, url string, buf *bytes.Buffer, bodyOnAnyStatus bool) (*Result, error) {
	req, err := t.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	t.setAcceptEncoding(req)

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newError(KindTransport, "GET "+url, err)
	}
	defer resp.Body.Close()
	t.metrics.observeRequest(http.MethodGet, resp.StatusCode)

	res := &Result{StatusCode: resp.StatusCode, Status: resp.Status}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if ts, err := http.ParseTime(lm); err == nil {
			res.LastModified = ts
		}
	}
	if resp.StatusCode != http.StatusOK && !bodyOnAnyStatus {
		io.Copy(io.Discard, resp.Body)
		return res, nil
	}

	body, closeBody, err := t.decodeBody(resp)
	if err != nil {
		return nil, newError(KindTransport, "GET "+url, err)
	}
	defer closeBody()

	n, err := buf.ReadFrom(body)
	res.Bytes = n
	t.metrics.observeBytes(n)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newError(KindTransport, "GET "+url, pkgerr.Wrap(err, "reading body"))
	}
	return res, nil
}

func (t *Transport) decodeBody(resp *http.Response) (io.Reader, func(), error) {
	contentEncoding := resp.Header.Get("Content-Encoding")
	switch contentEncoding {
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, nil, pkgerr.Wrap(err, "creating zstd reader")
		}
		return zr, zr.Close, nil
	case "gzip":
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, nil, pkgerr.Wrap(err, "creating gzip reader")
		}
		return gr, func() { gr.Close() }, nil
	case "", "identity":
	default:
		t.logger.Warnf("Unknown Content-Encoding '%s' for '%s'. Reading as is.", contentEncoding, resp.Request.URL)
	}
	return resp.Body, func() {}, nil
}

// Put uploads size bytes from body to url. An empty contentType sends
// no Content-Type header.
func (t *Transport) Put(ctx context.Context, url, contentType string, body io.Reader, size int64) (*Result, error) {
	req, err := t.newRequest(ctx, http.MethodPut, url, body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	if size == 0 {
		req.Body = http.NoBody
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	} else {
		req.Header.Del("Content-Type")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newError(KindTransport, "PUT "+url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	t.metrics.observeRequest(http.MethodPut, resp.StatusCode)
	t.metrics.observeBytes(size)

	return &Result{StatusCode: resp.StatusCode, Status: resp.Status, Bytes: size}, nil
}
