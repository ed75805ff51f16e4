package resclone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerr "github.com/pkg/errors"

	"github.com/gateleen/resclone/misc"
)

// dirBufChunk pre-sizes the listing buffer of every directory frame.
const dirBufChunk = 1024

// dirContext is the state of one directory being listed. It lives on
// the call stack of walk; parent is a plain back reference used to
// rebuild the path and to count depth.
type dirContext struct {
	parent *dirContext
	// name is the listing entry with leading '/' removed, e.g. "sub/".
	// Empty for the root.
	name   string
	body   bytes.Buffer
	status int
}

// depth is the number of directories between the root and dc, which is
// the filter index for dc's children.
func (dc *dirContext) depth() int {
	n := 0
	for d := dc.parent; d != nil; d = d.parent {
		n++
	}
	return n
}

// relDir returns the path of dc below the root, ending with '/' unless
// dc is the root.
func (dc *dirContext) relDir() string {
	var names []string
	for d := dc; d != nil; d = d.parent {
		names = append(names, d.name)
	}
	var sb strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		sb.WriteString(names[i])
	}
	return sb.String()
}

// fileFetch is reused for all files of one directory so the body buffer
// keeps its capacity between siblings.
type fileFetch struct {
	url string
	buf bytes.Buffer
}

// WalkerConfig wires a Walker.
type WalkerConfig struct {
	Session   *Session
	Transport *Transport
	Sink      FileSink
	Logger    *misc.Logger
	Metrics   *Metrics
	Stats     *misc.ProgressStats
}

// Walker mirrors the remote tree below Session.RootURL into a FileSink,
// depth first, one request at a time.
type Walker struct {
	root      string
	filter    *Filter
	transport *Transport
	sink      FileSink
	logger    *misc.Logger
	metrics   *Metrics
	stats     *misc.ProgressStats
	started   time.Time

	branchErrs []error
}

func NewWalker(cfg WalkerConfig) *Walker {
	if cfg.Logger == nil {
		cfg.Logger = misc.Discard()
	}
	if cfg.Stats == nil {
		cfg.Stats = misc.NewProgressStats()
	}
	return &Walker{
		root:      cfg.Session.RootURL,
		filter:    cfg.Session.Filter,
		transport: cfg.Transport,
		sink:      cfg.Sink,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		stats:     cfg.Stats,
	}
}

// Run walks the whole tree and closes the sink. On failure the sink is
// still closed so that everything archived so far stays readable.
// A malformed listing below the root skips that directory only, but
// still makes Run fail at the end.
func (w *Walker) Run(ctx context.Context) error {
	w.started = time.Now()
	w.stats.ResetStart()
	err := w.walk(ctx, nil, "")
	if cerr := w.sink.Close(); err == nil {
		err = cerr
	}
	if err == nil && len(w.branchErrs) > 0 {
		err = &Error{Kind: KindParse,
			Op:  fmt.Sprintf("%d unreadable directory listing(s)", len(w.branchErrs)),
			Err: w.branchErrs[0]}
	}
	return err
}

func (w *Walker) walk(ctx context.Context, parent *dirContext, name string) error {
	dc := &dirContext{parent: parent, name: strings.TrimLeft(name, "/")}
	dirURL := w.root + encodePathSegmentPreservingSlashes(dc.relDir())

	dc.body.Grow(dirBufChunk)
	res, err := w.transport.Get(ctx, dirURL, &dc.body, false)
	if err != nil {
		return err
	}
	dc.status = res.StatusCode
	if dc.status != http.StatusOK {
		// Listed a moment ago by the parent, gone now. Keep the rest.
		w.logger.Warnf("Skip HTTP %d -> '%s'", dc.status, dirURL)
		w.metrics.skip("http_status")
		return nil
	}

	names, err := parseListing(dc.body.Bytes())
	dc.body = bytes.Buffer{}
	if err != nil {
		perr := &Error{Kind: KindParse, Op: dirURL, Err: err}
		if parent == nil {
			return perr
		}
		w.logger.Errorf("Skip     '%s': %v", dirURL, err)
		// Only this branch is lost; Run reports it once the siblings are done.
		w.branchErrs = append(w.branchErrs, perr)
		w.metrics.skip("parse_error")
		return nil
	}

	var ff fileFetch
	depth := dc.depth()
	for _, child := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.TrimLeft(child, "/") == "" {
			w.logger.Warnf("Skip empty name in '%s'", dirURL)
			w.metrics.skip("empty_name")
			continue
		}
		if hasDotSegment(child) {
			w.logger.Warnf("Skip dot segment '%s' in '%s'", child, dirURL)
			w.metrics.skip("dot_segment")
			continue
		}

		verdict, err := w.filter.Accept(depth, child)
		if err != nil {
			return err
		}
		if verdict == Reject {
			w.logger.Infof("Skip     '%s%s'  (filtered)", dirURL, child)
			w.metrics.skip("filtered")
			continue
		}

		if strings.HasSuffix(child, "/") {
			w.logger.Debugf("Scan     '%s%s'", dirURL, child)
			if err := w.walk(ctx, dc, child); err != nil {
				return err
			}
			continue
		}
		if err := w.fetchFile(ctx, &ff, dc, child); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) fetchFile(ctx context.Context, ff *fileFetch, dc *dirContext, name string) error {
	relPath := dc.relDir() + strings.TrimLeft(name, "/")
	ff.url = w.root + encodePathSegmentPreservingSlashes(relPath)
	ff.buf.Reset()

	w.logger.Infof("Download '%s'", ff.url)
	res, err := w.transport.Get(ctx, ff.url, &ff.buf, true)
	if err != nil {
		return err
	}
	switch {
	case res.StatusCode == http.StatusNotFound:
		w.logger.Warnf("Skip HTTP %d -> '%s'", res.StatusCode, ff.url)
		w.metrics.skip("http_status")
		return nil
	case res.StatusCode < 200 || res.StatusCode > 299:
		return &Error{Kind: KindTransport, Op: "GET " + ff.url,
			Err: pkgerr.Errorf("unexpected status %s", res.Status)}
	}

	modTime := res.LastModified
	if modTime.IsZero() {
		modTime = w.started
	}
	if err := w.sink.WriteFile(relPath, ff.buf.Bytes(), modTime); err != nil {
		return err
	}
	w.stats.Update(int64(ff.buf.Len()))
	w.stats.ItemDone()
	w.metrics.fileDone(ModePull)
	return nil
}

// Stats returns the totals of the run so far.
func (w *Walker) Stats() misc.StatResult {
	return w.stats.Stats(time.Now(), true)
}

// parseListing extracts the child names of a gateleen collection:
// a JSON object with exactly one key whose value is an array of strings.
// Keys are counted as they are read, so a repeated key is two children.
func parseListing(body []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil, pkgerr.Wrap(err, "decoding directory listing")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, pkgerr.New("JSON root expected to be object but is not")
	}

	var key string
	var val json.RawMessage
	keys := 0
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, pkgerr.Wrap(err, "decoding directory listing")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, pkgerr.Wrap(err, "decoding directory listing")
		}
		if keys == 0 {
			key, val = tok.(string), raw
		}
		keys++
	}
	if _, err := dec.Token(); err != nil {
		return nil, pkgerr.Wrap(err, "decoding directory listing")
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = pkgerr.New("trailing data after JSON root")
		}
		return nil, pkgerr.Wrap(err, "decoding directory listing")
	}
	if keys != 1 {
		return nil, pkgerr.Errorf("JSON root expected ONE child but got %d", keys)
	}

	var arr []interface{}
	if err := json.Unmarshal(val, &arr); err != nil || arr == nil {
		return nil, pkgerr.Errorf("json['%s'] expected to be an array. But is not", key)
	}
	names := make([]string, 0, len(arr))
	for i, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, pkgerr.Errorf("%s[%d] expected to be a string. But is not", key, i)
		}
		names = append(names, s)
	}
	return names, nil
}

// hasDotSegment reports whether a listing name contains "." or ".."
// as a path segment.
func hasDotSegment(name string) bool {
	for _, seg := range strings.Split(strings.Trim(name, "/"), "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// encodePathSegmentPreservingSlashes escapes each segment of a relative
// path so that names containing '#', '?' or '%' survive as path.
func encodePathSegmentPreservingSlashes(pathStr string) string {
	if pathStr == "" {
		return ""
	}
	parts := strings.Split(pathStr, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
