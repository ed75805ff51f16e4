package resclone

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gateleen/resclone/misc"
)

// fakeTree answers GETs from a fixed path -> body map and records the
// order of requests. Paths missing from the map are 404.
type fakeTree struct {
	mu       sync.Mutex
	bodies   map[string]string
	statuses map[string]int
	requests []string
}

func (ft *fakeTree) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ft.mu.Lock()
	ft.requests = append(ft.requests, r.Method+" "+r.URL.EscapedPath())
	ft.mu.Unlock()

	if code, ok := ft.statuses[r.URL.Path]; ok {
		w.WriteHeader(code)
		return
	}
	body, ok := ft.bodies[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Last-Modified", "Mon, 02 Jan 2023 15:04:05 GMT")
	w.Write([]byte(body))
}

func (ft *fakeTree) seen() []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]string(nil), ft.requests...)
}

type memFile struct {
	name    string
	data    string
	modTime time.Time
}

// memSink collects WriteFile calls.
type memSink struct {
	files  []memFile
	closed bool
}

func (m *memSink) WriteFile(relPath string, data []byte, modTime time.Time) error {
	m.files = append(m.files, memFile{relPath, string(data), modTime})
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func (m *memSink) names() []string {
	var out []string
	for _, f := range m.files {
		out = append(out, f.name)
	}
	return out
}

func runWalker(t *testing.T, srvURL, filterPart, filterFull string, sink FileSink) (*Walker, *bytes.Buffer, error) {
	t.Helper()
	s, err := NewSession(SessionConfig{Mode: ModePull, URL: srvURL + "/root/", FilterPart: filterPart, FilterFull: filterFull})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	var logBuf bytes.Buffer
	logger := misc.NewLogger(&logBuf, "", misc.LevelDebug)
	w := NewWalker(WalkerConfig{
		Session:   s,
		Transport: NewTransport(TransportConfig{Logger: logger}),
		Sink:      sink,
		Logger:    logger,
	})
	err = w.Run(context.Background())
	return w, &logBuf, err
}

func TestWalker_Pull(t *testing.T) {
	ft := &fakeTree{bodies: map[string]string{
		"/root/":            `{"root":["a.json","sub/"]}`,
		"/root/a.json":      `{"a":1}`,
		"/root/sub/":        `{"sub":["b.txt","deeper/"]}`,
		"/root/sub/b.txt":   "bee",
		"/root/sub/deeper/": `{"deeper":[]}`,
	}}
	srv := httptest.NewServer(ft)
	defer srv.Close()

	sink := &memSink{}
	w, _, err := runWalker(t, srv.URL, "", "", sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sink.closed {
		t.Errorf("sink not closed")
	}

	expect := []memFile{
		{"a.json", `{"a":1}`, time.Date(2023, 1, 2, 15, 4, 5, 0, time.UTC)},
		{"sub/b.txt", "bee", time.Date(2023, 1, 2, 15, 4, 5, 0, time.UTC)},
	}
	if len(sink.files) != len(expect) {
		t.Fatalf("files = %v", sink.names())
	}
	for i := range expect {
		got := sink.files[i]
		if got.name != expect[i].name || got.data != expect[i].data || !got.modTime.Equal(expect[i].modTime) {
			t.Errorf("file %d = %+v, want %+v", i, got, expect[i])
		}
	}

	order := []string{
		"GET /root/",
		"GET /root/a.json",
		"GET /root/sub/",
		"GET /root/sub/b.txt",
		"GET /root/sub/deeper/",
	}
	if !slices.Equal(ft.seen(), order) {
		t.Errorf("request order = %v, want %v", ft.seen(), order)
	}
	if st := w.Stats(); st.TotalItems != 2 || st.TotalBytes != int64(len(`{"a":1}`)+3) {
		t.Errorf("stats = %+v", st)
	}
}

func TestWalker_Filter(t *testing.T) {
	ft := &fakeTree{bodies: map[string]string{
		"/root/":                `{"root":["abc/","ABC/","x1/","top.json"]}`,
		"/root/top.json":        "t",
		"/root/abc/":            `{"abc":["keep.json","deep/"]}`,
		"/root/abc/keep.json":   "k",
		"/root/abc/deep/":       `{"deep":["d.json"]}`,
		"/root/abc/deep/d.json": "d",
	}}
	srv := httptest.NewServer(ft)
	defer srv.Close()

	tests := []struct {
		name       string
		filterPart string
		filterFull string
		expect     []string
	}{
		{"part", "^[a-z]+$", "", []string{"abc/keep.json", "abc/deep/d.json"}},
		{"full", "", "^[a-z]+$", nil},
		{"full two levels", "", "/[a-z]+/keep.json|deep", []string{"abc/keep.json"}},
		{"none", "", "", []string{"abc/keep.json", "abc/deep/d.json", "top.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memSink{}
			_, logBuf, err := runWalker(t, srv.URL, tt.filterPart, tt.filterFull, sink)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !slices.Equal(sink.names(), tt.expect) {
				t.Errorf("files = %v, want %v", sink.names(), tt.expect)
			}
			if tt.filterPart != "" && !strings.Contains(logBuf.String(), "(filtered)") {
				t.Errorf("filtered entries not logged")
			}
		})
	}
}

func TestWalker_MalformedListing(t *testing.T) {
	bad := []string{
		`["a","b"]`,
		`{"a":["x"],"b":["y"]}`,
		`{}`,
		`{"a":"x"}`,
		`{"a":["x",1]}`,
		`{"a":["x"],"a":["y","z/"]}`,
		`{"a":null}`,
		`{"a":[]} {}`,
		`not json`,
	}

	for _, body := range bad {
		t.Run("root "+body, func(t *testing.T) {
			ft := &fakeTree{bodies: map[string]string{"/root/": body}}
			srv := httptest.NewServer(ft)
			defer srv.Close()

			sink := &memSink{}
			_, _, err := runWalker(t, srv.URL, "", "", sink)
			if !errors.Is(err, ErrParse) {
				t.Errorf("err = %v, want parse error", err)
			}
			if len(sink.files) != 0 || !sink.closed {
				t.Errorf("files = %v closed=%v", sink.names(), sink.closed)
			}
		})

		t.Run("branch "+body, func(t *testing.T) {
			ft := &fakeTree{bodies: map[string]string{
				"/root/":        `{"root":["bad/","ok.json"]}`,
				"/root/bad/":    body,
				"/root/ok.json": "ok",
			}}
			srv := httptest.NewServer(ft)
			defer srv.Close()

			sink := &memSink{}
			_, _, err := runWalker(t, srv.URL, "", "", sink)
			if !errors.Is(err, ErrParse) {
				t.Errorf("err = %v, want parse error", err)
			}
			if !slices.Equal(sink.names(), []string{"ok.json"}) {
				t.Errorf("siblings not archived: %v", sink.names())
			}
		})
	}
}

func TestWalker_HTTPStatus(t *testing.T) {
	ft := &fakeTree{
		bodies: map[string]string{
			"/root/":        `{"root":["gone/","missing.json","locked/","ok.json"]}`,
			"/root/ok.json": "ok",
		},
		statuses: map[string]int{"/root/locked/": http.StatusForbidden},
	}
	srv := httptest.NewServer(ft)
	defer srv.Close()

	sink := &memSink{}
	_, logBuf, err := runWalker(t, srv.URL, "", "", sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !slices.Equal(sink.names(), []string{"ok.json"}) {
		t.Errorf("files = %v", sink.names())
	}
	for _, s := range []string{"Skip HTTP 404", "Skip HTTP 403"} {
		if !strings.Contains(logBuf.String(), s) {
			t.Errorf("missing %q in log", s)
		}
	}
}

func TestWalker_FileServerError(t *testing.T) {
	ft := &fakeTree{
		bodies:   map[string]string{"/root/": `{"root":["a.json","b.json"]}`, "/root/b.json": "b"},
		statuses: map[string]int{"/root/a.json": http.StatusInternalServerError},
	}
	srv := httptest.NewServer(ft)
	defer srv.Close()

	sink := &memSink{}
	_, _, err := runWalker(t, srv.URL, "", "", sink)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("err = %v, want transport error", err)
	}
	if len(sink.files) != 0 || !sink.closed {
		t.Errorf("files = %v closed=%v", sink.names(), sink.closed)
	}
}

func TestWalker_RootUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, _, err := runWalker(t, url, "", "", &memSink{})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("err = %v, want transport error", err)
	}
}

func TestWalker_EscapesNames(t *testing.T) {
	ft := &fakeTree{bodies: map[string]string{
		"/root/":             `{"root":["a b/"]}`,
		"/root/a b/":         `{"a b":["x#1.json"]}`,
		"/root/a b/x#1.json": "x",
	}}
	srv := httptest.NewServer(ft)
	defer srv.Close()

	sink := &memSink{}
	if _, _, err := runWalker(t, srv.URL, "", "", sink); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(sink.names(), []string{"a b/x#1.json"}) {
		t.Errorf("files = %v", sink.names())
	}
	if seen := ft.seen(); seen[len(seen)-1] != "GET /root/a%20b/x%231.json" {
		t.Errorf("last request = %q", seen[len(seen)-1])
	}
}

func TestWalker_Cancel(t *testing.T) {
	ft := &fakeTree{bodies: map[string]string{
		"/root/":       `{"root":["a.json","b.json"]}`,
		"/root/a.json": "a",
		"/root/b.json": "b",
	}}
	srv := httptest.NewServer(ft)
	defer srv.Close()

	s, _ := NewSession(SessionConfig{Mode: ModePull, URL: srv.URL + "/root/"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &memSink{}
	err := NewWalker(WalkerConfig{Session: s, Transport: NewTransport(TransportConfig{}), Sink: sink}).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if !sink.closed {
		t.Errorf("sink not closed")
	}
}

func TestParseListing(t *testing.T) {
	tests := []struct {
		body    string
		expect  []string
		wantErr string
	}{
		{`{"nodes":["a.json","sub/"]}`, []string{"a.json", "sub/"}, ""},
		{`{"empty":[]}`, []string{}, ""},
		{" {\"k\" : [\"x\"]}\n", []string{"x"}, ""},
		{`{"a":["x"],"a":["y","z/"]}`, nil, "ONE child but got 2"},
		{`{"a":["x"],"b":["y"]}`, nil, "ONE child but got 2"},
		{`{}`, nil, "ONE child but got 0"},
		{`["a"]`, nil, "expected to be object"},
		{`{"a":{"b":["x"]}}`, nil, "expected to be an array"},
		{`{"a":["x",true]}`, nil, "a[1] expected to be a string"},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			names, err := parseListing([]byte(tt.body))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q (names %v)", err, tt.wantErr, names)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(names, tt.expect) {
				t.Errorf("names = %v, want %v", names, tt.expect)
			}
		})
	}
}

func TestWalker_SkipsDotSegments(t *testing.T) {
	ft := &fakeTree{bodies: map[string]string{
		"/root/":        `{"root":["./","../","a/../b","ok.json"]}`,
		"/root/ok.json": "ok",
	}}
	srv := httptest.NewServer(ft)
	defer srv.Close()

	sink := &memSink{}
	_, logBuf, err := runWalker(t, srv.URL, "", "", sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !slices.Equal(sink.names(), []string{"ok.json"}) {
		t.Errorf("files = %v", sink.names())
	}
	if want := []string{"GET /root/", "GET /root/ok.json"}; !slices.Equal(ft.seen(), want) {
		t.Errorf("requests = %v, want %v", ft.seen(), want)
	}
	if strings.Count(logBuf.String(), "Skip dot segment") != 3 {
		t.Errorf("log = %q", logBuf.String())
	}
}
