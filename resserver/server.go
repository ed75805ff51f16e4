// Package resserver serves a local directory as a gateleen style
// resource tree: collections list their children as JSON, leaves are
// returned as raw bytes and can be replaced with PUT.
package resserver

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/gateleen/resclone/mime"
	"github.com/gateleen/resclone/misc"
)

// ServerConfig holds the server configuration.
type ServerConfig struct {
	ListenAddr   string
	Root         string
	LoggerOutput io.Writer
	EnableZstd   bool
	Listener     net.Listener
}

// Server maps request paths onto files below Root.
type Server struct {
	config ServerConfig
	logger *log.Logger
	root   string
}

// NewServer creates a new Server instance.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("root path must be provided")
	}
	if cfg.LoggerOutput == nil {
		cfg.LoggerOutput = io.Discard
	}
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid root path %s: %w", cfg.Root, err)
	}
	return &Server{
		config: cfg,
		logger: misc.NewLog(cfg.LoggerOutput, "[RESSRV] ", log.LstdFlags|log.Lmsgprefix),
		root:   abs,
	}, nil
}

// zstdWriter wraps http.ResponseWriter to provide Zstandard compression.
type zstdWriter struct {
	http.ResponseWriter
	Writer *zstd.Encoder
}

func (z *zstdWriter) Write(data []byte) (int, error) {
	return z.Writer.Write(data)
}

func (z *zstdWriter) WriteHeader(status int) {
	z.Header().Del("Content-Length")
	z.ResponseWriter.WriteHeader(status)
}

// zstdMiddleware compresses GET responses if the client accepts zstd.
func (s *Server) zstdMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.Contains(r.Header.Get("Accept-Encoding"), "zstd") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "zstd")
		w.Header().Set("Vary", "Accept-Encoding")

		encoder, err := zstd.NewWriter(w, zstd.WithZeroFrames(true))
		if err != nil {
			s.logger.Printf("Error creating Zstd encoder: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer encoder.Close()

		next.ServeHTTP(&zstdWriter{ResponseWriter: w, Writer: encoder}, r)
	})
}

// Handler returns the http.Handler serving the tree.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = http.HandlerFunc(s.serveResource)
	if s.config.EnableZstd {
		handler = s.zstdMiddleware(handler)
	}
	return handler
}

// Start runs the HTTP server on Listener, or on ListenAddr.
func (s *Server) Start() error {
	ln := s.config.Listener
	if ln == nil {
		if s.config.ListenAddr == "" {
			return fmt.Errorf("ListenAddr cannot be empty if no custom Listener is provided")
		}
		var err error
		ln, err = net.Listen("tcp", s.config.ListenAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
		}
	}
	defer ln.Close()
	s.logger.Printf("Serving %s on %s", s.root, ln.Addr())

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	return server.Serve(ln)
}

// resolvePath maps a URL path to a path below root.
func (s *Server) resolvePath(urlPath string) (string, error) {
	for _, seg := range strings.Split(urlPath, "/") {
		if seg == ".." {
			return "", fmt.Errorf("directory traversal attempt")
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(path.Clean("/"+urlPath))), nil
}

func (s *Server) serveResource(w http.ResponseWriter, r *http.Request) {
	fullPath, err := s.resolvePath(r.URL.Path)
	if err != nil {
		s.logger.Printf("Access denied: %v for path '%s' from %s", err, r.URL.Path, r.RemoteAddr)
		http.Error(w, "Access Denied", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.serveGet(w, r, fullPath)
	case http.MethodPut:
		s.servePut(w, r, fullPath)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) serveGet(w http.ResponseWriter, r *http.Request, fullPath string) {
	stat, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
		} else {
			s.logger.Printf("Error stating %s: %v", fullPath, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	isCollectionURL := strings.HasSuffix(r.URL.Path, "/")
	if stat.IsDir() != isCollectionURL {
		// gateleen does not redirect between "x" and "x/".
		http.NotFound(w, r)
		return
	}
	if stat.IsDir() {
		s.serveListing(w, r, fullPath)
		return
	}

	f, err := os.Open(fullPath)
	if err != nil {
		s.logger.Printf("Error opening %s: %v", fullPath, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	if ct, ok := mime.ForPath(r.URL.Path); ok {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Last-Modified", stat.ModTime().UTC().Format(http.TimeFormat))
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Printf("Error sending %s: %v", fullPath, err)
		return
	}
	s.logger.Printf("Served '%s' (size %s) to %s", r.URL.Path, misc.FormatBytes(stat.Size()), r.RemoteAddr)
}

// serveListing answers {"<name>": ["file", "dir/", ...]} with children sorted by name.
func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, fullPath string) {
	dirEntries, err := os.ReadDir(fullPath)
	if err != nil {
		s.logger.Printf("Warning: Error reading directory listing for %s (showing partial results): %v", fullPath, err)
	}
	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	key := path.Base(strings.TrimSuffix(r.URL.Path, "/"))
	if key == "/" || key == "." || key == "" {
		key = "root"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string][]string{key: names}); err != nil {
		s.logger.Printf("Error writing listing for '%s': %v", r.URL.Path, err)
		return
	}
	s.logger.Printf("Served listing for '%s' to %s", r.URL.Path, r.RemoteAddr)
}

func (s *Server) servePut(w http.ResponseWriter, r *http.Request, fullPath string) {
	if strings.HasSuffix(r.URL.Path, "/") {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		s.logger.Printf("Error creating parents of %s: %v", fullPath, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		s.logger.Printf("Error creating %s: %v", fullPath, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	n, err := io.Copy(f, r.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.logger.Printf("Error storing %s: %v", fullPath, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.logger.Printf("Stored '%s' (%s, Content-Type %q) from %s", r.URL.Path, misc.FormatBytes(n), r.Header.Get("Content-Type"), r.RemoteAddr)
	w.WriteHeader(http.StatusOK)
}
