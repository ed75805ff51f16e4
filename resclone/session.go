package resclone

import (
	"net/url"
	"strings"
)

// Mode selects the direction of a run.
type Mode int

const (
	ModeNone Mode = iota
	ModePull
	ModePush
)

func (m Mode) String() string {
	switch m {
	case ModePull:
		return "pull"
	case ModePush:
		return "push"
	}
	return "none"
}

// Compression of the tar stream itself.
type Compression int

const (
	CompressNone Compression = iota
	CompressGzip
	CompressZstd
)

func (c Compression) String() string {
	switch c {
	case CompressGzip:
		return "gzip"
	case CompressZstd:
		return "zstd"
	}
	return "none"
}

// ParseCompression accepts "none", "gzip" and "zstd". The empty string
// means "derive from the file name".
func ParseCompression(s string) (c Compression, explicit bool, err error) {
	switch s {
	case "":
		return CompressNone, false, nil
	case "none":
		return CompressNone, true, nil
	case "gzip", "gz":
		return CompressGzip, true, nil
	case "zstd", "zst":
		return CompressZstd, true, nil
	}
	return CompressNone, false, errorf(KindConfig, "unknown compression %q", s)
}

// CompressionForFile derives the compression from an archive file name.
func CompressionForFile(name string) Compression {
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return CompressGzip
	case strings.HasSuffix(name, ".tar.zst"), strings.HasSuffix(name, ".tzst"):
		return CompressZstd
	}
	return CompressNone
}

// SessionConfig is the raw, unvalidated input of a run.
type SessionConfig struct {
	Mode       Mode
	URL        string
	FilterPart string
	FilterFull string
	// File is the archive path; empty means stdin (push) or stdout (pull).
	File        string
	Compression string
}

// Session is the validated, immutable configuration of one run.
type Session struct {
	Mode Mode
	// RootURL always ends with '/'.
	RootURL     string
	Filter      *Filter
	File        string
	Compression Compression
}

// NewSession validates cfg. Configuration problems are KindConfig
// errors, a bad filter regex is KindPattern.
func NewSession(cfg SessionConfig) (*Session, error) {
	switch cfg.Mode {
	case ModePull, ModePush:
	default:
		return nil, errorf(KindConfig, "one of --push or --pull required")
	}
	if cfg.URL == "" {
		return nil, errorf(KindConfig, "arg --url missing")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, newError(KindConfig, "--url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errorf(KindConfig, "--url %q: scheme must be http or https", cfg.URL)
	}
	if cfg.FilterPart != "" && cfg.FilterFull != "" {
		return nil, errorf(KindConfig, "cannot use --filter-part and --filter-full together")
	}
	filterRaw, full := cfg.FilterPart, false
	if cfg.FilterFull != "" {
		filterRaw, full = cfg.FilterFull, true
	}
	if cfg.Mode == ModePush && filterRaw != "" {
		return nil, errorf(KindConfig, "filtering not supported for push mode")
	}

	comp, explicit, err := ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if cfg.Mode == ModePush && explicit {
		return nil, errorf(KindConfig, "--compress is detected automatically on push")
	}
	if !explicit {
		comp = CompressionForFile(cfg.File)
	}

	s := &Session{
		Mode:        cfg.Mode,
		RootURL:     cfg.URL,
		File:        cfg.File,
		Compression: comp,
	}
	if !strings.HasSuffix(s.RootURL, "/") {
		s.RootURL += "/"
	}
	if filterRaw != "" {
		if s.Filter, err = CompileFilter(filterRaw, full); err != nil {
			return nil, err
		}
	}
	return s, nil
}
