package resclone

import (
	"archive/tar"
	"bufio"
	"bytes"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/gateleen/resclone/misc"
)

// readBlockSize matches the block size the upload reads in.
const readBlockSize = 16384

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Entry is one regular file of the input archive. Body is only valid
// until the next call to ArchiveSource.Next.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
	Body    io.Reader
}

// ArchiveSource iterates the regular files of a tar stream once.
type ArchiveSource struct {
	tr      *tar.Reader
	closers []func() error
	logger  *misc.Logger
	skipped int
}

// OpenFileSource reads the named archive, or stdin if name is empty.
func OpenFileSource(name string, logger *misc.Logger) (*ArchiveSource, error) {
	var f *os.File
	if name == "" {
		f = os.Stdin
	} else {
		var err error
		if f, err = os.Open(name); err != nil {
			return nil, newError(KindArchiveRead, "open archive", err)
		}
	}
	src, err := NewSource(f, logger)
	if err != nil {
		if f != os.Stdin {
			f.Close()
		}
		return nil, err
	}
	if f != os.Stdin {
		src.closers = append(src.closers, f.Close)
	}
	return src, nil
}

// NewSource reads a tar stream from r. gzip and zstd compressed streams
// are recognized by their magic bytes.
func NewSource(r io.Reader, logger *misc.Logger) (*ArchiveSource, error) {
	if logger == nil {
		logger = misc.Discard()
	}
	src := &ArchiveSource{logger: logger}

	br := bufio.NewReaderSize(r, readBlockSize)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, newError(KindArchiveRead, "sniff archive", err)
	}

	var in io.Reader = br
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, newError(KindArchiveRead, "gzip reader", err)
		}
		src.closers = append(src.closers, gr.Close)
		in = gr
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, newError(KindArchiveRead, "zstd reader", err)
		}
		src.closers = append(src.closers, func() error { zr.Close(); return nil })
		in = zr
	}
	src.tr = tar.NewReader(in)
	return src, nil
}

// Next returns the next regular file. Directories are skipped silently
// since the remote tree has no directory resources, other entry types
// with a warning. At the end of the archive it returns io.EOF.
func (s *ArchiveSource) Next() (*Entry, error) {
	for {
		hdr, err := s.tr.Next()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, newError(KindArchiveRead, "next entry", err)
		}
		switch hdr.Typeflag {
		case tar.TypeReg:
			return &Entry{
				Name:    hdr.Name,
				Size:    hdr.Size,
				ModTime: hdr.ModTime,
				Body:    s.tr,
			}, nil
		case tar.TypeDir, tar.TypeXGlobalHeader:
			continue
		default:
			s.skipped++
			s.logger.Warnf("Ignore non-regular file '%s'", hdr.Name)
		}
	}
}

// Skipped returns how many non-regular entries were ignored.
func (s *ArchiveSource) Skipped() int { return s.skipped }

func (s *ArchiveSource) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
