package resclone

import (
	"archive/tar"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	pkgerr "github.com/pkg/errors"
)

// FileSink receives downloaded resources.
type FileSink interface {
	WriteFile(relPath string, data []byte, modTime time.Time) error
	Close() error
}

// defaultPerm is rw-r--r--.
const defaultPerm = 0o644

// ArchiveSink writes regular-file entries into a pax tar stream. The
// target is opened on the first WriteFile, so an empty walk leaves no
// file behind.
type ArchiveSink struct {
	open        func() (io.Writer, error)
	compression Compression

	out  io.Writer
	comp io.WriteCloser
	tw   *tar.Writer
	hdr  tar.Header

	entries int
}

// NewFileSink writes to the named file, or to stdout if name is empty.
func NewFileSink(name string, c Compression) *ArchiveSink {
	return &ArchiveSink{
		compression: c,
		open: func() (io.Writer, error) {
			if name == "" {
				return os.Stdout, nil
			}
			return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		},
	}
}

// NewWriterSink writes to w. w is not closed by Close.
func NewWriterSink(w io.Writer, c Compression) *ArchiveSink {
	return &ArchiveSink{
		compression: c,
		open:        func() (io.Writer, error) { return nopWriter{w}, nil },
	}
}

// nopWriter hides any Close method of the wrapped writer.
type nopWriter struct{ io.Writer }

func (s *ArchiveSink) init() error {
	out, err := s.open()
	if err != nil {
		return newError(KindArchiveInit, "open archive", err)
	}
	s.out = out

	w := out
	switch s.compression {
	case CompressGzip:
		s.comp = gzip.NewWriter(out)
		w = s.comp
	case CompressZstd:
		enc, err := zstd.NewWriter(out)
		if err != nil {
			s.closeOut()
			return newError(KindArchiveInit, "zstd writer", err)
		}
		s.comp = enc
		w = enc
	}
	s.tw = tar.NewWriter(w)
	return nil
}

// Entries returns the number of files written so far.
func (s *ArchiveSink) Entries() int { return s.entries }

func (s *ArchiveSink) WriteFile(relPath string, data []byte, modTime time.Time) error {
	if s.tw == nil {
		if err := s.init(); err != nil {
			return err
		}
	}

	s.hdr = tar.Header{
		Typeflag: tar.TypeReg,
		Name:     relPath,
		Size:     int64(len(data)),
		Mode:     defaultPerm,
		ModTime:  modTime.Truncate(time.Second),
		Format:   tar.FormatPAX,
	}
	if err := s.tw.WriteHeader(&s.hdr); err != nil {
		return newError(KindArchiveWrite, relPath, err)
	}
	n, err := s.tw.Write(data)
	if err != nil {
		return newError(KindArchiveWrite, relPath, err)
	}
	if n != len(data) {
		return &Error{Kind: KindArchiveWrite, Op: relPath,
			Err: pkgerr.Errorf("wrote %d of %d bytes", n, len(data))}
	}
	s.entries++
	return nil
}

// Close finalizes the archive. Without any entry it does nothing.
func (s *ArchiveSink) Close() error {
	if s.tw == nil {
		return nil
	}
	err := s.tw.Close()
	s.tw = nil
	if s.comp != nil {
		if cerr := s.comp.Close(); err == nil {
			err = cerr
		}
		s.comp = nil
	}
	if cerr := s.closeOut(); err == nil {
		err = cerr
	}
	if err != nil {
		return newError(KindArchiveWrite, "close archive", err)
	}
	return nil
}

func (s *ArchiveSink) closeOut() error {
	out := s.out
	s.out = nil
	if out == os.Stdout {
		return nil
	}
	if c, ok := out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
