package resclone

import (
	"fmt"

	pkgerr "github.com/pkg/errors"
)

// Kind classifies failures of a clone run.
type Kind int

const (
	KindConfig Kind = iota + 1
	KindPattern
	KindTransport
	KindParse
	KindArchiveInit
	KindArchiveWrite
	KindArchiveRead
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindPattern:
		return "pattern"
	case KindTransport:
		return "transport"
	case KindParse:
		return "parse"
	case KindArchiveInit:
		return "archive init"
	case KindArchiveWrite:
		return "archive write"
	case KindArchiveRead:
		return "archive read"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is.
var (
	ErrConfig       = &Error{Kind: KindConfig}
	ErrPattern      = &Error{Kind: KindPattern}
	ErrTransport    = &Error{Kind: KindTransport}
	ErrParse        = &Error{Kind: KindParse}
	ErrArchiveInit  = &Error{Kind: KindArchiveInit}
	ErrArchiveWrite = &Error{Kind: KindArchiveWrite}
	ErrArchiveRead  = &Error{Kind: KindArchiveRead}
)

// Error carries the kind of a failure, the operation or resource it
// happened on and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s error: %s", e.Kind, e.Op)
	}
	return e.Kind.String() + " error"
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: pkgerr.WithStack(err)}
}

func errorf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: pkgerr.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if pkgerr.As(err, &e) {
		return e.Kind
	}
	return 0
}
