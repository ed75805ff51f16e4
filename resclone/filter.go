package resclone

import (
	"regexp"
	"strings"

	pkgerr "github.com/pkg/errors"
)

// Verdict is the outcome of checking one path segment against a Filter.
type Verdict int

const (
	Reject Verdict = iota
	Accept
)

func (v Verdict) String() string {
	if v == Accept {
		return "accept"
	}
	return "reject"
}

// Filter holds one anchored regex per path depth below the root URL.
// Index 0 applies to the children of the root listing.
type Filter struct {
	raw      string
	segments []*regexp.Regexp
	// full rejects paths deeper than the filter, otherwise they pass.
	full bool
}

// CompileFilter builds a Filter from a '/' separated pattern such as
// "/foo/[0-9]+/bar". Each non-empty segment must match a whole path
// segment and uses POSIX ERE syntax.
func CompileFilter(raw string, full bool) (*Filter, error) {
	f := &Filter{raw: raw, full: full}
	for _, seg := range strings.Split(raw, "/") {
		if seg == "" {
			continue
		}
		// Validate the bare segment first so the grouping below cannot
		// balance a stray parenthesis.
		if _, err := regexp.CompilePOSIX(seg); err != nil {
			return nil, &Error{Kind: KindPattern, Op: "segment " + seg, Err: pkgerr.WithStack(err)}
		}
		// Grouped so that "a|b" means "^(a|b)$", not "^a|b$".
		re, err := regexp.CompilePOSIX("^(" + seg + ")$")
		if err != nil {
			return nil, &Error{Kind: KindPattern, Op: "segment " + seg, Err: pkgerr.WithStack(err)}
		}
		f.segments = append(f.segments, re)
	}
	if len(f.segments) == 0 {
		return nil, errorf(KindPattern, "filter %q has no segments", raw)
	}
	return f, nil
}

// Len returns the number of segments.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.segments)
}

// Full reports whether deeper paths than Len are rejected.
func (f *Filter) Full() bool { return f != nil && f.full }

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.raw
}

// Accept evaluates name, as reported by a listing at the given depth.
// A nil Filter accepts everything. A trailing '/' on name is ignored.
func (f *Filter) Accept(depth int, name string) (Verdict, error) {
	if f == nil {
		return Accept, nil
	}
	if depth < 0 {
		return Reject, errorf(KindPattern, "negative depth %d", depth)
	}
	if depth >= len(f.segments) {
		if f.full {
			return Reject, nil
		}
		return Accept, nil
	}
	if f.segments[depth].MatchString(strings.TrimSuffix(name, "/")) {
		return Accept, nil
	}
	return Reject, nil
}
