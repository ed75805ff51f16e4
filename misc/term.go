//go:build !windows
// +build !windows

package misc

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// EnableVirtualTerminal is a no-op outside windows, ANSI sequences work as is.
func EnableVirtualTerminal() {}
