//go:build windows
// +build windows

package misc

import (
	"os"

	"golang.org/x/sys/windows"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a console.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// EnableVirtualTerminal turns on ANSI escape handling for stdout and stderr
// when they are consoles, so colored log tags render.
func EnableVirtualTerminal() {
	for _, f := range []*os.File{os.Stdout, os.Stderr} {
		if !IsTerminal(f) {
			continue
		}
		h := windows.Handle(f.Fd())

		var originalMode uint32
		if err := windows.GetConsoleMode(h, &originalMode); err != nil {
			continue
		}
		if originalMode&windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING != 0 {
			continue
		}
		windows.SetConsoleMode(h, originalMode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING)
	}
}
