package ui

import "golang.org/x/term"

// IsTTY reports whether w is a file descriptor attached to a terminal.
// Anything without an Fd method (buffers, bufio writers) is not.
func IsTTY(w any) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: fd values are small non-negative integers
}
