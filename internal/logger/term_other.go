//go:build !linux

package logger

import "os"

// IsTerminal reports whether f is attached to a terminal.
// Outside Linux it always reports false, so automatic
// formatting falls back to JSON.
func IsTerminal(f *os.File) bool {
	return false
}
