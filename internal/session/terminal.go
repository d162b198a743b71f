package session

import (
	"os"

	"golang.org/x/term"
)

// Terminal abstracts raw-mode control of the local terminal so the
// bridge can be exercised in tests without a TTY.
type Terminal interface {
	// MakeRaw puts the terminal into raw mode and returns the function
	// that restores the previous state. The restore function must be
	// safe to call exactly once.
	MakeRaw() (restore func() error, err error)
	// Size returns the terminal dimensions in character cells.
	Size() (width, height int, err error)
}

// StdioTerminal controls the process's controlling terminal via stdin.
type StdioTerminal struct {
	fd int
}

// Compile-time verification that StdioTerminal implements Terminal
var _ Terminal = (*StdioTerminal)(nil)

// NewStdioTerminal returns a Terminal bound to os.Stdin.
func NewStdioTerminal() *StdioTerminal {
	return &StdioTerminal{fd: int(os.Stdin.Fd())}
}

// MakeRaw switches the terminal to raw mode. On a non-terminal stdin
// (pipes, CI) it is a no-op with a no-op restore, so exec sessions still
// work under redirection.
func (t *StdioTerminal) MakeRaw() (func() error, error) {
	if !term.IsTerminal(t.fd) {
		return func() error { return nil }, nil
	}
	state, err := term.MakeRaw(t.fd)
	if err != nil {
		return nil, err
	}
	return func() error { return term.Restore(t.fd, state) }, nil
}

// Size reports the terminal dimensions, defaulting to 80x24 when stdin
// is not a terminal.
func (t *StdioTerminal) Size() (int, int, error) {
	if !term.IsTerminal(t.fd) {
		return 80, 24, nil
	}
	return term.GetSize(t.fd)
}
