// Package debugterm implements a minimal raw-mode terminal for driving the
// emulator interactively from the command line: single keypresses step or
// resume execution without waiting on a newline. It is deliberately far
// smaller than a full debugger front-end -- callers own the step/continue
// loop and just ask this package to read one command at a time.
package debugterm

import (
	"fmt"
	"io"

	"github.com/pkg/term"
)

// Command is a single keypress read from the raw terminal.
type Command byte

const (
	CmdStep     Command = 's'
	CmdContinue Command = 'c'
	CmdQuit     Command = 'q'
)

// Terminal is a raw-mode /dev/tty session.
type Terminal struct {
	t      *term.Term
	output io.Writer
}

// Open puts the controlling terminal into raw mode so single keys can be
// read without waiting for Enter.
func Open(output io.Writer) (*Terminal, error) {
	t, err := term.Open("/dev/tty", term.RawMode)
	if err != nil {
		return nil, err
	}
	return &Terminal{t: t, output: output}, nil
}

// Close restores the terminal's original mode.
func (dt *Terminal) Close() error {
	_ = dt.t.Restore()
	return dt.t.Close()
}

// ReadCommand blocks for a single keypress.
func (dt *Terminal) ReadCommand() (Command, error) {
	buf := make([]byte, 1)
	if _, err := dt.t.Read(buf); err != nil {
		return 0, err
	}
	return Command(buf[0]), nil
}

// Printf writes a status line. Raw mode suppresses the terminal's own
// carriage return on newline, so callers get one appended here.
func (dt *Terminal) Printf(format string, args ...interface{}) {
	fmt.Fprintf(dt.output, format+"\r\n", args...)
}
