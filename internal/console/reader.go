package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"golang.org/x/term"
)

// LineReader yields operator input one line at a time. ReadLine returns
// io.EOF when input ends.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// NewLineReader uses readline with history when in is a terminal and a
// plain line scanner otherwise.
func NewLineReader(in io.Reader, out io.Writer) (LineReader, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		rl, err := readline.NewEx(&readline.Config{
			Stdin:           io.NopCloser(f),
			Stdout:          out,
			HistoryFile:     filepath.Join(os.TempDir(), ".unitdebug_history"),
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create readline instance: %w", err)
		}
		return &terminalReader{rl: rl}, nil
	}
	return &scanReader{sc: bufio.NewScanner(in), out: out}, nil
}

type terminalReader struct {
	rl *readline.Instance
}

func (r *terminalReader) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	for {
		line, err := r.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				continue
			}
			return "", nil
		}
		return line, err
	}
}

func (r *terminalReader) Close() error { return r.rl.Close() }

type scanReader struct {
	sc  *bufio.Scanner
	out io.Writer
}

func (r *scanReader) ReadLine(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.sc.Text(), nil
}

func (r *scanReader) Close() error { return nil }
