//go:build !noconsolejq

package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/itchyny/gojq"
)

func init() {
	Register("jq", func() (Backend, error) { return jqBackend{}, nil })
}

const jqHelp = `Enter a jq filter; its input is the unit instance, also bound to $self.
  :process      run one processing step
  :receive      receive the next message
  :ack          acknowledge the current message
  :send JSON    send a message on the default path
  :exit         leave the console`

// jqBackend evaluates jq filters against the unit's snapshot.
type jqBackend struct{}

func (jqBackend) Attach(ctx context.Context, s Session) error {
	act := actions{ctx: ctx, target: s.Target}
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.Lines.ReadLine("jq> ")
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.Out)
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)

		switch {
		case line == "":
		case line == ":exit" || line == ":quit" || line == "exit":
			return nil
		case line == ":help" || line == "help":
			fmt.Fprintln(s.Out, jqHelp)
		case line == ":process":
			reportErr(s.Out, act.process(), "processed")
		case line == ":receive":
			v, err := act.receive()
			report(s.Out, v, err)
		case line == ":ack":
			reportErr(s.Out, act.ack(), "acknowledged")
		case strings.HasPrefix(line, ":send "):
			reportErr(s.Out, act.send([]byte(strings.TrimPrefix(line, ":send "))), "sent")
		default:
			if err := runJQ(ctx, line, act, s.Out); err != nil {
				fmt.Fprintf(s.Out, "error: %v\n", err)
			}
		}
	}
}

func runJQ(ctx context.Context, expr string, act actions, out io.Writer) error {
	query, err := gojq.Parse(expr)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	code, err := gojq.Compile(query, gojq.WithVariables([]string{"$self"}))
	if err != nil {
		return fmt.Errorf("compile error: %w", err)
	}
	self, err := act.self()
	if err != nil {
		return err
	}

	iter := code.RunWithContext(ctx, self, self)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := v.(error); isErr {
			return err
		}
		printJSON(out, v)
	}
}
