package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

func init() {
	Register("shell", func() (Backend, error) { return shellBackend{}, nil })
}

const shellHelp = `Commands:
  self          show the unit instance
  process       run one processing step
  receive       receive the next message
  ack           acknowledge the current message
  send JSON     send a message on the default path
  help          show this help
  exit          leave the console`

// shellBackend is a minimal command interpreter that is always available.
type shellBackend struct{}

func (shellBackend) Attach(ctx context.Context, s Session) error {
	act := actions{ctx: ctx, target: s.Target}
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.Lines.ReadLine("(unit) ")
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.Out)
			return nil
		}
		if err != nil {
			return err
		}

		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		switch cmd {
		case "":
		case "exit", "quit":
			return nil
		case "help", "?":
			fmt.Fprintln(s.Out, shellHelp)
		case "self":
			v, err := act.self()
			report(s.Out, v, err)
		case "process":
			reportErr(s.Out, act.process(), "processed")
		case "receive":
			v, err := act.receive()
			report(s.Out, v, err)
		case "ack":
			reportErr(s.Out, act.ack(), "acknowledged")
		case "send":
			if strings.TrimSpace(arg) == "" {
				fmt.Fprintln(s.Out, "usage: send JSON")
				continue
			}
			reportErr(s.Out, act.send([]byte(arg)), "sent")
		default:
			fmt.Fprintf(s.Out, "Unknown command %q. Type 'help' for a list.\n", cmd)
		}
	}
}

func report(w io.Writer, v any, err error) {
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	printJSON(w, v)
}

func reportErr(w io.Writer, err error, ok string) {
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	fmt.Fprintln(w, ok)
}
