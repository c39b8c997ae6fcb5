package debugger

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bft-labs/unitdebug/internal/codec"
	"github.com/bft-labs/unitdebug/internal/console"
	"github.com/bft-labs/unitdebug/internal/intercept"
	"github.com/bft-labs/unitdebug/pkg/log"
	"github.com/bft-labs/unitdebug/pkg/pipeline"
	"github.com/bft-labs/unitdebug/pkg/unit"
)

// Subcommand selects what a session does with the unit.
type Subcommand string

const (
	SubcommandRun     Subcommand = ""
	SubcommandProcess Subcommand = "process"
	SubcommandMessage Subcommand = "message"
	SubcommandConsole Subcommand = "console"
)

// MessageAction is the operation of the message subcommand.
type MessageAction string

const (
	ActionGet  MessageAction = "get"
	ActionPop  MessageAction = "pop"
	ActionSend MessageAction = "send"
)

// Dispatcher runs one subcommand against a connected runtime.
type Dispatcher struct {
	rt       *unit.Runtime
	out      io.Writer
	logger   log.Logger
	launcher *console.Launcher
}

// NewDispatcher returns a dispatcher printing operator-facing lines to out.
func NewDispatcher(rt *unit.Runtime, out io.Writer, launcher *console.Launcher) *Dispatcher {
	return &Dispatcher{rt: rt, out: out, logger: rt.Logger(), launcher: launcher}
}

// Dispatch performs o.Subcommand. Unknown subcommands and actions are
// reported to the operator and are not errors.
func (d *Dispatcher) Dispatch(ctx context.Context, o Options) error {
	switch o.Subcommand {
	case SubcommandProcess:
		return d.process(ctx, o.DryRun, o.Message)
	case SubcommandMessage:
		return d.message(ctx, o.MessageAction, o.Message)
	case SubcommandConsole:
		return d.launcher.Launch(ctx, o.ConsoleKind, d.rt)
	default:
		fmt.Fprintf(d.out, "Subcommand %s not known.\n", o.Subcommand)
		return nil
	}
}

// process runs exactly one processing step. Its error is returned as-is
// and a panic is not recovered.
func (d *Dispatcher) process(ctx context.Context, dryRun bool, msg string) error {
	plan := intercept.Plan{DryRun: dryRun}
	if msg != "" {
		plan.Inject = []byte(msg)
		d.logger.Info("Message from cli will be used when processing.")
	}
	if dryRun {
		fmt.Fprintln(d.out, "Dryrun only, no message will be really sent through.")
	}
	plan.Apply(d.rt)

	d.logger.Info("Processing...")
	return d.rt.Process(ctx)
}

func (d *Dispatcher) message(ctx context.Context, action MessageAction, text string) error {
	switch action {
	case ActionGet:
		d.logger.Info("Trying to get the message...")
		intercept.Plan{Peek: true}.Apply(d.rt)
		msg, err := d.rt.ReceiveMessage(ctx)
		if errors.Is(err, pipeline.ErrNoMessage) {
			fmt.Fprintln(d.out, "No message available.")
			return nil
		}
		if err != nil {
			return err
		}
		printMessage(d.out, msg)
		return nil

	case ActionPop:
		d.logger.Info("Trying to pop the message...")
		msg, err := d.rt.ReceiveMessage(ctx)
		if errors.Is(err, pipeline.ErrNoMessage) {
			fmt.Fprintln(d.out, "No message available.")
			return nil
		}
		if err != nil {
			return err
		}
		printMessage(d.out, msg)
		return d.rt.AcknowledgeMessage(ctx)

	case ActionSend:
		if text == "" {
			d.logger.Info("Message missing!")
			return nil
		}
		msg, err := codec.Decode(text)
		if err != nil {
			fmt.Fprintf(d.out, "Message can not be parsed from JSON: %v\n", err)
			return nil
		}
		if err := d.rt.SendMessage(ctx, msg); err != nil {
			return err
		}
		d.logger.Info("Message sent to output pipelines.")
		return nil

	default:
		fmt.Fprintf(d.out, "Message action %s not known.\n", action)
		return nil
	}
}
