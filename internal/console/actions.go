package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/bft-labs/unitdebug/internal/codec"
)

// actions are the unit operations every backend exposes.
type actions struct {
	ctx    context.Context
	target Target
}

// self returns the target's snapshot as plain JSON values.
func (a actions) self() (any, error) {
	return normalize(a.target.Snapshot())
}

// process runs one step. A panicking step is reported as an error so the
// session survives it.
func (a actions) process() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.target.Process(a.ctx)
}

func (a actions) receive() (any, error) {
	msg, err := a.target.ReceiveMessage(a.ctx)
	if err != nil {
		return nil, err
	}
	return normalize(msg.ToMap())
}

func (a actions) ack() error {
	return a.target.AcknowledgeMessage(a.ctx)
}

// send decodes payload like the message subcommand does, so comments and
// trailing commas are accepted and failures carry a *domain.DecodeError.
func (a actions) send(payload []byte) error {
	msg, err := codec.Decode(string(payload))
	if err != nil {
		return err
	}
	return a.target.SendMessage(a.ctx, msg)
}

// normalize converts v into the value space of encoding/json: maps,
// slices, strings, float64, bool and nil.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func printJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "%v\n", v)
		return
	}
	fmt.Fprintln(w, string(data))
}
