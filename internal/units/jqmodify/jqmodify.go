// Package jqmodify implements the experts.jq unit, which rewrites every
// message with a jq program.
package jqmodify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"

	"github.com/bft-labs/unitdebug/internal/domain"
	"github.com/bft-labs/unitdebug/pkg/message"
	"github.com/bft-labs/unitdebug/pkg/unit"
)

// Module is the registry name of the jq unit.
const Module = "experts.jq"

// DefaultTimeout bounds a single transform.
const DefaultTimeout = time.Second

func init() {
	unit.Register(Module, func() unit.Processor { return &Modify{} })
}

// Modify applies jq_transform to the message object and forwards the
// result. The program must yield exactly one object; a missing "__type"
// member keeps the kind of the input.
type Modify struct {
	code    *gojq.Code
	timeout time.Duration
}

func (m *Modify) Init(rt *unit.Runtime) error {
	params := rt.Parameters()
	src := params.String("jq_transform", "")
	if src == "" {
		return fmt.Errorf("%w: jq_transform is required", domain.ErrInvalidConfig)
	}
	query, err := gojq.Parse(src)
	if err != nil {
		return fmt.Errorf("%w: jq_transform: %v", domain.ErrInvalidConfig, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("%w: jq_transform: %v", domain.ErrInvalidConfig, err)
	}
	m.code = code
	m.timeout = params.Seconds("jq_timeout", DefaultTimeout)
	return nil
}

func (m *Modify) Process(ctx context.Context, rt *unit.Runtime) error {
	msg, err := rt.ReceiveMessage(ctx)
	if err != nil {
		return err
	}
	out, err := m.Transform(ctx, msg)
	if err != nil {
		return err
	}
	if err := rt.SendMessage(ctx, out); err != nil {
		return err
	}
	return rt.AcknowledgeMessage(ctx)
}

// Transform runs the program over msg and returns the resulting message.
func (m *Modify) Transform(ctx context.Context, msg *message.Message) (*message.Message, error) {
	data, err := msg.Serialize()
	if err != nil {
		return nil, err
	}
	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	iter := m.code.RunWithContext(runCtx, input)
	var result any
	count := 0
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq_transform: %w", err)
		}
		count++
		if count > 1 {
			return nil, fmt.Errorf("jq_transform: expected one result, got more")
		}
		result = v
	}
	if count == 0 {
		return nil, fmt.Errorf("jq_transform: expected one result, got none")
	}
	if _, ok := result.(map[string]any); !ok {
		return nil, fmt.Errorf("jq_transform: expected an object, got %T", result)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return message.Unserialize(raw, msg.Kind())
}
