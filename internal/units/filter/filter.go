// Package filter implements the experts.filter unit: it routes messages
// according to a boolean expression evaluated over the message fields.
package filter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bft-labs/unitdebug/internal/domain"
	"github.com/bft-labs/unitdebug/pkg/log"
	"github.com/bft-labs/unitdebug/pkg/message"
	"github.com/bft-labs/unitdebug/pkg/pipeline"
	"github.com/bft-labs/unitdebug/pkg/unit"
)

// Module is the registry name of the filter unit.
const Module = "experts.filter"

// Paths a message is sent to besides the default path.
const (
	PathMatch   = "filter_match"
	PathNoMatch = "filter_no_match"
)

// Actions applied to matching messages.
const (
	ActionKeep = "keep"
	ActionDrop = "drop"
)

func init() {
	unit.Register(Module, func() unit.Processor { return &Filter{} })
}

// Filter evaluates filter_expression against every message. The expression
// sees the flattened fields as msg, e.g. msg["source.port"] > 1024.
//
// With filter_action keep, matching messages continue on the default path;
// with drop, the non-matching ones do. Matching and non-matching messages
// are additionally sent to filter_match and filter_no_match when those
// paths are configured.
type Filter struct {
	program *vm.Program
	drop    bool
}

// Init compiles the expression from the unit parameters.
func (f *Filter) Init(rt *unit.Runtime) error {
	params := rt.Parameters()

	source := params.String("filter_expression", "")
	if source == "" {
		return fmt.Errorf("%w: filter_expression is required", domain.ErrInvalidConfig)
	}
	program, err := expr.Compile(source,
		expr.Env(map[string]any{"msg": map[string]any{}}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return fmt.Errorf("%w: filter_expression: %v", domain.ErrInvalidConfig, err)
	}

	switch action := params.String("filter_action", ActionKeep); action {
	case ActionKeep:
		f.drop = false
	case ActionDrop:
		f.drop = true
	default:
		return fmt.Errorf("%w: filter_action must be %q or %q, got %q", domain.ErrInvalidConfig, ActionKeep, ActionDrop, action)
	}

	f.program = program
	rt.Logger().Debug("filter compiled", log.String("expression", source), log.Bool("drop", f.drop))
	return nil
}

// Process routes one message.
func (f *Filter) Process(ctx context.Context, rt *unit.Runtime) error {
	msg, err := rt.ReceiveMessage(ctx)
	if err != nil {
		return err
	}

	matched, err := f.Match(msg)
	if err != nil {
		return err
	}

	var paths []string
	if matched != f.drop {
		paths = append(paths, pipeline.DefaultPath)
	}
	extra := PathNoMatch
	if matched {
		extra = PathMatch
	}
	if len(rt.Pipeline().Destinations(extra)) > 0 {
		paths = append(paths, extra)
	}
	rt.Logger().Debug("filter evaluated", log.Bool("matched", matched), log.Any("paths", paths))

	if len(paths) > 0 {
		if err := rt.SendMessage(ctx, msg, paths...); err != nil {
			return err
		}
	}
	return rt.AcknowledgeMessage(ctx)
}

// Match reports whether msg satisfies the compiled expression.
func (f *Filter) Match(msg *message.Message) (bool, error) {
	fields, err := plainFields(msg)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(f.program, map[string]any{"msg": fields})
	if err != nil {
		return false, fmt.Errorf("evaluate filter_expression: %w", err)
	}
	matched, _ := out.(bool)
	return matched, nil
}

// plainFields returns the message fields as JSON-native Go values so that
// numbers compare as float64 regardless of how they were stored.
func plainFields(msg *message.Message) (map[string]any, error) {
	data, err := msg.Serialize()
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
