// Package intercept substitutes controlled behaviour for a unit's pipeline
// interactions: message injection, dry-run sends and acknowledgements, and
// non-destructive peeking at the source queue.
package intercept

import (
	"context"
	"sync"

	"github.com/bft-labs/unitdebug/pkg/log"
	"github.com/bft-labs/unitdebug/pkg/pipeline"
	"github.com/bft-labs/unitdebug/pkg/unit"
)

// Log lines emitted instead of real pipeline writes in dry-run mode.
const (
	DryRunSendNotice = "DRYRUN: Message would be sent now!"
	DryRunAckNotice  = "DRYRUN: Message would be acknowledged now!"
)

// Plan selects the overrides of a debugging session.
type Plan struct {
	// Peek makes receiving read the oldest source entry without moving it.
	Peek bool

	// Inject, when non-nil, is returned verbatim by the next receive
	// instead of anything from the broker.
	Inject []byte

	// DryRun logs sends and acknowledgements instead of performing them.
	DryRun bool
}

// Empty reports whether the plan overrides nothing.
func (p Plan) Empty() bool {
	return !p.Peek && p.Inject == nil && !p.DryRun
}

// Transport builds the transport the plan describes on top of live.
// It never wraps a previously built transport, so building twice is the
// same as building once.
func (p Plan) Transport(live *pipeline.Pipeline, logger log.Logger) unit.Transport {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	var t unit.Transport = live
	if p.Peek {
		t = live.WithBroker(PeekBroker{Broker: live.Broker()})
	}
	if p.Inject != nil {
		t = &injected{inner: t, payload: append([]byte(nil), p.Inject...)}
	}
	if p.DryRun {
		t = &dryRun{inner: t, logger: logger}
	}
	return t
}

// Apply binds the plan's transport to rt, replacing any earlier binding.
func (p Plan) Apply(rt *unit.Runtime) {
	if p.Empty() {
		rt.Bind(nil)
		return
	}
	rt.Bind(p.Transport(rt.Pipeline(), rt.Logger()))
}

// PeekBroker replaces the atomic pop with a read of the oldest entry.
// Every other operation goes to the wrapped Broker.
type PeekBroker struct {
	pipeline.Broker
}

// Pop returns the oldest entry of source and leaves both queues untouched.
func (b PeekBroker) Pop(ctx context.Context, source, internal string) ([]byte, error) {
	return b.Broker.Tail(ctx, source)
}

// injected hands out a fixed payload once, then defers to inner.
type injected struct {
	inner   unit.Transport
	payload []byte

	mu       sync.Mutex
	consumed bool
	holding  bool
}

func (t *injected) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	if !t.consumed {
		t.consumed = true
		t.holding = true
		t.mu.Unlock()
		return append([]byte(nil), t.payload...), nil
	}
	t.holding = false
	t.mu.Unlock()
	return t.inner.Receive(ctx)
}

// Acknowledge is a no-op for the injected payload: it never was in a queue.
func (t *injected) Acknowledge(ctx context.Context) error {
	t.mu.Lock()
	holding := t.holding
	t.holding = false
	t.mu.Unlock()
	if holding {
		return nil
	}
	return t.inner.Acknowledge(ctx)
}

func (t *injected) Send(ctx context.Context, data []byte, path string) error {
	return t.inner.Send(ctx, data, path)
}

type dryRun struct {
	inner  unit.Transport
	logger log.Logger
}

func (t *dryRun) Receive(ctx context.Context) ([]byte, error) {
	return t.inner.Receive(ctx)
}

func (t *dryRun) Acknowledge(ctx context.Context) error {
	t.logger.Info(DryRunAckNotice)
	return nil
}

func (t *dryRun) Send(ctx context.Context, data []byte, path string) error {
	if path == "" {
		path = pipeline.DefaultPath
	}
	t.logger.Info(DryRunSendNotice, log.String("path", path), log.Int("bytes", len(data)))
	return nil
}
