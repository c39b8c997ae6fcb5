package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/bft-labs/unitdebug/pkg/log"
)

// DefaultPath is the output path used when a unit does not name one.
const DefaultPath = "_default"

// SourceQueue returns the conventional source queue of a unit.
func SourceQueue(unitID string) string {
	return unitID + "-queue"
}

// InternalQueue returns the queue holding the in-flight message of source.
func InternalQueue(source string) string {
	return source + "-internal"
}

// Config describes the queues a unit reads from and writes to.
type Config struct {
	// Source is the queue the unit consumes. Empty for units without input.
	Source string

	// Destinations maps output paths to one or more queues.
	Destinations map[string][]string
}

// Pipeline binds a broker to one unit's queues.
type Pipeline struct {
	broker   Broker
	cfg      Config
	internal string
	logger   log.Logger
}

// New creates a pipeline over broker.
func New(broker Broker, cfg Config, logger log.Logger) *Pipeline {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	p := &Pipeline{broker: broker, cfg: cfg, logger: logger}
	if cfg.Source != "" {
		p.internal = InternalQueue(cfg.Source)
	}
	return p
}

// WithBroker returns a copy of the pipeline that uses broker for all queue
// operations. The receiver is not modified.
func (p *Pipeline) WithBroker(broker Broker) *Pipeline {
	c := *p
	c.broker = broker
	return &c
}

// Broker returns the broker the pipeline operates on.
func (p *Pipeline) Broker() Broker { return p.broker }

// Source returns the source queue name.
func (p *Pipeline) Source() string { return p.cfg.Source }

// Internal returns the internal queue name.
func (p *Pipeline) Internal() string { return p.internal }

// Paths returns the configured output paths in lexical order.
func (p *Pipeline) Paths() []string {
	paths := make([]string, 0, len(p.cfg.Destinations))
	for path := range p.cfg.Destinations {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Destinations returns the queues of path.
func (p *Pipeline) Destinations(path string) []string {
	return append([]string(nil), p.cfg.Destinations[path]...)
}

// Connect connects the underlying broker.
func (p *Pipeline) Connect(ctx context.Context) error {
	if err := p.broker.Connect(ctx); err != nil {
		return fmt.Errorf("connect pipeline: %w", err)
	}
	p.logger.Debug("pipeline connected",
		log.String("source", p.cfg.Source),
		log.Any("destinations", p.cfg.Destinations))
	return nil
}

// Receive returns the next message of the source queue. A message left
// unacknowledged in the internal queue is returned again before anything
// new is taken from the source.
func (p *Pipeline) Receive(ctx context.Context) ([]byte, error) {
	if p.cfg.Source == "" {
		return nil, ErrNoSource
	}
	pending, err := p.broker.Len(ctx, p.internal)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		p.logger.Warn("resuming unacknowledged message", log.Queue(p.internal))
		return p.broker.Tail(ctx, p.internal)
	}
	return p.broker.Pop(ctx, p.cfg.Source, p.internal)
}

// Acknowledge drops the in-flight message from the internal queue.
func (p *Pipeline) Acknowledge(ctx context.Context) error {
	if p.internal == "" {
		return ErrNoSource
	}
	return p.broker.Discard(ctx, p.internal)
}

// Send pushes data to every queue of path.
func (p *Pipeline) Send(ctx context.Context, data []byte, path string) error {
	if path == "" {
		path = DefaultPath
	}
	queues, ok := p.cfg.Destinations[path]
	if !ok || len(queues) == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownPath, path)
	}
	for _, q := range queues {
		if err := p.broker.Push(ctx, q, data); err != nil {
			return err
		}
		p.logger.Debug("message pushed", log.Queue(q), log.String("path", path))
	}
	return nil
}
