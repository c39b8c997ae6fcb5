package pipeline

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNoMessage is returned when a queue has nothing to hand out.
	// Callers should poll and retry.
	ErrNoMessage = errors.New("pipeline: no message available")

	// ErrUnknownPath is returned by Send for a path without destination queues.
	ErrUnknownPath = errors.New("pipeline: destination path not configured")

	// ErrNoSource is returned by Receive when the unit has no source queue.
	ErrNoSource = errors.New("pipeline: no source queue configured")

	// ErrNotConnected is returned when a broker is used before Connect.
	ErrNotConnected = errors.New("pipeline: broker not connected")
)

// Broker stores named FIFO queues.
type Broker interface {
	// Connect prepares the broker for use. It is safe to call more than once.
	Connect(ctx context.Context) error

	// Push appends data to the head of queue.
	Push(ctx context.Context, queue string, data []byte) error

	// Pop atomically moves the oldest entry of source to the head of
	// internal and returns it. Returns ErrNoMessage if source is empty.
	Pop(ctx context.Context, source, internal string) ([]byte, error)

	// Tail returns the oldest entry of queue without removing it.
	// Returns ErrNoMessage if queue is empty.
	Tail(ctx context.Context, queue string) ([]byte, error)

	// Discard removes the oldest entry of queue. Discarding from an empty
	// queue is not an error.
	Discard(ctx context.Context, queue string) error

	// Len returns the number of entries in queue.
	Len(ctx context.Context, queue string) (int, error)

	// Close releases broker resources.
	Close() error
}

// MemoryBroker keeps queues in process memory.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string][][]byte
}

// NewMemoryBroker returns an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string][][]byte)}
}

func (b *MemoryBroker) Connect(ctx context.Context) error { return nil }

func (b *MemoryBroker) Push(ctx context.Context, queue string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[queue] = append(b.queues[queue], clone(data))
	return nil
}

func (b *MemoryBroker) Pop(ctx context.Context, source, internal string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[source]
	if len(q) == 0 {
		return nil, ErrNoMessage
	}
	data := q[0]
	b.queues[source] = q[1:]
	b.queues[internal] = append(b.queues[internal], data)
	return clone(data), nil
}

func (b *MemoryBroker) Tail(ctx context.Context, queue string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[queue]
	if len(q) == 0 {
		return nil, ErrNoMessage
	}
	return clone(q[0]), nil
}

func (b *MemoryBroker) Discard(ctx context.Context, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q := b.queues[queue]; len(q) > 0 {
		b.queues[queue] = q[1:]
	}
	return nil
}

func (b *MemoryBroker) Len(ctx context.Context, queue string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue]), nil
}

func (b *MemoryBroker) Close() error { return nil }

func clone(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

var _ Broker = (*MemoryBroker)(nil)
