package unit

import (
	"context"

	"github.com/bft-labs/unitdebug/pkg/pipeline"
)

// Transport carries raw messages between a Runtime and its queues.
// *pipeline.Pipeline is the production implementation.
type Transport interface {
	// Receive returns the next raw message.
	Receive(ctx context.Context) ([]byte, error)

	// Acknowledge marks the last received message as processed.
	Acknowledge(ctx context.Context) error

	// Send delivers data to the queues of path.
	Send(ctx context.Context, data []byte, path string) error
}

var _ Transport = (*pipeline.Pipeline)(nil)
