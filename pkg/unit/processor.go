package unit

import "context"

// Processor is the business logic of a unit.
type Processor interface {
	// Init prepares the processor from rt's parameters. It is called once
	// at construction and again after a runtime configuration reload.
	Init(rt *Runtime) error

	// Process handles one message. Errors are returned as-is to the caller.
	Process(ctx context.Context, rt *Runtime) error
}

// Factory creates a fresh, uninitialized Processor.
type Factory func() Processor

// Shutdowner is implemented by processors holding resources.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}
