package debugger

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/bft-labs/unitdebug/internal/console"
	"github.com/bft-labs/unitdebug/pkg/log"
	"github.com/bft-labs/unitdebug/pkg/unit"
)

// Options describe one debugging session.
type Options struct {
	// Module overrides the module reference from the unit's configuration.
	Module string
	UnitID string

	Subcommand    Subcommand
	MessageAction MessageAction
	ConsoleKind   string
	DryRun        bool

	// Message is the payload for "process" (injected) or "message send".
	Message string
}

// Controller owns the unit instance of a session.
type Controller struct {
	registry    *unit.Registry
	unitOpts    []unit.Option
	consoleOpts []console.Option
	in          io.Reader
	out         io.Writer
	logger      log.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithUnitOptions passes options to the runtime of every session.
func WithUnitOptions(opts ...unit.Option) ControllerOption {
	return func(c *Controller) {
		c.unitOpts = append(c.unitOpts, opts...)
	}
}

// WithConsoleOptions configures the console launcher.
func WithConsoleOptions(opts ...console.Option) ControllerOption {
	return func(c *Controller) {
		c.consoleOpts = append(c.consoleOpts, opts...)
	}
}

// WithIO sets the operator's input and output. Defaults are stdin and stdout.
func WithIO(in io.Reader, out io.Writer) ControllerOption {
	return func(c *Controller) {
		c.in = in
		c.out = out
	}
}

// WithLogger sets the logger for session bookkeeping.
func WithLogger(logger log.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController returns a controller resolving units from registry.
func NewController(registry *unit.Registry, opts ...ControllerOption) *Controller {
	c := &Controller{
		registry: registry,
		in:       os.Stdin,
		out:      os.Stdout,
		logger:   log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run instantiates the unit with debug verbosity on every log sink and
// performs the session. Without a subcommand the unit's main loop runs
// until ctx is done. A unit that cannot be resolved yields the registry's
// *domain.LoadError unchanged.
func (c *Controller) Run(ctx context.Context, o Options) error {
	session := uuid.New().String()
	c.logger.Debug("starting debugging session",
		log.String("session", session),
		log.String("unit_id", o.UnitID),
		log.String("subcommand", string(o.Subcommand)),
	)

	opts := append(append([]unit.Option(nil), c.unitOpts...), unit.WithVerbosity(log.LevelDebug))
	rt, err := c.registry.New(o.Module, o.UnitID, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			c.logger.Warn("closing unit failed", log.Err(cerr), log.String("session", session))
		}
	}()

	if o.Subcommand == SubcommandRun {
		return rt.Start(ctx)
	}
	if err := rt.Connect(ctx); err != nil {
		return err
	}

	launcher := console.NewLauncher(c.in, c.out, c.consoleOpts...)
	return NewDispatcher(rt, c.out, launcher).Dispatch(ctx, o)
}
