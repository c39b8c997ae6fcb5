package unit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/bft-labs/unitdebug/internal/domain"
	"github.com/bft-labs/unitdebug/pkg/log"
	"github.com/bft-labs/unitdebug/pkg/message"
	"github.com/bft-labs/unitdebug/pkg/pipeline"
)

// PanicError is a processor panic recovered by the main loop.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("unit panicked: %v", e.Value)
}

// Runtime is one instance of a unit: its configuration, logger, pipeline
// and processor.
type Runtime struct {
	id      string
	opts    options
	factory Factory
	logger  *log.Handle
	metrics *Metrics
	dump    *dumpFile
	lc      *lifecycle
	broker  pipeline.Broker
	closers []io.Closer

	mu         sync.RWMutex
	cfg        Config
	settings   Settings
	processor  Processor
	live       *pipeline.Pipeline
	transport  Transport
	current    *message.Message
	currentRaw []byte
	inFlight   bool
}

func newRuntime(id string, cfg Config, factory Factory, o options) (*Runtime, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty unit id", domain.ErrInvalidConfig)
	}
	settings, err := ParseSettings(id, cfg.Parameters)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		id:       id,
		opts:     o,
		factory:  factory,
		cfg:      cfg,
		settings: settings,
		metrics:  newMetrics(id),
	}

	sinks := o.sinks
	if sinks == nil {
		sinks = []log.Sink{log.StreamSink(os.Stderr, settings.LoggingLevel)}
	}
	if o.logDir != "" {
		if err := os.MkdirAll(o.logDir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(o.logDir, id+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open unit log: %w", err)
		}
		rt.closers = append(rt.closers, f)
		sinks = append(append([]log.Sink(nil), sinks...), log.FileSink(f, settings.LoggingLevel))
		rt.dump = newDumpFile(o.logDir, id)
	}
	var logOpts []log.Option
	if o.verbosity != nil {
		logOpts = append(logOpts, log.WithVerbosity(*o.verbosity))
	}
	rt.logger = log.New(id, sinks, logOpts...)
	rt.lc = newLifecycle(rt.logger)

	rt.broker = o.broker
	if rt.broker == nil {
		rt.broker = pipeline.NewMemoryBroker()
	}
	rt.live = rt.newPipeline(settings)
	rt.transport = rt.live

	proc := factory()
	if err := proc.Init(rt); err != nil {
		rt.closeFiles()
		return nil, fmt.Errorf("init unit %s: %w", id, err)
	}
	rt.processor = proc

	rt.logger.Debug("unit initialized",
		log.String("module", cfg.Module),
		log.String("level", rt.logger.Level().String()),
		log.Queue(settings.SourceQueue),
	)
	return rt, nil
}

func (rt *Runtime) newPipeline(s Settings) *pipeline.Pipeline {
	return pipeline.New(rt.broker, pipeline.Config{
		Source:       s.SourceQueue,
		Destinations: s.DestinationQueues,
	}, rt.logger)
}

// ID returns the unit id.
func (rt *Runtime) ID() string { return rt.id }

// Module returns the resolved module reference.
func (rt *Runtime) Module() string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.cfg.Module
}

// Config returns the unit's current configuration.
func (rt *Runtime) Config() Config {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.cfg
}

// Parameters returns the unit's current parameters.
func (rt *Runtime) Parameters() Parameters {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.cfg.Parameters == nil {
		return Parameters{}
	}
	return rt.cfg.Parameters
}

// Settings returns the runtime settings derived from the parameters.
func (rt *Runtime) Settings() Settings {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.settings
}

// Logger returns the unit's log handle.
func (rt *Runtime) Logger() *log.Handle { return rt.logger }

// Metrics returns the unit's counters.
func (rt *Runtime) Metrics() *Metrics { return rt.metrics }

// State returns the lifecycle state of Start.
func (rt *Runtime) State() State { return rt.lc.State() }

// Processor returns the unit's processor.
func (rt *Runtime) Processor() Processor {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.processor
}

// Pipeline returns the live pipeline, independent of any bound transport.
func (rt *Runtime) Pipeline() *pipeline.Pipeline {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.live
}

// Bind routes every later receive, acknowledge and send through t.
// A nil t restores the live pipeline.
func (rt *Runtime) Bind(t Transport) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if t == nil {
		t = rt.live
	}
	rt.transport = t
}

// Transport returns the transport currently bound.
func (rt *Runtime) Transport() Transport {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.transport
}

// CurrentMessage returns the last message received and not yet
// acknowledged, or nil.
func (rt *Runtime) CurrentMessage() *message.Message {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.current
}

func (rt *Runtime) inFlightMessage() ([]byte, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.currentRaw, rt.inFlight
}

// Connect connects the live pipeline.
func (rt *Runtime) Connect(ctx context.Context) error {
	return rt.Pipeline().Connect(ctx)
}

// ReceiveMessage takes the next message from the bound transport. Payloads
// without a type are read as events.
func (rt *Runtime) ReceiveMessage(ctx context.Context) (*message.Message, error) {
	raw, err := rt.Transport().Receive(ctx)
	if err != nil {
		return nil, err
	}
	rt.metrics.received.Inc()

	rt.mu.Lock()
	rt.currentRaw = raw
	rt.inFlight = true
	rt.current = nil
	rt.mu.Unlock()

	msg, err := message.Unserialize(raw, message.KindEvent)
	if err != nil {
		return nil, fmt.Errorf("received message is invalid: %w", err)
	}

	rt.mu.Lock()
	rt.current = msg
	rt.mu.Unlock()

	rt.logger.Debug("received message", log.Int("fields", msg.Len()))
	return msg, nil
}

// AcknowledgeMessage marks the in-flight message as processed.
func (rt *Runtime) AcknowledgeMessage(ctx context.Context) error {
	if err := rt.Transport().Acknowledge(ctx); err != nil {
		return err
	}
	rt.metrics.acknowledged.Inc()

	rt.mu.Lock()
	rt.current = nil
	rt.currentRaw = nil
	rt.inFlight = false
	rt.mu.Unlock()

	rt.logger.Debug("message acknowledged")
	return nil
}

// SendMessage serializes msg and sends it to each of paths, or to the
// default path when none is given. A nil msg is logged and ignored.
func (rt *Runtime) SendMessage(ctx context.Context, msg *message.Message, paths ...string) error {
	if msg == nil {
		rt.logger.Warn("ignoring empty message")
		return nil
	}
	data, err := msg.Serialize()
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}
	if len(paths) == 0 {
		paths = []string{pipeline.DefaultPath}
	}
	t := rt.Transport()
	for _, path := range paths {
		if err := t.Send(ctx, data, path); err != nil {
			return err
		}
		rt.metrics.sent.Inc()
	}
	return nil
}

// Process runs the processor once against the bound transport. Errors are
// returned unwrapped and panics are not recovered.
func (rt *Runtime) Process(ctx context.Context) error {
	return rt.Processor().Process(ctx, rt)
}

func (rt *Runtime) processSafely(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return rt.Process(ctx)
}

// Start runs the main loop until ctx is done or the unit stops itself
// after repeated failures with error_procedure "stop".
func (rt *Runtime) Start(ctx context.Context) error {
	if err := rt.lc.transition(StateStarting, "start requested"); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := rt.Connect(ctx); err != nil {
		_ = rt.lc.transition(StateCrashed, err.Error())
		return err
	}

	var wg sync.WaitGroup
	if addr := rt.opts.metricsAddr; addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.metrics.serve(ctx, addr, rt.logger)
		}()
	}

	var reload <-chan struct{}
	if src := rt.opts.source; src != nil && src.Path() != "" {
		ch, err := watchConfig(ctx, src.Path(), reloadDebounce, rt.logger)
		if err != nil {
			rt.logger.Warn("runtime configuration will not be reloaded", log.Err(err))
		} else {
			reload = ch
		}
	}

	_ = rt.lc.transition(StateRunning, "pipeline connected")
	rt.logger.Info("unit started", log.String("module", rt.Module()), log.Queue(rt.Settings().SourceQueue))

	err := rt.run(ctx, reload)
	cancel()
	wg.Wait()

	if err != nil {
		_ = rt.lc.transition(StateCrashed, err.Error())
		return err
	}
	_ = rt.lc.transition(StateStopping, "context done")
	_ = rt.lc.transition(StateStopped, "main loop finished")
	rt.logger.Info("unit stopped")
	return nil
}

func (rt *Runtime) run(ctx context.Context, reload <-chan struct{}) error {
	s := rt.Settings()
	bo := newBackoff(s.ErrorRetryDelay, rt.opts.backoffMax)
	retries := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-reload:
			if !ok {
				reload = nil
				continue
			}
			rt.reload()
			s = rt.Settings()
			bo = newBackoff(s.ErrorRetryDelay, rt.opts.backoffMax)
			continue
		default:
		}

		err := rt.processSafely(ctx)
		switch {
		case err == nil:
			retries = 0
			bo.Reset()
			if s.RateLimit > 0 {
				rt.logger.Debug("rate limited", log.Duration("delay", s.RateLimit))
				if sleepContext(ctx, s.RateLimit) != nil {
					return nil
				}
			}

		case errors.Is(err, pipeline.ErrNoMessage):
			if sleepContext(ctx, rt.opts.pollInterval) != nil {
				return nil
			}

		case ctx.Err() != nil:
			return nil

		default:
			rt.metrics.failures.Inc()
			retries++
			fields := []log.Field{log.Err(err), log.Int("retry", retries), log.Int("max_retries", s.ErrorMaxRetries)}
			if raw, ok := rt.inFlightMessage(); ok && s.ErrorLogMessage {
				fields = append(fields, log.String("message", string(raw)))
			}
			rt.logger.Error("processing failed", fields...)

			if retries <= s.ErrorMaxRetries {
				if bo.Sleep(ctx) != nil {
					return nil
				}
				continue
			}
			retries = 0
			bo.Reset()
			if stopErr := rt.giveUp(ctx, err, s); stopErr != nil {
				return stopErr
			}
		}
	}
}

// giveUp applies error_procedure once retries are exhausted. A non-nil
// return stops the main loop.
func (rt *Runtime) giveUp(ctx context.Context, procErr error, s Settings) error {
	if s.ErrorProcedure == ProcedureStop {
		rt.logger.Error("stopping unit after repeated failures", log.Err(procErr))
		return fmt.Errorf("unit %s stopped after %d retries: %w", rt.id, s.ErrorMaxRetries, procErr)
	}

	raw, inFlight := rt.inFlightMessage()
	if !inFlight {
		return nil
	}
	if s.ErrorDumpMessage && rt.dump != nil {
		var trace string
		var pe *PanicError
		if errors.As(procErr, &pe) {
			trace = pe.Stack
		}
		entry := newDumpEntry(rt.id, s.SourceQueue, procErr, trace, raw)
		if err := rt.dump.Append(entry); err != nil {
			rt.logger.Error("dumping message failed", log.Err(err), log.String("path", rt.dump.Path()))
		} else {
			rt.logger.Info("message dumped", log.String("path", rt.dump.Path()))
		}
	}
	if err := rt.AcknowledgeMessage(ctx); err != nil {
		return fmt.Errorf("acknowledge failed message: %w", err)
	}
	rt.logger.Info("failed message passed")
	return nil
}

// reload re-reads the unit's configuration and reinitializes a fresh
// processor. The old configuration stays in place when anything fails.
func (rt *Runtime) reload() {
	cfg, err := rt.opts.source.Load(rt.id)
	if err != nil {
		rt.logger.Error("reloading configuration failed", log.Err(err))
		return
	}
	settings, err := ParseSettings(rt.id, cfg.Parameters)
	if err != nil {
		rt.logger.Error("reloading configuration failed", log.Err(err))
		return
	}

	rt.mu.Lock()
	if cfg.Module != "" && cfg.Module != rt.cfg.Module {
		rt.logger.Warn("module change requires a restart",
			log.String("running", rt.cfg.Module), log.String("configured", cfg.Module))
	}
	cfg.Module = rt.cfg.Module
	prevCfg, prevSettings, prevLive, prevTransport := rt.cfg, rt.settings, rt.live, rt.transport
	rt.cfg = cfg
	rt.settings = settings
	rt.live = rt.newPipeline(settings)
	if prevTransport == Transport(prevLive) {
		rt.transport = rt.live
	}
	rt.mu.Unlock()

	proc := rt.factory()
	if err := proc.Init(rt); err != nil {
		rt.mu.Lock()
		rt.cfg, rt.settings, rt.live, rt.transport = prevCfg, prevSettings, prevLive, prevTransport
		rt.mu.Unlock()
		rt.logger.Error("reinitializing unit failed", log.Err(err))
		return
	}

	rt.mu.Lock()
	old := rt.processor
	rt.processor = proc
	rt.mu.Unlock()
	shutdownProcessor(old, rt.logger)

	rt.metrics.reloads.Inc()
	rt.logger.Info("configuration reloaded")
}

// Snapshot describes the runtime for interactive inspection.
func (rt *Runtime) Snapshot() map[string]any {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	paths := make(map[string]any)
	for _, p := range rt.live.Paths() {
		paths[p] = rt.live.Destinations(p)
	}
	params := make(map[string]any, len(rt.cfg.Parameters))
	for k, v := range rt.cfg.Parameters {
		params[k] = v
	}
	snap := map[string]any{
		"id":             rt.id,
		"module":         rt.cfg.Module,
		"name":           rt.cfg.Name,
		"state":          rt.lc.State().String(),
		"parameters":     params,
		"settings":       rt.settings.summary(),
		"source_queue":   rt.live.Source(),
		"internal_queue": rt.live.Internal(),
		"paths":          paths,
		"log_level":      rt.logger.Level().String(),
		"message":        nil,
	}
	if rt.current != nil {
		snap["message"] = rt.current.ToMap()
	}
	return snap
}

// Close shuts the processor down and releases the broker and log files.
func (rt *Runtime) Close() error {
	shutdownProcessor(rt.Processor(), rt.logger)
	err := rt.broker.Close()
	if ferr := rt.closeFiles(); err == nil {
		err = ferr
	}
	return err
}

func (rt *Runtime) closeFiles() error {
	var first error
	for _, c := range rt.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}

func shutdownProcessor(p Processor, logger log.Logger) {
	s, ok := p.(Shutdowner)
	if !ok {
		return
	}
	if err := s.Shutdown(context.Background()); err != nil {
		logger.Warn("processor shutdown failed", log.Err(err))
	}
}
