package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Sink is one output of a Handle with its own minimum level.
type Sink struct {
	Name  string
	Out   io.Writer
	Level Level
}

// StreamSink writes human-readable records to w, typically os.Stderr.
func StreamSink(w io.Writer, level Level) Sink {
	return Sink{
		Name:  "stream",
		Out:   zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: w != os.Stderr},
		Level: level,
	}
}

// FileSink writes JSON records to w, typically a per-unit log file.
func FileSink(w io.Writer, level Level) Sink {
	return Sink{Name: "file", Out: w, Level: level}
}

// Handle is a named logger fanned out to a fixed set of sinks.
// Its verbosity is fixed at construction.
type Handle struct {
	name   string
	level  Level
	sinks  []Sink
	logger zerolog.Logger
}

// Option configures a Handle.
type Option func(*handleOptions)

type handleOptions struct {
	verbosity *Level
}

// WithVerbosity overrides the level of every sink and of the handle itself.
func WithVerbosity(level Level) Option {
	return func(o *handleOptions) {
		o.verbosity = &level
	}
}

// New builds a handle writing to sinks. Without sinks records are discarded.
func New(name string, sinks []Sink, opts ...Option) *Handle {
	var o handleOptions
	for _, opt := range opts {
		opt(&o)
	}

	resolved := make([]Sink, len(sinks))
	copy(resolved, sinks)
	if o.verbosity != nil {
		for i := range resolved {
			resolved[i].Level = *o.verbosity
		}
	}

	level := LevelError
	writers := make([]io.Writer, 0, len(resolved))
	for _, s := range resolved {
		if s.Level < level {
			level = s.Level
		}
		writers = append(writers, &levelWriter{out: s.Out, min: s.Level.zerolog()})
	}
	if o.verbosity != nil {
		level = *o.verbosity
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(out).Level(level.zerolog()).With().Timestamp().Str("unit", name).Logger()
	return &Handle{name: name, level: level, sinks: resolved, logger: logger}
}

// Name returns the name the handle was built with.
func (h *Handle) Name() string { return h.name }

// Level returns the most verbose level any sink accepts.
func (h *Handle) Level() Level { return h.level }

// Sinks returns a copy of the configured sinks with their effective levels.
func (h *Handle) Sinks() []Sink {
	out := make([]Sink, len(h.sinks))
	copy(out, h.sinks)
	return out
}

// With returns a handle that adds fields to every record.
func (h *Handle) With(fields ...Field) *Handle {
	ctx := h.logger.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	clone := *h
	clone.logger = ctx.Logger()
	return &clone
}

// Debug logs a debug-level message.
func (h *Handle) Debug(msg string, fields ...Field) {
	emit(h.logger.Debug(), msg, fields)
}

// Info logs an info-level message.
func (h *Handle) Info(msg string, fields ...Field) {
	emit(h.logger.Info(), msg, fields)
}

// Warn logs a warning-level message.
func (h *Handle) Warn(msg string, fields ...Field) {
	emit(h.logger.Warn(), msg, fields)
}

// Error logs an error-level message.
func (h *Handle) Error(msg string, fields ...Field) {
	emit(h.logger.Error(), msg, fields)
}

func emit(event *zerolog.Event, msg string, fields []Field) {
	if event == nil {
		return
	}
	for _, f := range fields {
		event = addField(event, f)
	}
	event.Msg(msg)
}

// addField adds a Field to a zerolog.Event.
func addField(event *zerolog.Event, f Field) *zerolog.Event {
	switch v := f.Value.(type) {
	case string:
		return event.Str(f.Key, v)
	case int:
		return event.Int(f.Key, v)
	case int64:
		return event.Int64(f.Key, v)
	case float64:
		return event.Float64(f.Key, v)
	case bool:
		return event.Bool(f.Key, v)
	case time.Duration:
		return event.Dur(f.Key, v)
	case error:
		return event.Err(v)
	default:
		return event.Interface(f.Key, v)
	}
}

// levelWriter drops records below min before they reach out.
type levelWriter struct {
	out io.Writer
	min zerolog.Level
}

func (w *levelWriter) Write(p []byte) (int, error) {
	return w.out.Write(p)
}

func (w *levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.min {
		return len(p), nil
	}
	return w.out.Write(p)
}

var _ Logger = (*Handle)(nil)
