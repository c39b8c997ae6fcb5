// Package log provides the logging handle shared by units and the debugger.
//
// A [Handle] is a named zerolog logger fanned out to one or more [Sink]s.
// Each sink carries its own level, so a unit can write INFO to the terminal
// while keeping DEBUG in its log file:
//
//	h := log.New("my-unit",
//	    log.StreamSink(os.Stderr, log.LevelInfo),
//	    log.FileSink(f, log.LevelDebug),
//	)
//
// The overall verbosity is decided when the handle is built. Passing
// [WithVerbosity] forces every sink to the given level, which is how a
// debug session gets full diagnostics without touching shared state:
//
//	h := log.New("my-unit", sinks, log.WithVerbosity(log.LevelDebug))
//
// Code that only needs to emit records should depend on the [Logger]
// interface. [NoopLogger] discards everything and is meant for tests.
package log
