// Package console attaches an interactive session to a unit instance.
//
// Backends are tried in order: the operator's preferred backend, then the
// fixed fallback list lua, jq, shell. Each backend is probed lazily and
// the first one that loads wins. The lua and jq backends can be left out
// of a build with the noconsolelua and noconsolejq tags.
package console

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/bft-labs/unitdebug/pkg/message"
)

// Fallback is the order in which backends are tried after the preferred one.
var Fallback = []string{"lua", "jq", "shell"}

// Target is the unit instance a console operates on. *unit.Runtime
// implements it.
type Target interface {
	Snapshot() map[string]any
	Process(ctx context.Context) error
	ReceiveMessage(ctx context.Context) (*message.Message, error)
	AcknowledgeMessage(ctx context.Context) error
	SendMessage(ctx context.Context, msg *message.Message, paths ...string) error
}

// Session is what a backend reads from and writes to.
type Session struct {
	Target Target
	Lines  LineReader
	Out    io.Writer
}

// Backend is an interactive console implementation.
type Backend interface {
	// Attach runs the console until the operator exits or ctx is done.
	Attach(ctx context.Context, s Session) error
}

// Probe loads a backend or reports why it cannot be loaded.
type Probe func() (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Probe)
)

// Register makes a backend available under name.
func Register(name string, probe Probe) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = probe
}

// Available lists the registered backends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ReaderFactory opens the line reader of a session.
type ReaderFactory func(in io.Reader, out io.Writer) (LineReader, error)

// Launcher picks and runs a console backend.
type Launcher struct {
	in        io.Reader
	out       io.Writer
	probes    map[string]Probe
	newReader ReaderFactory
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithProbe overrides or adds the probe for name.
func WithProbe(name string, probe Probe) Option {
	return func(l *Launcher) {
		l.probes[strings.ToLower(name)] = probe
	}
}

// WithReaderFactory replaces the terminal-aware line reader.
func WithReaderFactory(f ReaderFactory) Option {
	return func(l *Launcher) {
		l.newReader = f
	}
}

// NewLauncher returns a launcher over the registered backends reading
// operator input from in and writing to out.
func NewLauncher(in io.Reader, out io.Writer, opts ...Option) *Launcher {
	l := &Launcher{
		in:        in,
		out:       out,
		probes:    make(map[string]Probe),
		newReader: NewLineReader,
	}
	registryMu.RLock()
	for name, p := range registry {
		l.probes[name] = p
	}
	registryMu.RUnlock()
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Candidates returns the backends tried for preferred, in order, without
// duplicates.
func Candidates(preferred string) []string {
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	out := make([]string, 0, len(Fallback)+1)
	seen := make(map[string]bool, len(Fallback)+1)
	if preferred != "" {
		out = append(out, preferred)
		seen[preferred] = true
	}
	for _, name := range Fallback {
		if !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	return out
}

// Launch attaches the first loadable backend to target and blocks until
// the operator leaves it. When no backend loads it prints a notice and
// returns nil.
func (l *Launcher) Launch(ctx context.Context, preferred string, target Target) error {
	preferred = strings.ToLower(strings.TrimSpace(preferred))

	for _, name := range Candidates(preferred) {
		probe, ok := l.probes[name]
		if !ok {
			continue
		}
		backend, err := probe()
		if err != nil {
			continue
		}

		if preferred != "" && name != preferred {
			fmt.Fprintf(l.out, "Console %s not available.\n", preferred)
		}
		fmt.Fprintf(l.out, "*** Using console %s. Please use 'self' to access the unit instance properties. ***\n", name)

		lines, err := l.newReader(l.in, l.out)
		if err != nil {
			return fmt.Errorf("open console input: %w", err)
		}
		defer lines.Close()
		return backend.Attach(ctx, Session{Target: target, Lines: lines, Out: l.out})
	}

	fmt.Fprintln(l.out, "Can't run console.")
	return nil
}
