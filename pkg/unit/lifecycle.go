package unit

import (
	"sync"

	"github.com/bft-labs/unitdebug/internal/domain"
	"github.com/bft-labs/unitdebug/pkg/log"
)

// State is the lifecycle state of a running unit.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// lifecycle guards the state machine of Runtime.Start.
type lifecycle struct {
	mu     sync.RWMutex
	state  State
	logger log.Logger
}

func newLifecycle(logger log.Logger) *lifecycle {
	return &lifecycle{state: StateStopped, logger: logger}
}

func (l *lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// transition moves to next if the edge is allowed:
// Stopped/Crashed -> Starting -> Running -> Stopping -> Stopped, and any
// active state -> Crashed.
func (l *lifecycle) transition(next State, reason string) error {
	l.mu.Lock()
	prev := l.state

	var err error
	switch prev {
	case StateStopped, StateCrashed:
		if next != StateStarting {
			err = domain.ErrNotRunning
		}
	case StateStarting:
		if next != StateRunning && next != StateCrashed {
			err = domain.ErrAlreadyRunning
		}
	case StateRunning:
		if next != StateStopping && next != StateCrashed {
			err = domain.ErrAlreadyRunning
		}
	case StateStopping:
		if next != StateStopped && next != StateCrashed {
			err = domain.ErrAlreadyRunning
		}
	}
	if err != nil {
		l.mu.Unlock()
		return err
	}
	l.state = next
	l.mu.Unlock()

	l.logger.Debug("state transition",
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason),
	)
	return nil
}
