package unit

import (
	"errors"
	"testing"

	"github.com/bft-labs/unitdebug/internal/domain"
	"github.com/bft-labs/unitdebug/pkg/log"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStopped, "Stopped"},
		{StateStarting, "Starting"},
		{StateRunning, "Running"},
		{StateStopping, "Stopping"},
		{StateCrashed, "Crashed"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestLifecycle_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []State
		next    State
		wantErr error
	}{
		{"stopped to starting", nil, StateStarting, nil},
		{"stopped to running", nil, StateRunning, domain.ErrNotRunning},
		{"starting to running", []State{StateStarting}, StateRunning, nil},
		{"starting to crashed", []State{StateStarting}, StateCrashed, nil},
		{"starting to stopped", []State{StateStarting}, StateStopped, domain.ErrAlreadyRunning},
		{"running to stopping", []State{StateStarting, StateRunning}, StateStopping, nil},
		{"running to starting", []State{StateStarting, StateRunning}, StateStarting, domain.ErrAlreadyRunning},
		{"stopping to stopped", []State{StateStarting, StateRunning, StateStopping}, StateStopped, nil},
		{"crashed to starting", []State{StateStarting, StateCrashed}, StateStarting, nil},
		{"crashed to running", []State{StateStarting, StateCrashed}, StateRunning, domain.ErrNotRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLifecycle(log.NewNoopLogger())
			for _, s := range tt.path {
				if err := l.transition(s, "setup"); err != nil {
					t.Fatalf("setup transition to %v: %v", s, err)
				}
			}

			err := l.transition(tt.next, "test")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("transition() error = %v, want %v", err, tt.wantErr)
			}
			want := tt.next
			if tt.wantErr != nil && len(tt.path) > 0 {
				want = tt.path[len(tt.path)-1]
			} else if tt.wantErr != nil {
				want = StateStopped
			}
			if got := l.State(); got != want {
				t.Errorf("State() = %v, want %v", got, want)
			}
		})
	}
}
