package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"UNITDEBUG_RUNTIME":       "/env/runtime.yaml",
				"UNITDEBUG_BROKER":        "memory",
				"UNITDEBUG_QUEUE_DB":      "/env/queues.db",
				"UNITDEBUG_LOG_DIR":       "/env/log",
				"UNITDEBUG_LOG_LEVEL":     "debug",
				"UNITDEBUG_CONSOLE":       "jq",
				"UNITDEBUG_METRICS_ADDR":  ":9100",
				"UNITDEBUG_POLL_INTERVAL": "250ms",
			},
			changed: map[string]bool{},
			expected: Config{
				RuntimePath:  "/env/runtime.yaml",
				Broker:       "memory",
				QueueDB:      "/env/queues.db",
				LogDir:       "/env/log",
				LogLevel:     "debug",
				ConsoleKind:  "jq",
				MetricsAddr:  ":9100",
				PollInterval: 250 * time.Millisecond,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"UNITDEBUG_RUNTIME": "/env/runtime.yaml",
				"UNITDEBUG_BROKER":  "memory",
			},
			changed: map[string]bool{"runtime": true},
			initial: Config{RuntimePath: "/flag/runtime.yaml"},
			expected: Config{
				RuntimePath: "/flag/runtime.yaml",
				Broker:      "memory",
			},
		},
		{
			name: "returns error for invalid duration",
			envVars: map[string]string{
				"UNITDEBUG_POLL_INTERVAL": "not-a-duration",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr && err == nil {
				t.Error("ApplyEnvConfig() expected error but got nil")
				return
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ApplyEnvConfig() unexpected error: %v", err)
				return
			}
			if !tt.wantErr && cfg != tt.expected {
				t.Errorf("ApplyEnvConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}
