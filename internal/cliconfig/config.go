package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bft-labs/unitdebug/pkg/log"
)

// Broker kinds.
const (
	BrokerSQLite = "sqlite"
	BrokerMemory = "memory"
)

// Config holds CLI configuration for unitdebug.
type Config struct {
	RuntimePath string
	Broker      string
	QueueDB     string
	LogDir      string
	LogLevel    string

	// ConsoleKind is the preferred console when none is given on the
	// command line.
	ConsoleKind string

	MetricsAddr  string
	PollInterval time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		RuntimePath:  defaultPath("runtime.yaml"),
		Broker:       BrokerSQLite,
		QueueDB:      defaultPath("queues.db"),
		LogLevel:     "info",
		PollInterval: time.Second,
	}
}

func defaultPath(name string) string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".unitdebug", name)
	}
	return ""
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.RuntimePath == "" {
		return fmt.Errorf("runtime configuration path is required")
	}
	switch c.Broker {
	case BrokerSQLite:
		if c.QueueDB == "" {
			return fmt.Errorf("queue-db is required for the sqlite broker")
		}
	case BrokerMemory:
	default:
		return fmt.Errorf("broker must be %q or %q, got %q", BrokerSQLite, BrokerMemory, c.Broker)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}
