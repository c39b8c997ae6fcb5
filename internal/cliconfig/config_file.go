package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	RuntimePath  string `toml:"runtime"`
	Broker       string `toml:"broker"`
	QueueDB      string `toml:"queue_db"`
	LogDir       string `toml:"log_dir"`
	LogLevel     string `toml:"log_level"`
	ConsoleKind  string `toml:"console"`
	MetricsAddr  string `toml:"metrics_addr"`
	PollInterval string `toml:"poll_interval"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.unitdebug/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".unitdebug", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("runtime", fc.RuntimePath, &cfg.RuntimePath)
	s.setString("broker", fc.Broker, &cfg.Broker)
	s.setString("queue-db", fc.QueueDB, &cfg.QueueDB)
	s.setString("log-dir", fc.LogDir, &cfg.LogDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("console", fc.ConsoleKind, &cfg.ConsoleKind)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)

	return s.setDuration("poll", fc.PollInterval, &cfg.PollInterval)
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
