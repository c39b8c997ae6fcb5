package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (UNITDEBUG_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("runtime", os.Getenv("UNITDEBUG_RUNTIME"), &cfg.RuntimePath)
	s.setString("broker", os.Getenv("UNITDEBUG_BROKER"), &cfg.Broker)
	s.setString("queue-db", os.Getenv("UNITDEBUG_QUEUE_DB"), &cfg.QueueDB)
	s.setString("log-dir", os.Getenv("UNITDEBUG_LOG_DIR"), &cfg.LogDir)
	s.setString("log-level", os.Getenv("UNITDEBUG_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("console", os.Getenv("UNITDEBUG_CONSOLE"), &cfg.ConsoleKind)
	s.setString("metrics-addr", os.Getenv("UNITDEBUG_METRICS_ADDR"), &cfg.MetricsAddr)

	return s.setDuration("poll", os.Getenv("UNITDEBUG_POLL_INTERVAL"), &cfg.PollInterval)
}
