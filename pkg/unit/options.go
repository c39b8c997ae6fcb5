package unit

import (
	"time"

	"github.com/bft-labs/unitdebug/pkg/log"
	"github.com/bft-labs/unitdebug/pkg/pipeline"
)

// DefaultPollInterval is how long Start waits before polling an empty
// source queue again.
const DefaultPollInterval = time.Second

// ConfigSource loads unit configuration by id.
type ConfigSource interface {
	// Path is the file the configuration is read from, watched for
	// changes by Start. Empty disables reloading.
	Path() string

	// Load returns the configuration of unit id.
	Load(id string) (Config, error)
}

// Option configures a Runtime.
type Option func(*options)

type options struct {
	config       *Config
	source       ConfigSource
	verbosity    *log.Level
	sinks        []log.Sink
	logDir       string
	broker       pipeline.Broker
	metricsAddr  string
	pollInterval time.Duration
	backoffMax   time.Duration
}

func defaultOptions() options {
	return options{
		pollInterval: DefaultPollInterval,
		backoffMax:   DefaultBackoffMax,
	}
}

// WithConfig uses cfg instead of loading configuration from a source.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = &cfg
	}
}

// WithConfigSource loads the unit's configuration from src and reloads it
// when src's file changes while Start is running.
func WithConfigSource(src ConfigSource) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithVerbosity forces every log sink of the runtime to level, regardless
// of the unit's logging_level.
func WithVerbosity(level log.Level) Option {
	return func(o *options) {
		o.verbosity = &level
	}
}

// WithSinks replaces the default stderr sink. Calling it without sinks
// silences the runtime's logger unless a log directory is set.
func WithSinks(sinks ...log.Sink) Option {
	return func(o *options) {
		o.sinks = make([]log.Sink, len(sinks))
		copy(o.sinks, sinks)
	}
}

// WithLogDir adds a JSON log file <dir>/<id>.log and enables message
// dumps to <dir>/<id>.dump.
func WithLogDir(dir string) Option {
	return func(o *options) {
		o.logDir = dir
	}
}

// WithBroker sets the queue broker. The default is an in-memory broker.
func WithBroker(b pipeline.Broker) Option {
	return func(o *options) {
		o.broker = b
	}
}

// WithMetricsAddr serves the unit's counters on addr at /metrics while
// Start is running.
func WithMetricsAddr(addr string) Option {
	return func(o *options) {
		o.metricsAddr = addr
	}
}

// WithPollInterval sets the delay between polls of an empty source queue.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithBackoffMax caps the delay between retries of a failing message.
func WithBackoffMax(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.backoffMax = d
		}
	}
}
