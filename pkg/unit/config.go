package unit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/unitdebug/internal/domain"
	"github.com/bft-labs/unitdebug/pkg/log"
	"github.com/bft-labs/unitdebug/pkg/pipeline"
)

// Error procedures applied once retries are exhausted.
const (
	ProcedureStop = "stop"
	ProcedurePass = "pass"
)

// Config is the runtime configuration of one unit instance.
type Config struct {
	Module      string     `yaml:"module"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Enabled     *bool      `yaml:"enabled"`
	Parameters  Parameters `yaml:"parameters"`
}

// Parameters are the free-form settings of a unit.
type Parameters map[string]any

// String returns the parameter as a string, or def when unset.
func (p Parameters) String(key, def string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the parameter as an int, or def when unset or not numeric.
func (p Parameters) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// Bool returns the parameter as a bool, or def when unset.
func (p Parameters) Bool(key string, def bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Seconds interprets the parameter as a number of seconds. Duration
// strings such as "1m30s" are accepted too.
func (p Parameters) Seconds(key string, def time.Duration) time.Duration {
	switch v := p[key].(type) {
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return def
}

// Settings are the parameters the runtime itself interprets.
type Settings struct {
	LoggingLevel      log.Level
	SourceQueue       string
	DestinationQueues map[string][]string

	ErrorProcedure   string
	ErrorMaxRetries  int
	ErrorRetryDelay  time.Duration
	ErrorDumpMessage bool
	ErrorLogMessage  bool

	RateLimit time.Duration
}

// ParseSettings extracts runtime settings from a unit's parameters.
func ParseSettings(id string, p Parameters) (Settings, error) {
	level, err := log.ParseLevel(p.String("logging_level", "INFO"))
	if err != nil {
		return Settings{}, fmt.Errorf("%w: unit %s: %v", domain.ErrInvalidConfig, id, err)
	}

	s := Settings{
		LoggingLevel:     level,
		SourceQueue:      p.String("source_queue", pipeline.SourceQueue(id)),
		ErrorProcedure:   strings.ToLower(p.String("error_procedure", ProcedurePass)),
		ErrorMaxRetries:  p.Int("error_max_retries", 3),
		ErrorRetryDelay:  p.Seconds("error_retry_delay", 15*time.Second),
		ErrorDumpMessage: p.Bool("error_dump_message", true),
		ErrorLogMessage:  p.Bool("error_log_message", false),
		RateLimit:        p.Seconds("rate_limit", 0),
	}
	if s.ErrorProcedure != ProcedureStop && s.ErrorProcedure != ProcedurePass {
		return Settings{}, fmt.Errorf("%w: unit %s: error_procedure must be %q or %q, got %q",
			domain.ErrInvalidConfig, id, ProcedureStop, ProcedurePass, s.ErrorProcedure)
	}
	if s.ErrorMaxRetries < 0 {
		return Settings{}, fmt.Errorf("%w: unit %s: error_max_retries must not be negative", domain.ErrInvalidConfig, id)
	}

	dest, err := parseDestinations(p["destination_queues"])
	if err != nil {
		return Settings{}, fmt.Errorf("%w: unit %s: destination_queues: %v", domain.ErrInvalidConfig, id, err)
	}
	s.DestinationQueues = dest
	return s, nil
}

// parseDestinations accepts a list of queues (the default path) or a map of
// path to a queue or list of queues.
func parseDestinations(v any) (map[string][]string, error) {
	out := make(map[string][]string)
	switch d := v.(type) {
	case nil:
		return out, nil
	case string:
		out[pipeline.DefaultPath] = []string{d}
	case []any:
		qs, err := stringList(d)
		if err != nil {
			return nil, err
		}
		out[pipeline.DefaultPath] = qs
	case []string:
		out[pipeline.DefaultPath] = append([]string(nil), d...)
	case map[string]any:
		for path, q := range d {
			switch qv := q.(type) {
			case string:
				out[path] = []string{qv}
			case []any:
				qs, err := stringList(qv)
				if err != nil {
					return nil, fmt.Errorf("path %s: %v", path, err)
				}
				out[path] = qs
			default:
				return nil, fmt.Errorf("path %s: expected queue name or list, got %T", path, q)
			}
		}
	case map[string][]string:
		for path, qs := range d {
			out[path] = append([]string(nil), qs...)
		}
	default:
		return nil, fmt.Errorf("expected list or mapping, got %T", v)
	}
	return out, nil
}

func stringList(in []any) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, v := range in {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("queue names must be strings, got %T", v)
		}
		out = append(out, s)
	}
	return out, nil
}

// summary renders settings for logs and console snapshots.
func (s Settings) summary() map[string]any {
	paths := make([]string, 0, len(s.DestinationQueues))
	for p := range s.DestinationQueues {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	dest := make(map[string]any, len(paths))
	for _, p := range paths {
		dest[p] = s.DestinationQueues[p]
	}
	return map[string]any{
		"logging_level":      s.LoggingLevel.String(),
		"source_queue":       s.SourceQueue,
		"destination_queues": dest,
		"error_procedure":    s.ErrorProcedure,
		"error_max_retries":  s.ErrorMaxRetries,
		"error_retry_delay":  s.ErrorRetryDelay.String(),
		"error_dump_message": s.ErrorDumpMessage,
		"rate_limit":         s.RateLimit.String(),
	}
}
