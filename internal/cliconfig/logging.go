package cliconfig

import (
	"os"

	"github.com/bft-labs/unitdebug/pkg/log"
)

// Logger returns the logger of the unitdebug command itself. Units log
// through their own handles.
func Logger(level string) *log.Handle {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.LevelInfo
	}
	return log.New("unitdebug", []log.Sink{log.StreamSink(os.Stderr, lvl)})
}
