// Package obs carries the observability plumbing shared across the
// service: the JSON line logger, Prometheus metrics and the HTTP
// instrumentation wrapper.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide logger. One JSON object per line on
// stdout, ready for a log shipper; no prefix, no flags.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest marshals the entry and writes it as a single line. Used
// for access logs and auth-flow diagnostics alike; a value that cannot
// marshal is reported rather than dropped silently.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Printf(`{"type":"error","event":"log_marshal_failed","error":%q}`, err.Error())
		return
	}
	Logger().Println(string(data))
}
