package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var debugEnabled atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug toggles per-sample trace logging. Ingestion paths log every
// accepted and dropped sample when enabled, which is far too chatty for
// production sensor rates, so it defaults to off.
func SetDebug(on bool) {
	debugEnabled.Store(on)
}

// Debugf logs through Logf only when debug tracing is enabled.
func Debugf(format string, v ...interface{}) {
	if debugEnabled.Load() {
		Logf(format, v...)
	}
}
