// Package logging provides the component-tagged structured logging used
// throughout loom's runtime substrate.
//
// The core never prints directly: lane pool start and shutdown, runtime
// construction and shutdown, allocator fallbacks, statistics flushes, and
// fatal aborts all log through a Logger scoped to the emitting package via
// Component. Formatting,
// levels, and output routing are delegated to logrus.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields is a convenience alias for structured log attributes.
type Fields = logrus.Fields

// Logger wraps a logrus.Entry pre-tagged with a component name.
type Logger struct {
	entry *logrus.Entry
}

var (
	globalMu  sync.RWMutex
	globalLog = logrus.New()
)

func init() {
	globalLog.SetOutput(os.Stderr)
	globalLog.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	globalLog.SetLevel(logrus.InfoLevel)
}

// Configure adjusts the process-wide logger's level and format. It is safe
// to call concurrently; later calls win.
func Configure(level logrus.Level, json bool) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLog.SetLevel(level)
	if json {
		globalLog.SetFormatter(&logrus.JSONFormatter{})
	} else {
		globalLog.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// Component returns a Logger tagged with the given component name, e.g.
// "loom/lanepool" or "loom/alloc".
func Component(name string) *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return &Logger{entry: globalLog.WithField("component", name)}
}

// With returns a derived Logger carrying additional structured fields.
func (l *Logger) With(fields Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

func (l *Logger) Debug(msg string, fields Fields) { l.log(logrus.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields Fields)  { l.log(logrus.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields Fields)  { l.log(logrus.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields Fields) { l.log(logrus.ErrorLevel, msg, fields) }

// Fatal logs at fatal level and then terminates the process. Use only for
// unrecoverable programming errors or OS resource failures — never for
// recoverable conditions like a speculative conflict or a cooperative
// break.
func (l *Logger) Fatal(msg string, fields Fields) {
	if fields == nil {
		l.entry.Fatal(msg)
		return
	}
	l.entry.WithFields(fields).Fatal(msg)
}

func (l *Logger) log(level logrus.Level, msg string, fields Fields) {
	if fields == nil {
		l.entry.Log(level, msg)
		return
	}
	l.entry.WithFields(fields).Log(level, msg)
}
