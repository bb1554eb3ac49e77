// Package logutil provides a minimal leveled wrapper around [log.Logger].
//
// The repository has no business pulling in a structured logging framework
// for the handful of warn lines the liveness tracker emits (crash cleanup
// of a dead connection's lock file); a tiny prefix-based wrapper over the
// standard logger matches what the rest of the codebase needs.
package logutil

import (
	"log"
	"os"
)

// Logger emits leveled lines to an underlying [log.Logger].
type Logger struct {
	std *log.Logger
}

// New returns a Logger writing to os.Stderr with the given name prefix.
func New(name string) *Logger {
	return &Logger{std: log.New(os.Stderr, name+": ", log.LstdFlags)}
}

// Warnf logs a warn-level message.
func (l *Logger) Warnf(format string, args ...any) {
	l.std.Printf("warn: "+format, args...)
}

// Infof logs an info-level message.
func (l *Logger) Infof(format string, args ...any) {
	l.std.Printf("info: "+format, args...)
}

// Default is the package-wide logger used by components that don't accept
// an injected Logger (mirrors the convenience top-level logger pattern
// common across the example corpus's CLI tools).
var Default = New("sysrepo")
