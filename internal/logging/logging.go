// Package logging is a thin wrapper over the standard library's log
// package. cmd/* entrypoints keep the teacher's emoji-tagged banner style
// directly via the log package for startup/shutdown lines; this package
// exists for components that log structured key/value pairs (queue
// depths, upsert decisions, delivery outcomes) without reaching for a
// new third-party logger — nothing in the pack specializes in structured
// logging, so stdlib log stays the grounded choice.
package logging

import (
	"fmt"
	"log"
	"strings"
)

// Field is one structured key/value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

// F builds a Field inline: logging.F("icao24", state.ICAO24).
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger prefixes every line with a component name and appends fields in
// key=value form, matching the teacher's "✓ <message>" banner style but
// for routine operational lines rather than CLI startup banners.
type Logger struct {
	component string
}

// New returns a Logger tagged with component (e.g. "ingest", "webhook").
func New(component string) *Logger {
	return &Logger{component: component}
}

// Info logs a routine event.
func (l *Logger) Info(msg string, fields ...Field) {
	log.Print(l.format("INFO", msg, fields))
}

// Warn logs a recoverable problem.
func (l *Logger) Warn(msg string, fields ...Field) {
	log.Print(l.format("WARN", msg, fields))
}

// Error logs a failed operation that was not retried or was exhausted.
func (l *Logger) Error(msg string, fields ...Field) {
	log.Print(l.format("ERROR", msg, fields))
}

func (l *Logger) format(level, msg string, fields []Field) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", level, l.component, msg)
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	return b.String()
}
