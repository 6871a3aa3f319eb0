package helpers

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogging configures the process-wide zerolog logger. Call once from
// main before anything else logs.
func InitLogging(service string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", service).Logger()

	if os.Getenv("ENV") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}

// Logger wraps a zerolog.Logger scoped with a component name, so each
// subsystem (transport, dispatcher, storage, admin) logs with a consistent
// "component" field instead of a string prefix.
type Logger struct {
	z zerolog.Logger
}

// NewLogger returns a Logger scoped to component.
func NewLogger(component string) *Logger {
	return &Logger{z: log.With().Str("component", component).Logger()}
}

// With returns a copy of l enriched with an additional field, e.g. for
// attaching a connection id or user id to every subsequent line.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{z: l.z.With().Interface(key, value).Logger()}
}

// fields attaches alternating key/value pairs to e as structured fields,
// e.g. fields(e, "user_id", 7, "chat_id", 3) sets both as Interface fields.
// A non-string key or a dangling trailing key is dropped rather than
// panicking, since these pairs come from call sites, not user input.
func fields(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}

// Info logs msg with kv as alternating key/value fields, e.g.
// l.Info("accepted connection", "conn_id", id).
func (l *Logger) Info(msg string, kv ...interface{}) {
	fields(l.z.Info(), kv).Msg(msg)
}

// Warn logs msg with kv as alternating key/value fields.
func (l *Logger) Warn(msg string, kv ...interface{}) {
	fields(l.z.Warn(), kv).Msg(msg)
}

// Error logs msg with err attached plus kv as alternating key/value
// fields.
func (l *Logger) Error(msg string, err error, kv ...interface{}) {
	fields(l.z.Error().Err(err), kv).Msg(msg)
}

// Debug logs msg with kv as alternating key/value fields.
func (l *Logger) Debug(msg string, kv ...interface{}) {
	fields(l.z.Debug(), kv).Msg(msg)
}

// Fatal logs msg with err attached plus kv as alternating key/value
// fields, then terminates the process (zerolog.Event.Msg calls os.Exit(1)
// for an Fatal-level event).
func (l *Logger) Fatal(msg string, err error, kv ...interface{}) {
	fields(l.z.Fatal().Err(err), kv).Msg(msg)
}
