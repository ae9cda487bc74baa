// Package logging bridges zerolog to the behave Logger interface.
//
// The root package logs through a minimal Logger interface and defaults to a
// no-op. Wiring zerolog in is one line:
//
//	logger := logging.New(logging.WithLevel("debug"))
//	journal := behave.NewJournal(adapter, behave.WithLogger(logger))
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/AshkanYarmoradi/go-behave"
)

// Zerolog adapts a zerolog.Logger to the behave Logger interface. Arguments
// are interpreted as alternating key-value pairs, matching how the runtime
// and journal log.
type Zerolog struct {
	logger zerolog.Logger
}

type options struct {
	level  zerolog.Level
	pretty bool
	out    io.Writer
}

// Option configures the logger built by New.
type Option func(*options)

// WithLevel sets the minimum level from its string name
// (debug, info, warn, error). Unknown names fall back to info.
func WithLevel(level string) Option {
	return func(o *options) {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			parsed = zerolog.InfoLevel
		}
		o.level = parsed
	}
}

// WithPretty enables human-readable console output instead of JSON.
func WithPretty(pretty bool) Option {
	return func(o *options) {
		o.pretty = pretty
	}
}

// WithOutput sets the output writer. Defaults to stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// New builds a Zerolog logger with timestamps.
func New(opts ...Option) *Zerolog {
	o := &options{
		level: zerolog.InfoLevel,
		out:   os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}

	out := o.out
	if o.pretty {
		out = zerolog.ConsoleWriter{Out: o.out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).Level(o.level).With().Timestamp().Logger()
	return &Zerolog{logger: logger}
}

// NewZerolog wraps an existing zerolog.Logger.
func NewZerolog(logger zerolog.Logger) *Zerolog {
	return &Zerolog{logger: logger}
}

// Logger returns the underlying zerolog.Logger.
func (l *Zerolog) Logger() zerolog.Logger {
	return l.logger
}

// Debug logs a message at debug level.
func (l *Zerolog) Debug(msg string, args ...any) {
	l.emit(l.logger.Debug(), msg, args)
}

// Info logs a message at info level.
func (l *Zerolog) Info(msg string, args ...any) {
	l.emit(l.logger.Info(), msg, args)
}

// Warn logs a message at warn level.
func (l *Zerolog) Warn(msg string, args ...any) {
	l.emit(l.logger.Warn(), msg, args)
}

// Error logs a message at error level.
func (l *Zerolog) Error(msg string, args ...any) {
	l.emit(l.logger.Error(), msg, args)
}

// emit folds key-value pairs into the event and writes it. A trailing key
// without a value is logged under "missing".
func (l *Zerolog) emit(e *zerolog.Event, msg string, args []any) {
	n := len(args) - len(args)%2
	for i := 0; i < n; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		e = field(e, key, args[i+1])
	}
	if len(args)%2 != 0 {
		e = field(e, "missing", args[len(args)-1])
	}
	e.Msg(msg)
}

// field appends one typed field to the event.
func field(e *zerolog.Event, key string, value any) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case uint64:
		return e.Uint64(key, v)
	case float64:
		return e.Float64(key, v)
	case bool:
		return e.Bool(key, v)
	case time.Duration:
		return e.Dur(key, v)
	case error:
		return e.AnErr(key, v)
	default:
		return e.Interface(key, v)
	}
}

var _ behave.Logger = (*Zerolog)(nil)
