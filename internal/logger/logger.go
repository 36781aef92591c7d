// Package logger builds zerolog loggers and carries them through contexts.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type contextKey struct{}

// Output encodings accepted by Setup.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New returns an info level console logger. Commands use it until their
// configuration is loaded.
func New() zerolog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel returns a console logger at the named level.
func NewWithLevel(level string) zerolog.Logger {
	return Setup(level, FormatConsole)
}

// Setup builds the process logger on stdout. Format "json" writes one JSON
// object per line; anything else writes human readable console lines.
func Setup(level, format string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if !strings.EqualFold(format, FormatJSON) {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(out).Level(ParseLevel(level))
}

// ParseLevel maps "debug", "info", "warn" and friends onto a zerolog level.
// Unknown or empty names are info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// NewWithWriter returns a JSON logger writing to w.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored by WithContext, or New() when there
// is none.
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(contextKey{}).(zerolog.Logger); ok {
		return l
	}
	return New()
}

// WithFields returns a child of l carrying fields.
func WithFields(l zerolog.Logger, fields map[string]interface{}) zerolog.Logger {
	return l.With().Fields(fields).Logger()
}
