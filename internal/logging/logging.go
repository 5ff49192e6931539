// Package logging is the boundary between the runtime and whatever logs its
// messages. The runtime only ever talks to a Logger; New adapts a
// *slog.Logger, and Discard drops everything.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Level is a log severity. Values line up with slog levels so the default
// Logger can pass them through unchanged.
type Level int

const (
	Trace   Level = -8
	Debug   Level = -4
	Info    Level = 0
	Warning Level = 4
	Error   Level = 8
	// Fatal is logged like any other level; it never exits the process.
	Fatal Level = 12
)

func (l Level) String() string {
	switch l {
	case Trace:
		return "TRACE"
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return slog.Level(l).String()
	}
}

// ParseLevel maps a level name, case-insensitively, to its Level.
func ParseLevel(name string) (Level, bool) {
	for _, l := range []Level{Trace, Debug, Info, Warning, Error, Fatal} {
		if strings.EqualFold(name, l.String()) {
			return l, true
		}
	}
	if strings.EqualFold(name, "warn") {
		return Warning, true
	}
	return Info, false
}

// Logger is what the runtime logs through.
//
// Log formats msg with Format before emitting it, so callers write
// "reactor {} stopped" rather than building strings themselves.
type Logger interface {
	Log(level Level, msg string, args ...any)
	LogError(level Level, err error)
	Enabled(level Level) bool
	With(kv ...any) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// New returns a Logger that writes through l. A nil l uses slog.Default.
func New(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}

// Discard returns a Logger that drops every record.
func Discard() Logger {
	return slogLogger{l: slog.New(slog.DiscardHandler)}
}

// NewText returns a Logger writing slog text records to w at or above level.
func NewText(w io.Writer, level Level) Logger {
	return New(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       slog.Level(level),
		ReplaceAttr: replaceLevel,
	})))
}

// replaceLevel renders the two levels slog has no name for.
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if l, ok := a.Value.Any().(slog.Level); ok {
		switch Level(l) {
		case Trace, Fatal, Warning:
			a.Value = slog.StringValue(Level(l).String())
		}
	}
	return a
}

func (s slogLogger) Log(level Level, msg string, args ...any) {
	if !s.Enabled(level) {
		return
	}
	s.l.Log(context.Background(), slog.Level(level), Format(msg, args...))
}

func (s slogLogger) LogError(level Level, err error) {
	if err == nil || !s.Enabled(level) {
		return
	}
	s.l.Log(context.Background(), slog.Level(level), err.Error(), "error", err)
}

func (s slogLogger) Enabled(level Level) bool {
	return s.l.Enabled(context.Background(), slog.Level(level))
}

func (s slogLogger) With(kv ...any) Logger {
	return slogLogger{l: s.l.With(kv...)}
}
