package logger

import (
	"io"
	"os"
	"strings"

	"github.com/tryfix/log"
	"golang.org/x/term"
)

// Logger is a leveled logger that can be switched off entirely.
type Logger struct {
	enabled bool
	log.Logger
}

// New creates a logger writing to w at the given level (trace, debug,
// info, warn, error). Colors are only used when w is a terminal.
func New(w io.Writer, level string, colors bool) *Logger {
	return &Logger{
		enabled: true,
		Logger: log.Constructor.Log(
			log.WithStdOut(w),
			log.WithColors(colors && isTerminal(w)),
			log.WithLevel(parseLevel(level)),
			log.WithFilePath(false),
		),
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	l := New(io.Discard, "error", false)
	l.enabled = false
	return l
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ValidLevel reports whether level names a known log level.
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "trace":
		return log.TRACE
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}

func (l *Logger) Error(message interface{}, params ...interface{}) {
	if l.enabled {
		l.Logger.Error(message, params...)
	}
}

func (l *Logger) Warn(message interface{}, params ...interface{}) {
	if l.enabled {
		l.Logger.Warn(message, params...)
	}
}

func (l *Logger) Info(message interface{}, params ...interface{}) {
	if l.enabled {
		l.Logger.Info(message, params...)
	}
}

func (l *Logger) Debug(message interface{}, params ...interface{}) {
	if l.enabled {
		l.Logger.Debug(message, params...)
	}
}

func (l *Logger) Trace(message interface{}, params ...interface{}) {
	if l.enabled {
		l.Logger.Trace(message, params...)
	}
}
