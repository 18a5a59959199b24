package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger provides structured logging with redaction support.
// Human-facing lines go to stderr so stdout stays clean for data output.
type Logger struct {
	entry   *logrus.Entry
	debug   bool
	noColor bool
}

// New creates a new logger instance
func New(debug, noColor bool) *Logger {
	return NewWithWriter(stderrWriter{}, debug, noColor)
}

// NewWithWriter creates a logger that writes to w.
func NewWithWriter(w io.Writer, debug, noColor bool) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&glyphFormatter{noColor: noColor})
	if debug {
		base.SetLevel(logrus.DebugLevel)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}

	return &Logger{
		entry:   logrus.NewEntry(base),
		debug:   debug,
		noColor: noColor,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard, false, true)
}

// WithField returns a child logger that appends key=value to every line.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value), debug: l.debug, noColor: l.noColor}
}

// WithFields is WithField for several pairs.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields)), debug: l.debug, noColor: l.noColor}
}

// SetQuiet suppresses everything below error level. Used by the timer
// entrypoint, which reports through its exit code.
func (l *Logger) SetQuiet(quiet bool) {
	switch {
	case quiet:
		l.entry.Logger.SetLevel(logrus.ErrorLevel)
	case l.debug:
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	default:
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

type glyphFormatter struct {
	noColor bool
}

func (f *glyphFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var glyph, color string
	switch e.Level {
	case logrus.DebugLevel, logrus.TraceLevel:
		glyph, color = "[DEBUG]", "36"
	case logrus.InfoLevel:
		glyph, color = "✓", "32"
	case logrus.WarnLevel:
		glyph, color = "⚠", "33"
	default:
		glyph, color = "✗", "31"
	}

	var b bytes.Buffer
	if f.noColor {
		b.WriteString(glyph)
	} else {
		fmt.Fprintf(&b, "\033[%sm%s\033[0m", color, glyph)
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)

	if len(e.Data) > 0 {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
		}
	}
	b.WriteByte('\n')

	return b.Bytes(), nil
}

// stderrWriter resolves os.Stderr on every write so redirection after
// logger construction is honoured.
type stderrWriter struct{}

func (stderrWriter) Write(p []byte) (int, error) {
	return os.Stderr.Write(p)
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces sensitive values in a string with [REDACTED]
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
