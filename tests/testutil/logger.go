package testutil

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systmms/vaultctl/internal/logging"
)

// TestLogger captures the output of a real logging.Logger so tests can
// assert on what was logged, including redaction.
//
// Example usage:
//
//	logger := NewTestLogger(t)
//	auth := auth.New(client, cache, opts, logger.Logger)
//	...
//	logger.AssertContains(t, "Token renewed")
type TestLogger struct {
	*logging.Logger

	buf *syncBuffer
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// NewTestLogger returns a capturing logger without colour or debug output.
func NewTestLogger(t *testing.T) *TestLogger {
	t.Helper()
	return NewTestLoggerWithDebug(t, false)
}

// NewTestLoggerWithDebug returns a capturing logger with debug output
// enabled or disabled.
func NewTestLoggerWithDebug(t *testing.T, debug bool) *TestLogger {
	t.Helper()

	buf := &syncBuffer{}
	return &TestLogger{
		Logger: logging.NewWithWriter(buf, debug, true),
		buf:    buf,
	}
}

// GetOutput returns everything logged so far.
func (l *TestLogger) GetOutput() string {
	return l.buf.String()
}

// Clear discards captured output.
func (l *TestLogger) Clear() {
	l.buf.Reset()
}

// Capture clears the buffer, runs fn and returns what fn logged.
func (l *TestLogger) Capture(fn func()) string {
	l.Clear()
	fn()
	return l.GetOutput()
}

// AssertContains verifies the captured output contains substr.
func (l *TestLogger) AssertContains(t *testing.T, substr string) {
	t.Helper()
	assert.Contains(t, l.GetOutput(), substr, "Expected log output to contain %q", substr)
}

// AssertNotContains verifies the captured output does not contain substr.
func (l *TestLogger) AssertNotContains(t *testing.T, substr string) {
	t.Helper()
	assert.NotContains(t, l.GetOutput(), substr, "Expected log output to NOT contain %q", substr)
}
