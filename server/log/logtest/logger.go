// Package logtest contains Loggers to use in tests.
package logtest

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/jacobpatterson1549/deathroll/server/log"
)

// DiscardLogger ignores everything that is logged to it.
var DiscardLogger log.Logger = discardLogger{}

type discardLogger struct{}

// Printf does nothing.
func (discardLogger) Printf(format string, v ...interface{}) {}

// Logger records everything that is logged to it so tests can inspect it.  It is safe for concurrent use.
type Logger struct {
	buf *bytes.Buffer
	mu  sync.RWMutex
}

var _ log.Logger = NewLogger()

// NewLogger creates a Logger with an empty record.
func NewLogger() *Logger {
	l := Logger{
		buf: new(bytes.Buffer),
	}
	return &l
}

// Printf records the formatted values.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.buf, format, v...)
}

// String returns everything that has been recorded.
func (l *Logger) String() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.buf.String()
}

// Empty reports whether nothing has been recorded.
func (l *Logger) Empty() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.buf.Len() == 0
}

// Contains reports whether the text has been recorded.
func (l *Logger) Contains(text string) bool {
	return strings.Contains(l.String(), text)
}

// Reset clears the record.
func (l *Logger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Reset()
}
