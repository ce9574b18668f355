// Package errlog appends timestamped narration failures to a plain text file
// that users can attach to bug reports.
package errlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	lineFormat      = "[%d-%d-%d %d:%d:%d] %s: %s\n"
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// Log is an append-only error log. It is safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// New returns a log that appends to path.
func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// NewWithClock returns a log that stamps lines with now.
func NewWithClock(path string, now func() time.Time) *Log {
	return &Log{path: path, now: now}
}

// Path returns the file the log appends to.
func (l *Log) Path() string {
	return l.path
}

// Record appends one line. The file is opened and closed per call so other
// processes can read or rotate it at any time.
func (l *Log) Record(context, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	mkdirErr := os.MkdirAll(filepath.Dir(l.path), dirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create error log directory: %w", mkdirErr)
	}

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to open error log %s: %w", l.path, err)
	}

	_, writeErr := file.WriteString(FormatLine(l.now(), context, message))
	closeErr := file.Close()

	if writeErr != nil {
		return fmt.Errorf("failed to write error log %s: %w", l.path, writeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close error log %s: %w", l.path, closeErr)
	}

	return nil
}

// RecordError is Record with err rendered as the message. A nil log or error
// is ignored.
func (l *Log) RecordError(context string, err error) error {
	if l == nil || err == nil {
		return nil
	}

	return l.Record(context, err.Error())
}

// FormatLine renders one log line without zero padding, in local time.
func FormatLine(stamp time.Time, context, message string) string {
	stamp = stamp.Local()

	return fmt.Sprintf(lineFormat,
		stamp.Year(), int(stamp.Month()), stamp.Day(),
		stamp.Hour(), stamp.Minute(), stamp.Second(),
		context, message)
}
