// Package logger provides leveled logging for the ingestion engine.
// The engine runs unattended for long stretches, so every line carries
// a timestamp. Debug and Info are gated behind the --verbose flag;
// warnings always print, they signal degraded sources the user should
// know about.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	clock             = time.Now
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		emit("DEBUG", format, args...)
	}
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		emit("INFO", format, args...)
	}
}

// Warn prints a warning message regardless of verbose mode.
func Warn(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	emit("WARN", format, args...)
}

// emit writes one line. Caller holds at least the read lock.
func emit(level, format string, args ...any) {
	fmt.Fprintf(output, "%s [%s] %s\n",
		clock().Format("2006-01-02 15:04:05"), level, fmt.Sprintf(format, args...))
}
