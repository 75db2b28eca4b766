package logging

import (
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

var debugEnabled atomic.Bool

func init() {
	debugEnabled.Store(os.Getenv("DEBUG") == "true")
}

// SetDebug overrides the DEBUG environment switch (config files may set it).
func SetDebug(on bool) {
	debugEnabled.Store(on)
}

// DebugEnabled reports whether Debug output is shown.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// SetOutput redirects all subsystem logs. The MCP server points this at
// stderr so stdout stays reserved for the protocol stream.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// Info logs an informational message (always shown)
func Info(subsystem, format string, args ...any) {
	log.Printf("[%s] "+format, append([]any{subsystem}, args...)...)
}

// Warn logs a recoverable problem, such as a unit that failed and was skipped
func Warn(subsystem, format string, args ...any) {
	log.Printf("[%s] WARN "+format, append([]any{subsystem}, args...)...)
}

// Debug logs a debug message (only shown if DEBUG=true)
func Debug(subsystem, format string, args ...any) {
	if debugEnabled.Load() {
		log.Printf("[%s] "+format, append([]any{subsystem}, args...)...)
	}
}

// Truncate truncates a string to maxLen and adds ellipsis
func Truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
