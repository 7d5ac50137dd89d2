package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

const levelFatal = "FATAL"

var (
	outputMu sync.RWMutex
	// errWriter overrides the ERROR/FATAL stream when set. Nil means
	// whatever os.Stderr is at write time.
	errWriter io.Writer
)

// SetOutput redirects all log output to w, both the standard stream and
// the ERROR/FATAL stream. Daemon mode uses this to log to a file.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	errWriter = w
	outputMu.Unlock()
	log.SetOutput(w)
}

// writeLog is the unified internal logging function that handles all output.
// It formats the message with optional fields and routes to the appropriate
// stream: DEBUG/INFO/WARN to stdout, ERROR/FATAL to stderr.
func (l *Logger) writeLog(level, msg string, fields map[string]interface{}) {
	timestamp := fmt.Sprintf("[%s]", GetTimestamp())
	logMsg := fmt.Sprintf("%s [%s] %s: %s", timestamp, level, l.name, msg)

	if len(fields) > 0 {
		logMsg += " |"
		for k, v := range fields {
			logMsg += fmt.Sprintf(" %s=%v", k, v)
		}
	}

	if level == strError || level == levelFatal {
		outputMu.RLock()
		w := errWriter
		outputMu.RUnlock()
		if w == nil {
			w = os.Stderr
		}
		fmt.Fprintf(w, "%s\n", logMsg)
	} else {
		log.Println(logMsg)
	}
}

// logf is the internal logging function for formatted messages
func (l *Logger) logf(level, msg string, args ...interface{}) {
	formattedMsg := fmt.Sprintf(msg, args...)

	contextFields := extractContextFields(l.ctx)
	var mergedFields map[string]interface{}

	if contextFields != nil || len(l.fields) > 0 {
		mergedFields = make(map[string]interface{})

		for k, v := range contextFields {
			mergedFields[k] = v
		}

		// Persistent fields win over context fields
		for k, v := range l.fields {
			mergedFields[k] = v
		}
	}

	l.writeLog(level, formattedMsg, mergedFields)
}

// GetTimestamp returns a formatted timestamp.
// Uses RFC3339 format for sortability and timezone awareness.
// Can be overridden via LOG_TIMESTAMP env var for testing.
func GetTimestamp() string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return time.Now().Format(time.RFC3339)
}
