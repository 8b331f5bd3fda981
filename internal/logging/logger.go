// Package logging provides structured logging with file output support.
// It uses environment variables for configuration and forwards scanner
// trace events to the logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"offsetdump/internal/trace"
)

// LoggerCloser wraps a logger and provides a Close method for cleanup
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// ParseLevel maps the OFFSETDUMP_LOG_LEVEL values to a level, defaulting to info.
func ParseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter creates a new logger with the provided writer
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})

	lg.SetLevel(ParseLevel(os.Getenv("OFFSETDUMP_LOG_LEVEL")))

	prefix := os.Getenv("OFFSETDUMP_LOG_PREFIX")
	if prefix == "" {
		prefix = "offsetdump "
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(prefix),
		closer: closer,
	}
}

// NewLogger creates a new logger based on environment variables
// OFFSETDUMP_LOG_LEVEL: debug, info, warn, error (default: info)
// OFFSETDUMP_LOG_PREFIX: prefix for log messages (default: "offsetdump ")
// OFFSETDUMP_LOG_TO_FILE: when set to "1", logs to a timestamped file instead of stderr
func NewLogger() *LoggerCloser {
	output := io.Writer(os.Stderr)

	if os.Getenv("OFFSETDUMP_LOG_TO_FILE") == "1" {
		timestamp := time.Now().Format("20060102-150405")
		logFile := fmt.Sprintf("offsetdump-%s.log", timestamp)

		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err == nil {
			output = f
		}
		// If file creation fails, fall back to stderr
	}

	return NewLoggerWithWriter(output)
}

// IsDebug returns true if debug logging is enabled
func IsDebug() bool {
	return os.Getenv("OFFSETDUMP_LOG_LEVEL") == "debug"
}

// TraceSink forwards trace events to lg, tagging each with its stage.
func TraceSink(lg *log.Logger) trace.Sink {
	return trace.SinkFunc(func(e trace.Event) {
		kv := append([]any{"stage", e.Stage}, e.Fields...)
		switch e.Level {
		case trace.LevelDebug:
			lg.Debug(e.Message, kv...)
		case trace.LevelWarn:
			lg.Warn(e.Message, kv...)
		default:
			lg.Info(e.Message, kv...)
		}
	})
}
