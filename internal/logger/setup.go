package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the process logger: JSON to stdout and, when logFile is set,
// JSON to that file as well. Every record carries the context correlation id.
// The returned cleanup closes the file.
func Setup(logFile string, level slog.Level) (*slog.Logger, func() error) {
	opts := &slog.HandlerOptions{Level: level}
	stdout := slog.NewJSONHandler(os.Stdout, opts)

	if logFile == "" {
		return slog.New(NewContextHandler(stdout)), func() error { return nil }
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Error("failed to open log file, using stdout only", "error", err, "file", logFile)
		return slog.New(NewContextHandler(stdout)), func() error { return nil }
	}

	h := slogmulti.Fanout(stdout, slog.NewJSONHandler(file, opts))
	return slog.New(NewContextHandler(h)), file.Close
}

// SetupWithWriters fans out to two arbitrary writers (for testing).
func SetupWithWriters(primary, secondary io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	h := slogmulti.Fanout(slog.NewJSONHandler(primary, opts), slog.NewJSONHandler(secondary, opts))
	return slog.New(NewContextHandler(h))
}
