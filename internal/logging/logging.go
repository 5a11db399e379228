// Package logging builds the process-wide slog logger. Output format
// follows LOG_FORMAT (text or json, defaulting to text on a terminal),
// verbosity follows LOG_LEVEL, and every record carries its source
// location with the path trimmed relative to the working directory.
package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// New builds a logger from the LOG_FORMAT and LOG_LEVEL environment
// variables.
func New() *slog.Logger {
	wd, _ := os.Getwd()
	opts := &slog.HandlerOptions{
		Level:       levelFromEnv(os.Getenv("LOG_LEVEL")),
		AddSource:   true,
		ReplaceAttr: trimSource(wd),
	}

	if textOutput(os.Getenv("LOG_FORMAT")) {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// SetDefault installs a freshly built logger as the slog default and
// returns it.
func SetDefault() *slog.Logger {
	logger := New()
	slog.SetDefault(logger)
	return logger
}

// textOutput decides between the human and machine formats. An explicit
// LOG_FORMAT wins; otherwise a terminal on stdout selects text.
func textOutput(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text":
		return true
	case "json":
		return false
	}
	stat, err := os.Stdout.Stat()
	return err == nil && stat.Mode()&os.ModeCharDevice != 0
}

func levelFromEnv(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

// trimSource rewrites each record's file path relative to wd so logs
// stay readable away from the build machine.
func trimSource(wd string) func([]string, slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		if a.Key != slog.SourceKey {
			return a
		}
		src, ok := a.Value.Any().(*slog.Source)
		if !ok {
			return a
		}
		if rel, err := filepath.Rel(wd, src.File); err == nil {
			src.File = rel
		} else {
			src.File = filepath.Base(src.File)
		}
		return a
	}
}
