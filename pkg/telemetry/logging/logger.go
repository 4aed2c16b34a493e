package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Options controls logger construction.
type Options struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	// Empty means "info". The LOG_LEVEL environment variable takes
	// precedence when set.
	Level string

	// Format is "json" (default) or "text".
	Format string

	// FilePath redirects output to the named file when non-empty.
	// The LOG_TO_FILE environment variable (a path) takes precedence
	// when set.
	FilePath string

	// AddSource includes file:line in every record.
	AddSource bool
}

// Setup builds a slog.Logger from opts and environment overrides and
// installs it as the process default. It returns the logger and a close
// function for the log file, if one was opened.
func Setup(opts Options) (*slog.Logger, func() error, error) {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		opts.Level = env
	}
	if env := os.Getenv("LOG_TO_FILE"); env != "" {
		opts.FilePath = env
	}

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = os.Stdout
	closeFn := func() error { return nil }
	if opts.FilePath != "" {
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %q: %w", opts.FilePath, err)
		}
		w = f
		closeFn = f.Close
	}

	hopts := &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}
	var handler slog.Handler
	switch opts.Format {
	case "text":
		handler = slog.NewTextHandler(w, hopts)
	default:
		handler = slog.NewJSONHandler(w, hopts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

// ParseLevel parses a log level string into slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug", "DEBUG":
		return slog.LevelDebug, nil
	case "info", "INFO", "":
		return slog.LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn, nil
	case "error", "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}
