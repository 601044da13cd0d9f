package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// LogOptions controls where plotq writes its logs.
type LogOptions struct {
	Level slog.Level
	// Component tags every record, e.g. "api" or "worker".
	Component string

	// File receives JSON lines. Empty disables file logging.
	File string
	// Console receives text lines; nil means stderr.
	Console io.Writer
	// FileWriter replaces File when set.
	FileWriter io.Writer
}

// LogOptions returns the logging setup for the given command.
func (c Config) LogOptions(component string) LogOptions {
	return LogOptions{Level: c.LogLevel, Component: component, File: c.LogFile}
}

// NewLogger builds the process logger: text on the console and JSON in the log
// file, both at opts.Level. The returned func closes the log file.
func NewLogger(opts LogOptions) (*slog.Logger, func() error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	handlers := []slog.Handler{slog.NewTextHandler(console, handlerOpts)}
	closer := func() error { return nil }

	var fileErr error
	switch {
	case opts.FileWriter != nil:
		handlers = append(handlers, slog.NewJSONHandler(opts.FileWriter, handlerOpts))
	case opts.File != "":
		file, err := openLogFile(opts.File)
		if err != nil {
			fileErr = err
			break
		}
		handlers = append(handlers, slog.NewJSONHandler(file, handlerOpts))
		closer = file.Close
	}

	logger := slog.New(slogmulti.Fanout(handlers...)).With("app", "plotq")
	if opts.Component != "" {
		logger = logger.With("component", opts.Component)
	}
	if fileErr != nil {
		logger.Warn("failed to open log file, logging to console only", "file", opts.File, "error", fileErr)
	}
	return logger, closer
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
