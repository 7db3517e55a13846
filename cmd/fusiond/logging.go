package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// setupLogger builds the process logger. Unknown levels fall back to info;
// debug also records the source position.
func setupLogger(level, format, service string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(
		"service", service,
		"version", Version,
		"pid", os.Getpid(),
		"instance", uuid.NewString(),
	)
}
