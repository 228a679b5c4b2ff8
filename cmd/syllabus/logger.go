package main

import (
	"log/slog"
	"os"

	"github.com/alex65536/syllabus/internal/util/slogx"
	"github.com/alex65536/syllabus/internal/util/style"
)

// newLogger writes human-readable logs to a terminal and JSON otherwise.
func newLogger(level string) *slog.Logger {
	ho := &slog.HandlerOptions{Level: slogx.ParseLevel(level)}
	if style.IsStderrTTY() {
		return slog.New(slog.NewTextHandler(style.Stderr(), ho))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, ho))
}
