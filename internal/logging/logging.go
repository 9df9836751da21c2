// Package logging configures slog for the server and provides the request
// logging middleware.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// NewHandler returns the handler Setup installs, writing to w. Dev mode logs
// text at debug level, otherwise JSON at info level.
func NewHandler(w io.Writer, devMode bool) slog.Handler {
	if devMode {
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
}

// Setup installs the default logger on stdout.
func Setup(devMode bool) {
	slog.SetDefault(slog.New(NewHandler(os.Stdout, devMode)).With("app", "arrienda"))
}
