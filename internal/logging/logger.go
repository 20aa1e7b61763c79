package logging

import (
	"log/slog"
	"os"
)

// Setup installs the stdout handler as the default logger and returns it so
// callers can fan it out with other sinks. Development mode logs text at DEBUG.
func Setup(development bool) slog.Handler {
	var handler slog.Handler
	if development {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
	return handler
}
