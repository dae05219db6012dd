package diagnostics

import (
	"io"
	"log/slog"
)

// NewLogger returns a text logger at Info, or Debug when verbose
func NewLogger(verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
