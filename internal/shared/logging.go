package shared

import (
	"io"
	"log/slog"
)

// TestLogger returns a logger that discards all output.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
