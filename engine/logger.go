package engine

import (
	"log/slog"
	"os"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger allows a host process to install a custom logger.
func SetLogger(l *slog.Logger) {
	logger = l
}
