// Package logging builds the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New constructs a logger writing JSON lines to stderr and, when
// filePath is non-empty, to that file as well. The returned closer
// releases the file handle; it is a no-op for stderr-only loggers.
// debug forces the debug level regardless of the configured one.
func New(level, filePath string, debug bool) (zerolog.Logger, func() error, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	if debug && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}

	var w io.Writer = os.Stderr
	closer := func() error { return nil }

	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file %s: %w", filePath, err)
		}
		w = zerolog.MultiLevelWriter(os.Stderr, f)
		closer = f.Close
	}

	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return logger, closer, nil
}
