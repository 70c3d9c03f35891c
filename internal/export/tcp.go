// Package export ships dump payloads to the bulk-export sink.
package export

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

const defaultTimeout = 10 * time.Second

// Exporter writes one payload per TCP connection: the UTF-8 bytes of
// the text followed by a newline delimiter. No further framing and no
// acknowledgement is read.
type Exporter struct {
	addr    string
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates an exporter for the given host:port.
func New(addr string, timeout time.Duration, logger zerolog.Logger) *Exporter {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Exporter{addr: addr, timeout: timeout, logger: logger}
}

// Export dials the sink, writes jsonText plus the trailing newline and
// closes. Failures are logged and returned; callers treat them as
// non-fatal and never retry.
func (e *Exporter) Export(jsonText string) error {
	conn, err := net.DialTimeout("tcp", e.addr, e.timeout)
	if err != nil {
		e.logger.Error().Err(err).Str("addr", e.addr).Msg("export dial failed")
		return fmt.Errorf("export dial %s: %w", e.addr, err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(e.timeout))
	if _, err := conn.Write(append([]byte(jsonText), '\n')); err != nil {
		e.logger.Error().Err(err).Str("addr", e.addr).Msg("export write failed")
		return fmt.Errorf("export write: %w", err)
	}

	e.logger.Debug().Int("bytes", len(jsonText)+1).Msg("export delivered")
	return nil
}
