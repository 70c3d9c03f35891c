package sensor

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/afroash/baro-monitor/internal/models"
)

// IIO reads a BMP388 through the Linux industrial-I/O sysfs interface,
// e.g. /sys/bus/iio/devices/iio:device0. The kernel driver exposes
// in_pressure_input in kPa and in_temp_input in millidegrees Celsius.
type IIO struct {
	devicePath string
	logger     zerolog.Logger
}

// NewIIO creates a source for the iio device directory at devicePath.
func NewIIO(devicePath string, logger zerolog.Logger) *IIO {
	return &IIO{devicePath: devicePath, logger: logger}
}

// Read returns the current reading. Failures are logged and yield the
// zero reading, matching the no-error contract of Source.
func (s *IIO) Read() models.SampleReading {
	pressure := s.readFloat("in_pressure_input")
	temp := s.readFloat("in_temp_input") / 1000.0

	return models.SampleReading{
		Temperature: models.Normalize(temp),
		Pressure:    models.Normalize(pressure),
	}
}

func (s *IIO) readFloat(name string) float64 {
	path := filepath.Join(s.devicePath, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("sensor read failed")
		return 0.0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("sensor value unparsable")
		return 0.0
	}
	return v
}
