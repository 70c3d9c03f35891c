package sensor

import (
	"math/rand"

	"github.com/afroash/baro-monitor/internal/models"
)

// Source is the read boundary for one physical barometer. Read always
// returns a value; there is no error channel, so a failed hardware read
// is indistinguishable from a zero reading. Callers accept that.
type Source interface {
	Read() models.SampleReading
}

// Synthetic generates readings when no hardware is present: a
// pseudo-random pressure in [0,1) and a fixed 70.0° temperature.
// Useful for test and debug runs on a dev machine.
type Synthetic struct{}

// NewSynthetic creates a synthetic source.
func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

// Read returns a generated reading.
func (s *Synthetic) Read() models.SampleReading {
	return models.SampleReading{
		Temperature: 70.0,
		Pressure:    rand.Float64(),
	}
}
