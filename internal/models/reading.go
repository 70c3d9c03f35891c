package models

import (
	"fmt"
	"math"
	"time"
)

// SampleReading is one pressure/temperature pair from a barometer.
// Produced once per sampling tick and not retained beyond it; the
// derived record string is what lands in history.
type SampleReading struct {
	Temperature float64 `json:"temperature"` // °C
	Pressure    float64 `json:"pressure"`
}

// Normalize coerces non-finite values to zero. A faulty sensor read
// must never leak NaN or Inf into history or trend comparisons.
func Normalize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	return v
}

// Normalized returns a copy of the reading with both fields normalized.
func (r SampleReading) Normalized() SampleReading {
	return SampleReading{
		Temperature: Normalize(r.Temperature),
		Pressure:    Normalize(r.Pressure),
	}
}

// TemperatureF converts the Celsius reading to Fahrenheit.
func (r SampleReading) TemperatureF() float64 {
	return r.Temperature*1.8 + 32
}

// FormatRecord renders one history line. The format is fixed for
// interoperability with existing consumers:
// "<pressure> <tempF> <delta> <YYYY-MM-DD HH:MM> (<epoch seconds>)"
func FormatRecord(r SampleReading, delta float64, at time.Time) string {
	return fmt.Sprintf("%.2f %.2f %.2f %s (%d)",
		r.Pressure,
		r.TemperatureF(),
		delta,
		at.Format("2006-01-02 15:04"),
		at.Unix(),
	)
}

func (r SampleReading) String() string {
	return fmt.Sprintf("Pressure: %.2f, Temperature: %.2f°C", r.Pressure, r.Temperature)
}
