// Package trend tracks running pressure statistics across a reporting
// window and formats the threshold alert text.
package trend

import (
	"fmt"
	"time"

	"github.com/afroash/baro-monitor/internal/models"
)

// Aggregator folds samples into first/high/low/previous pressure across
// one reporting window. The zero value 0.0 doubles as the "unset"
// sentinel for first/high/low, exactly as existing consumers expect: a
// legitimate 0.0 reading re-arms the window tracking. Not safe for
// concurrent use; owned by a single worker.
type Aggregator struct {
	reportEvery int

	first float64
	high  float64
	low   float64
	prev  float64
	count int
}

// New creates an aggregator that completes its window after reportEvery
// samples.
func New(reportEvery int) *Aggregator {
	if reportEvery < 1 {
		reportEvery = 1
	}
	return &Aggregator{reportEvery: reportEvery}
}

// Observe folds one reading into the window and returns the formatted
// history record for it. Non-finite values are normalized to zero
// before any comparison.
func (a *Aggregator) Observe(r models.SampleReading, now time.Time) string {
	r = r.Normalized()
	p := r.Pressure

	delta := p - a.prev

	if a.first == 0.0 {
		a.first = p
	}
	if p > a.high {
		a.high = p
	}
	if a.low == 0.0 || p < a.low {
		a.low = p
	}
	a.prev = p
	a.count++

	return models.FormatRecord(r, delta, now)
}

// Due reports whether the window has accumulated enough samples for a
// notification.
func (a *Aggregator) Due() bool {
	return a.count >= a.reportEvery
}

// Report formats the alert for the completed window and resets the
// window state. Delta is last-minus-first; a flat window (delta exactly
// zero) classifies as falling, which downstream alert consumers rely on.
func (a *Aggregator) Report(now time.Time) string {
	delta := a.prev - a.first

	word := "falling"
	if delta > 0.0 {
		word = "rising"
	}

	msg := fmt.Sprintf(
		"Today at %s the pressure is %s (delta: %.2f current: %.2f max %.2f min %.2f)",
		now.Format("15:04"), word, delta, a.prev, a.high, a.low,
	)

	a.first = 0.0
	a.high = 0.0
	a.low = 0.0
	a.count = 0

	return msg
}

// Count returns the number of samples folded in since the last report.
func (a *Aggregator) Count() int { return a.count }

// First returns the first pressure of the current window (0.0 if unset).
func (a *Aggregator) First() float64 { return a.first }

// High returns the window high-water pressure (0.0 if unset).
func (a *Aggregator) High() float64 { return a.high }

// Low returns the window low-water pressure (0.0 if unset).
func (a *Aggregator) Low() float64 { return a.low }

// Previous returns the most recently observed pressure.
func (a *Aggregator) Previous() float64 { return a.prev }
