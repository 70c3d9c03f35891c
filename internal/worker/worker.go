// Package worker runs one sampling state machine per enabled sensor.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/baro-monitor/internal/history"
	"github.com/afroash/baro-monitor/internal/notify"
	"github.com/afroash/baro-monitor/internal/sensor"
	"github.com/afroash/baro-monitor/internal/trend"
)

// Publisher receives every history record as it is sampled. The live
// feed implements it; a nil publisher disables the path.
type Publisher interface {
	Publish(sensorID int, line string)
}

// Config holds the per-worker settings.
type Config struct {
	ID             int
	TickInterval   time.Duration // base period of the loop
	TicksPerSample int           // ticks between physical reads
	ReportEvery    int           // samples per notification window
	HistorySize    int           // ring capacity
	ChannelBuffer  int           // command/data channel depth
	NotifyTimeout  time.Duration // bound on one notification round-trip
}

// Worker owns a sensor source, a trend aggregator and a ring of
// formatted records. It loops on a wall-clock tick: sampling every
// TicksPerSample ticks, dispatching a notification when the report
// window completes, and draining pending commands every tick. All
// runtime errors are absorbed; nothing here terminates the process.
type Worker struct {
	id       int
	source   sensor.Source
	notifier notify.Notifier
	pub      Publisher
	logger   zerolog.Logger

	ring *history.Ring
	agg  *trend.Aggregator

	tickInterval   time.Duration
	ticksPerSample int
	notifyTimeout  time.Duration

	ticks int

	commands chan string
	data     chan string

	// at most one in-flight notification per worker
	notifyBusy atomic.Bool
}

// New creates a worker. notifier and pub may be nil; sampling then
// proceeds without alerting or live publishing.
func New(cfg Config, src sensor.Source, notifier notify.Notifier, pub Publisher, logger zerolog.Logger) *Worker {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.TicksPerSample < 1 {
		cfg.TicksPerSample = 1
	}
	if cfg.ChannelBuffer < 1 {
		cfg.ChannelBuffer = 256
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}

	return &Worker{
		id:             cfg.ID,
		source:         src,
		notifier:       notifier,
		pub:            pub,
		logger:         logger.With().Int("sensor", cfg.ID).Logger(),
		ring:           history.NewRing(cfg.HistorySize),
		agg:            trend.New(cfg.ReportEvery),
		tickInterval:   cfg.TickInterval,
		ticksPerSample: cfg.TicksPerSample,
		notifyTimeout:  cfg.NotifyTimeout,
		commands:       make(chan string, cfg.ChannelBuffer),
		data:           make(chan string, cfg.ChannelBuffer),
	}
}

// ID returns the sensor id this worker samples.
func (w *Worker) ID() int { return w.id }

// Commands returns the write end of the command channel.
func (w *Worker) Commands() chan<- string { return w.commands }

// Data returns the read end of the data channel.
func (w *Worker) Data() <-chan string { return w.data }

// Run loops until ctx is cancelled. The first sample is taken
// immediately; afterwards the loop advances one tick per base period.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().
		Dur("tick", w.tickInterval).
		Int("ticks_per_sample", w.ticksPerSample).
		Msg("worker started")

	w.sample()

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("worker stopped")
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// tick advances the sampling countdown and drains pending commands.
// The command check runs every tick so a dump never waits on the
// sampling cadence.
func (w *Worker) tick() {
	w.ticks++
	if w.ticks >= w.ticksPerSample {
		w.ticks = 0
		w.sample()
	}
	w.drainCommands()
}

// sample reads the sensor once, folds it into the trend window and the
// ring, and fires the notification path when the window completes.
func (w *Worker) sample() {
	now := time.Now()
	reading := w.source.Read().Normalized()

	w.logger.Debug().
		Float64("pressure", reading.Pressure).
		Float64("temperature", reading.Temperature).
		Msg("sampled")

	rec := w.agg.Observe(reading, now)
	w.ring.Add(rec)

	if w.pub != nil {
		w.pub.Publish(w.id, rec)
	}

	if w.agg.Due() {
		msg := w.agg.Report(now)
		w.dispatchNotification(msg)
	}
}

// dispatchNotification sends the alert off-loop with a bounded timeout
// so a slow network cannot delay the next scheduled sample. A window
// that completes while the previous alert is still in flight is
// dropped rather than queued, keeping alerts at most one deep.
func (w *Worker) dispatchNotification(msg string) {
	if w.notifier == nil {
		return
	}
	if !w.notifyBusy.CompareAndSwap(false, true) {
		w.logger.Warn().Msg("notification still in flight, dropping report")
		return
	}

	go func() {
		defer w.notifyBusy.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), w.notifyTimeout)
		defer cancel()
		if !w.notifier.Notify(ctx, msg) {
			w.logger.Warn().Msg("notification not delivered")
		}
	}()
}

// drainCommands handles every queued command without blocking. The
// protocol has a single verb, so the content is ignored: any command
// means "dump history".
func (w *Worker) drainCommands() {
	for {
		select {
		case cmd := <-w.commands:
			w.logger.Debug().Str("command", cmd).Msg("command received")
			w.dumpHistory()
		default:
			return
		}
	}
}

// dumpHistory pushes one header line describing the aggregate state,
// then every retained record in physical order, onto the data channel.
func (w *Worker) dumpHistory() {
	header := fmt.Sprintf("sensor %d: %d entries, window %d samples (first %.2f high %.2f low %.2f)",
		w.id, w.ring.Len(), w.agg.Count(), w.agg.First(), w.agg.High(), w.agg.Low())

	w.push(header)
	for _, entry := range w.ring.All() {
		w.push(entry)
	}
}

// push is a fire-and-forget send: a full or abandoned channel costs a
// log line, never a stalled worker.
func (w *Worker) push(line string) {
	select {
	case w.data <- line:
	default:
		w.logger.Error().Msg("data channel full, dropping line")
	}
}
