// Package supervisor owns the far ends of every worker's channel pair.
package supervisor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/baro-monitor/internal/config"
	"github.com/afroash/baro-monitor/internal/notify"
	"github.com/afroash/baro-monitor/internal/sensor"
	"github.com/afroash/baro-monitor/internal/worker"
)

// Supervisor creates one worker per enabled sensor and mediates the
// command/data protocol: commands go in, buffered history dumps come
// out. Disabled sensors are never spawned; a command for one is an
// error, a drain yields nothing.
type Supervisor struct {
	workers map[int]*worker.Worker
	logger  zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds workers for every enabled sensor in cfg. notifier and pub
// may be nil.
func New(cfg config.Config, notifier notify.Notifier, pub worker.Publisher, logger zerolog.Logger) *Supervisor {
	s := &Supervisor{
		workers: make(map[int]*worker.Worker),
		logger:  logger,
	}

	for _, sc := range cfg.EnabledSensors() {
		src := newSource(sc, logger)
		w := worker.New(worker.Config{
			ID:             sc.ID,
			TickInterval:   cfg.Daemon.TickInterval,
			TicksPerSample: cfg.Daemon.TicksPerSample,
			ReportEvery:    cfg.Daemon.ReportEvery,
			HistorySize:    cfg.Daemon.HistorySize,
			ChannelBuffer:  cfg.Daemon.ChannelBuffer,
			NotifyTimeout:  cfg.Notify.Timeout,
		}, src, notifier, pub, logger)
		s.workers[sc.ID] = w
	}

	return s
}

func newSource(sc config.SensorConfig, logger zerolog.Logger) sensor.Source {
	if sc.Source == "iio" {
		return sensor.NewIIO(sc.DevicePath, logger)
	}
	return sensor.NewSynthetic()
}

// Start launches every worker. Stop cancels them.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w *worker.Worker) {
			defer s.wg.Done()
			w.Run(ctx)
		}(w)
	}
	s.logger.Info().Int("workers", len(s.workers)).Msg("supervisor started")
}

// Stop cancels all workers and waits for them to exit.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info().Msg("supervisor stopped")
}

// WorkerIDs returns the ids of spawned workers in ascending order.
func (s *Supervisor) WorkerIDs() []int {
	ids := make([]int, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// SendCommand enqueues cmd for the given worker without blocking.
func (s *Supervisor) SendCommand(workerID int, cmd string) error {
	w, ok := s.workers[workerID]
	if !ok {
		return fmt.Errorf("no worker for sensor %d", workerID)
	}
	select {
	case w.Commands() <- cmd:
		return nil
	default:
		s.logger.Error().Int("sensor", workerID).Msg("command channel full, dropping command")
		return fmt.Errorf("command channel full for sensor %d", workerID)
	}
}

// DrainData returns every line the worker has buffered, without
// blocking. A worker that has not responded yet simply yields nil.
func (s *Supervisor) DrainData(workerID int) []string {
	w, ok := s.workers[workerID]
	if !ok {
		return nil
	}
	var out []string
	for {
		select {
		case line := <-w.Data():
			out = append(out, line)
		default:
			return out
		}
	}
}

// DumpAll commands every worker to dump, waits for the loops to pick
// the command up, and drains the results keyed by sensor id.
func (s *Supervisor) DumpAll(wait time.Duration) map[int][]string {
	for id := range s.workers {
		if err := s.SendCommand(id, "dump"); err != nil {
			s.logger.Warn().Err(err).Int("sensor", id).Msg("dump command not delivered")
		}
	}

	time.Sleep(wait)

	out := make(map[int][]string, len(s.workers))
	for id := range s.workers {
		if lines := s.DrainData(id); len(lines) > 0 {
			out[id] = lines
		}
	}
	return out
}
