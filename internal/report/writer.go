package report

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Writer batches relayed lines and writes them off the dump path, so a
// slow disk never delays the next supervisory cycle.
type Writer struct {
	store       *Store
	logger      zerolog.Logger
	writeChan   chan Line
	batchSize   int
	flushPeriod time.Duration
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	// Stats
	mu            sync.RWMutex
	totalWritten  int64
	totalBatches  int64
	totalErrors   int64
	lastWriteTime time.Time
}

// WriterConfig holds configuration for the async writer.
type WriterConfig struct {
	BatchSize   int           // lines to batch before writing
	FlushPeriod time.Duration // max time between flushes
	ChannelSize int           // write channel buffer depth
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:   100,
		FlushPeriod: 5 * time.Second,
		ChannelSize: 1000,
	}
}

// WriterStats contains statistics about the writer.
type WriterStats struct {
	TotalWritten  int64     `json:"total_written"`
	TotalBatches  int64     `json:"total_batches"`
	TotalErrors   int64     `json:"total_errors"`
	LastWriteTime time.Time `json:"last_write_time,omitempty"`
	QueueLength   int       `json:"queue_length"`
}

// NewWriter creates an async writer on top of store and starts its
// background loop.
func NewWriter(store *Store, config WriterConfig, logger zerolog.Logger) *Writer {
	if config.BatchSize < 1 {
		config.BatchSize = 100
	}
	if config.FlushPeriod <= 0 {
		config.FlushPeriod = 5 * time.Second
	}
	if config.ChannelSize < 1 {
		config.ChannelSize = 1000
	}

	w := &Writer{
		store:       store,
		logger:      logger,
		writeChan:   make(chan Line, config.ChannelSize),
		batchSize:   config.BatchSize,
		flushPeriod: config.FlushPeriod,
		stopChan:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writerLoop()

	logger.Info().
		Int("batch_size", config.BatchSize).
		Dur("flush_period", config.FlushPeriod).
		Int("channel_size", config.ChannelSize).
		Msg("report writer started")

	return w
}

// Write queues a line for async persistence. Returns true if queued,
// false if dropped (channel full).
func (w *Writer) Write(l Line) bool {
	select {
	case w.writeChan <- l:
		return true
	default:
		w.logger.Warn().Msg("report writer channel full, dropping line")
		return false
	}
}

func (w *Writer) writerLoop() {
	defer w.wg.Done()

	batch := make([]Line, 0, w.batchSize)
	ticker := time.NewTicker(w.flushPeriod)
	defer ticker.Stop()

	for {
		select {
		case l := <-w.writeChan:
			batch = append(batch, l)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = make([]Line, 0, w.batchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = make([]Line, 0, w.batchSize)
			}

		case <-w.stopChan:
			// Drain whatever is still queued before exiting.
			draining := true
			for draining {
				select {
				case l := <-w.writeChan:
					batch = append(batch, l)
				default:
					draining = false
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			w.logger.Info().Msg("report writer stopped")
			return
		}
	}
}

func (w *Writer) flush(batch []Line) {
	if len(batch) == 0 {
		return
	}

	err := w.store.InsertBatch(batch)

	w.mu.Lock()
	if err != nil {
		w.totalErrors++
		w.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("failed to write batch")
	} else {
		w.totalWritten += int64(len(batch))
		w.totalBatches++
		w.lastWriteTime = time.Now()
		w.logger.Debug().Int("count", len(batch)).Msg("flushed batch")
	}
	w.mu.Unlock()
}

// Stop gracefully stops the writer, flushing any remaining lines.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
	})
}

// Stats returns current writer statistics.
func (w *Writer) Stats() WriterStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return WriterStats{
		TotalWritten:  w.totalWritten,
		TotalBatches:  w.totalBatches,
		TotalErrors:   w.totalErrors,
		LastWriteTime: w.lastWriteTime,
		QueueLength:   len(w.writeChan),
	}
}
