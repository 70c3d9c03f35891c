package report

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Cleaner periodically removes old lines from the store.
type Cleaner struct {
	store         *Store
	logger        zerolog.Logger
	retentionDays int
	cleanupPeriod time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup

	// Stats
	mu              sync.RWMutex
	totalDeleted    int64
	totalCleanups   int64
	lastCleanup     time.Time
	lastDeleteCount int64
}

// CleanerConfig holds configuration for the cleaner.
type CleanerConfig struct {
	RetentionDays int           // days of lines to keep
	CleanupPeriod time.Duration // how often to run cleanup
}

// CleanerStats contains statistics about the cleaner.
type CleanerStats struct {
	TotalDeleted    int64     `json:"total_deleted"`
	TotalCleanups   int64     `json:"total_cleanups"`
	LastCleanup     time.Time `json:"last_cleanup,omitempty"`
	LastDeleteCount int64     `json:"last_delete_count"`
	RetentionDays   int       `json:"retention_days"`
}

// NewCleaner creates and starts a retention cleaner.
func NewCleaner(store *Store, config CleanerConfig, logger zerolog.Logger) *Cleaner {
	if config.RetentionDays < 1 {
		config.RetentionDays = 30
	}
	if config.CleanupPeriod <= 0 {
		// a zero period would panic time.NewTicker
		config.CleanupPeriod = 1 * time.Hour
	}

	c := &Cleaner{
		store:         store,
		logger:        logger,
		retentionDays: config.RetentionDays,
		cleanupPeriod: config.CleanupPeriod,
		stopChan:      make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupLoop()

	logger.Info().
		Int("retention_days", config.RetentionDays).
		Dur("cleanup_period", config.CleanupPeriod).
		Msg("retention cleaner started")

	return c
}

func (c *Cleaner) cleanupLoop() {
	defer c.wg.Done()

	c.runCleanup()

	ticker := time.NewTicker(c.cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.stopChan:
			c.logger.Info().Msg("retention cleaner stopped")
			return
		}
	}
}

func (c *Cleaner) runCleanup() {
	deleted, err := c.store.DeleteOlderThan(c.retentionDays)

	c.mu.Lock()
	c.totalCleanups++
	c.lastCleanup = time.Now()

	if err != nil {
		c.logger.Error().Err(err).Msg("retention cleanup failed")
	} else {
		c.totalDeleted += deleted
		c.lastDeleteCount = deleted
		if deleted > 0 {
			c.logger.Info().
				Int64("deleted", deleted).
				Int("retention_days", c.retentionDays).
				Msg("retention cleanup completed")
		}
	}
	c.mu.Unlock()
}

// Stop gracefully stops the cleaner.
func (c *Cleaner) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
}

// RunNow triggers an immediate cleanup.
func (c *Cleaner) RunNow() {
	c.runCleanup()
}

// Stats returns current cleaner statistics.
func (c *Cleaner) Stats() CleanerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CleanerStats{
		TotalDeleted:    c.totalDeleted,
		TotalCleanups:   c.totalCleanups,
		LastCleanup:     c.lastCleanup,
		LastDeleteCount: c.lastDeleteCount,
		RetentionDays:   c.retentionDays,
	}
}
