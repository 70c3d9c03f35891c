package config

import "sync"

// Store guards the process-wide configuration for the rare
// administrative rewrite. Readers always get a full copied snapshot
// taken under the lock, never a live reference, so a concurrent
// Replace can never be observed as a torn read.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore creates a store seeded with cfg.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.Sensors = append([]SensorConfig(nil), s.cfg.Sensors...)
	cfg.Feed.AllowedOrigins = append([]string(nil), s.cfg.Feed.AllowedOrigins...)
	return cfg
}

// Replace swaps in a new configuration wholesale.
func (s *Store) Replace(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}
