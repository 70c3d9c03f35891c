// Package report persists relayed history dumps, the daemon's local
// reporting surface. The in-memory rings stay authoritative for the
// workers; this store only keeps what the supervisor drained.
package report

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const timeFormat = "2006-01-02 15:04:05"

// Line is one relayed history line (header or record) from a worker.
type Line struct {
	SensorID   int       `json:"sensor_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Store handles persistent storage of relayed dump lines.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// StoreStats contains information about the database.
type StoreStats struct {
	TotalLines     int64     `json:"total_lines"`
	OldestLine     time.Time `json:"oldest_line,omitempty"`
	NewestLine     time.Time `json:"newest_line,omitempty"`
	UniqueSensors  int       `json:"unique_sensors"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

// NewStore opens (creating if needed) the sqlite database at dbPath.
func NewStore(dbPath string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// sqlite wants a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, logger: logger}

	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("report store initialized")
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the schema if it doesn't exist.
func (s *Store) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dump_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sensor_id INTEGER NOT NULL,
		line TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_dump_lines_sensor_time ON dump_lines(sensor_id, received_at DESC);
	CREATE INDEX IF NOT EXISTS idx_dump_lines_time ON dump_lines(received_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("report schema migrated")
	return nil
}

// InsertLine inserts a single line.
func (s *Store) InsertLine(l Line) error {
	_, err := s.db.Exec(
		`INSERT INTO dump_lines (sensor_id, line, received_at) VALUES (?, ?, ?)`,
		l.SensorID, l.Text, l.ReceivedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to insert line: %w", err)
	}
	return nil
}

// InsertBatch inserts multiple lines in a single transaction.
func (s *Store) InsertBatch(lines []Line) error {
	if len(lines) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO dump_lines (sensor_id, line, received_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, l := range lines {
		if _, err := stmt.Exec(l.SensorID, l.Text, l.ReceivedAt.Format(timeFormat)); err != nil {
			return fmt.Errorf("failed to insert line in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("count", len(lines)).Msg("batch insert completed")
	return nil
}

// GetRecent returns the most recent lines for a sensor, newest first.
// sensorID 0 means all sensors.
func (s *Store) GetRecent(sensorID, limit int) ([]Line, error) {
	var rows *sql.Rows
	var err error

	if sensorID == 0 {
		rows, err = s.db.Query(
			`SELECT sensor_id, line, received_at FROM dump_lines ORDER BY received_at DESC, id DESC LIMIT ?`,
			limit,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT sensor_id, line, received_at FROM dump_lines WHERE sensor_id = ? ORDER BY received_at DESC, id DESC LIMIT ?`,
			sensorID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		var receivedAt string
		if err := rows.Scan(&l.SensorID, &l.Text, &receivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		l.ReceivedAt, err = parseTimestamp(receivedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse received_at: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// DeleteOlderThan removes lines received more than the given number of
// days ago and returns how many went.
func (s *Store) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	result, err := s.db.Exec(
		"DELETE FROM dump_lines WHERE received_at < ?",
		cutoff.Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old lines: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info().
		Int("days", days).
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("deleted old lines")

	return deleted, nil
}

// Stats returns statistics about the database.
func (s *Store) Stats() (*StoreStats, error) {
	stats := &StoreStats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM dump_lines").Scan(&stats.TotalLines); err != nil {
		return nil, fmt.Errorf("failed to count lines: %w", err)
	}
	if stats.TotalLines == 0 {
		return stats, nil
	}

	var oldestStr, newestStr string
	err := s.db.QueryRow("SELECT MIN(received_at), MAX(received_at) FROM dump_lines").
		Scan(&oldestStr, &newestStr)
	if err != nil {
		return nil, fmt.Errorf("failed to get timestamp range: %w", err)
	}
	stats.OldestLine, _ = parseTimestamp(oldestStr)
	stats.NewestLine, _ = parseTimestamp(newestStr)

	if err := s.db.QueryRow("SELECT COUNT(DISTINCT sensor_id) FROM dump_lines").Scan(&stats.UniqueSensors); err != nil {
		return nil, fmt.Errorf("failed to count sensors: %w", err)
	}

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// parseTimestamp tries the formats sqlite hands back.
func parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		timeFormat,
		"2006-01-02T15:04:05Z07:00",
		time.RFC3339,
		time.RFC3339Nano,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}
