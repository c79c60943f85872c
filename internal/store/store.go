// Package store is the Priority Store (C5): the persistent latest-state
// table per icao24 plus its append-only history, backed by Postgres via
// lib/pq. Connection pooling and schema bootstrap are grounded on the
// teacher's database layer; the upsert decision tree is new, built to
// the priority/staleness contract the ingestion worker depends on.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Config configures the Postgres connection pool.
type Config struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration

	// StalenessThreshold is how old an existing row must be before a
	// lower-priority source is allowed to replace it (upsert rule 4).
	StalenessThreshold time.Duration
	// GraceWindow additionally allows a lower-priority replace when its
	// last_contact is newer than the existing row's by more than this.
	GraceWindow time.Duration
}

// DefaultConfig matches the values spec.md names for the upsert contract.
func DefaultConfig() Config {
	return Config{
		SSLMode:            "disable",
		MaxOpenConns:       25,
		MaxIdleConns:       5,
		ConnLifetime:       5 * time.Minute,
		StalenessThreshold: 5 * time.Minute,
		GraceWindow:        30 * time.Second,
	}
}

// Store wraps a *sql.DB configured per Config.
type Store struct {
	db  *sql.DB
	cfg Config
}

// Connect opens and configures the connection pool. It does not run
// InitSchema; callers decide when migrations happen.
func Connect(cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db, cfg: cfg}, nil
}

// InitSchema applies the embedded schema, idempotently.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// CleanupOldData drops history rows older than retention, used by the
// scheduled retention sweep.
func (s *Store) CleanupOldData(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM aircraft_state_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old history: %w", err)
	}
	return res.RowsAffected()
}

// Stats reports basic row counts for the operator health endpoint.
type Stats struct {
	AircraftStates int64
	HistoryRows    int64
}

// GetStats queries row counts. Approximate under heavy write load is
// acceptable; this feeds a diagnostics endpoint, not the upsert path.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM aircraft_states`).Scan(&stats.AircraftStates); err != nil {
		return stats, fmt.Errorf("count aircraft_states: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM aircraft_state_history`).Scan(&stats.HistoryRows); err != nil {
		return stats, fmt.Errorf("count aircraft_state_history: %w", err)
	}
	return stats, nil
}
