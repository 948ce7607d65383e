package flowcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS flow_snapshots (
		run_id     TEXT PRIMARY KEY,
		data       BYTEA NOT NULL,
		expires_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS flow_snapshots_expires_at_idx ON flow_snapshots (expires_at)`,
}

const (
	upsertSnapshot = `INSERT INTO flow_snapshots (run_id, data, expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`
	selectSnapshot = `SELECT data, expires_at FROM flow_snapshots WHERE run_id = $1`
	deleteSnapshot = `DELETE FROM flow_snapshots WHERE run_id = $1`
	sweepSnapshots = `DELETE FROM flow_snapshots WHERE expires_at IS NOT NULL AND expires_at <= $1`
)

type snapshotRow struct {
	Data      []byte       `db:"data"`
	ExpiresAt sql.NullTime `db:"expires_at"`
}

// PostgresStore keeps snapshots in a flow_snapshots table.
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// OpenPostgresStore connects with the lib/pq driver.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Apply creates the snapshot table if needed.
func (s *PostgresStore) Apply(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply flow cache migration %d: %w", i, err)
		}
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, runID string, data []byte, ttl time.Duration) error {
	now := s.now().UTC()
	var expires sql.NullTime
	if ttl > 0 {
		expires = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, upsertSnapshot, runID, data, expires, now); err != nil {
		return fmt.Errorf("store snapshot %s: %w", runID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, runID string) ([]byte, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, selectSnapshot, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", runID, err)
	}
	if row.ExpiresAt.Valid && !row.ExpiresAt.Time.After(s.now()) {
		return nil, ErrNotFound
	}
	return row.Data, nil
}

func (s *PostgresStore) Delete(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, deleteSnapshot, runID); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", runID, err)
	}
	return nil
}

func (s *PostgresStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, sweepSnapshots, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep snapshots: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }
