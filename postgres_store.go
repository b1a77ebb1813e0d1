package saga

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// defaultPostgresTable is the checkpoint table name.
const defaultPostgresTable = "saga_checkpoints"

// PostgresCheckpointStore persists checkpoints in a PostgreSQL table, one
// row per idempotency key. Save upserts, so replays and resumes overwrite
// in place.
type PostgresCheckpointStore struct {
	db    *sql.DB
	table string
}

// NewPostgresCheckpointStore creates a store over the given database.
func NewPostgresCheckpointStore(db *sql.DB) *PostgresCheckpointStore {
	return &PostgresCheckpointStore{db: db, table: defaultPostgresTable}
}

// WithTable replaces the table name. Returns the store for chaining.
func (s *PostgresCheckpointStore) WithTable(table string) *PostgresCheckpointStore {
	s.table = table
	return s
}

// EnsureSchema creates the checkpoint table if it does not exist.
func (s *PostgresCheckpointStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key        TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		result     JSONB,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create checkpoint table %q: %w", s.table, err)
	}
	return nil
}

// Save upserts the record under the key.
func (s *PostgresCheckpointStore) Save(ctx context.Context, key string, record CheckpointRecord) error {
	result := record.Result
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	query := fmt.Sprintf(`INSERT INTO %s (key, status, result, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE
		SET status = EXCLUDED.status, result = EXCLUDED.result, updated_at = now()`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key, string(record.Status), []byte(result)); err != nil {
		return fmt.Errorf("save checkpoint %q: %w", key, err)
	}
	return nil
}

// Load retrieves the record for the key, or (nil, nil) when absent.
func (s *PostgresCheckpointStore) Load(ctx context.Context, key string) (*CheckpointRecord, error) {
	query := fmt.Sprintf(`SELECT status, result FROM %s WHERE key = $1`, s.table)
	var status string
	var result []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&status, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %q: %w", key, err)
	}
	record := &CheckpointRecord{Status: CheckpointStatus(status)}
	if len(result) > 0 && string(result) != "null" {
		record.Result = json.RawMessage(result)
	}
	return record, nil
}

var _ CheckpointStore = (*PostgresCheckpointStore)(nil)
