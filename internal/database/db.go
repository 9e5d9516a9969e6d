package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Alias1177/signalwatch/models"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

// New opens a PostgreSQL connection and makes sure the schema exists.
// The "postgres" driver must be registered by the caller.
func New(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

// createTables creates the necessary tables if they don't exist
func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS signal_records (
			key TEXT PRIMARY KEY,
			timestamp DOUBLE PRECISION NOT NULL,
			payload JSONB NOT NULL,
			trigger_count INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create signal_records: %w", err)
	}
	return nil
}

// Load reads every signal record.
func (db *DB) Load(ctx context.Context) (map[string]models.SignalRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, timestamp, payload, trigger_count FROM signal_records`)
	if err != nil {
		return nil, fmt.Errorf("query signal records: %w", err)
	}
	defer rows.Close()

	records := map[string]models.SignalRecord{}
	for rows.Next() {
		var (
			key     string
			rec     models.SignalRecord
			payload []byte
		)
		if err := rows.Scan(&key, &rec.Timestamp, &payload, &rec.TriggerCount); err != nil {
			return nil, fmt.Errorf("scan signal record: %w", err)
		}
		if err := json.Unmarshal(payload, &rec.Finding); err != nil {
			return nil, fmt.Errorf("decode payload for %s: %w", key, err)
		}
		records[key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal records: %w", err)
	}
	return records, nil
}

// Save replaces the whole table in one transaction.
func (db *DB) Save(ctx context.Context, records map[string]models.SignalRecord) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM signal_records`); err != nil {
		return fmt.Errorf("clear signal records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signal_records (key, timestamp, payload, trigger_count)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for key, rec := range records {
		payload, err := json.Marshal(rec.Finding)
		if err != nil {
			return fmt.Errorf("encode payload for %s: %w", key, err)
		}
		if _, err := stmt.ExecContext(ctx, key, rec.Timestamp, string(payload), rec.TriggerCount); err != nil {
			return fmt.Errorf("insert %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
