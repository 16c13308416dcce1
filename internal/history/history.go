package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Row is one historical sensor reading.
type Row struct {
	Device   string    `json:"device"`
	Key      string    `json:"key"`
	Category string    `json:"category"`
	At       time.Time `json:"at"`
	Value    float64   `json:"value"`
	Health   string    `json:"health"`
	Source   string    `json:"source"`
}

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	device   TEXT    NOT NULL,
	key      TEXT    NOT NULL,
	category TEXT    NOT NULL,
	ts       INTEGER NOT NULL,
	value    REAL    NOT NULL,
	health   TEXT    NOT NULL,
	source   TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_device_key_ts
	ON readings (device, key, ts DESC);
`

// DB is the SQLite-backed reading archive.
type DB struct {
	db        *sql.DB
	retention time.Duration
}

// Open opens (creating if needed) the archive at path.
func Open(path string, retention time.Duration) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", path, err)
	}
	// modernc.org/sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY between the writer and API readers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &DB{db: db, retention: retention}, nil
}

// Close releases the underlying database handle.
func (d *DB) Close() error { return d.db.Close() }

// Insert writes a batch of rows in one transaction.
func (d *DB) Insert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO readings (device, key, category, ts, value, health, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.Device, r.Key, r.Category, r.At.Unix(), r.Value, r.Health, r.Source); err != nil {
			return fmt.Errorf("history: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Recent returns the newest rows for a device, newest first. A non-empty key
// filters to one sensor. limit <= 0 selects a default of 100.
func (d *DB) Recent(ctx context.Context, device, key string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 100
	}

	q := `SELECT device, key, category, ts, value, health, source
	      FROM readings WHERE device = ?`
	args := []interface{}{device}
	if key != "" {
		q += " AND key = ?"
		args = append(args, key)
	}
	q += " ORDER BY ts DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var ts int64
		if err := rows.Scan(&r.Device, &r.Key, &r.Category, &ts, &r.Value, &r.Health, &r.Source); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		r.At = time.Unix(ts, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes rows older than the retention window and returns the number
// removed.
func (d *DB) Prune(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-d.retention).Unix()
	res, err := d.db.ExecContext(ctx, `DELETE FROM readings WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
