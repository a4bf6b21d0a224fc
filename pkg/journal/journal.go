// Package journal records every command the hub applies in a sqlite table. The journal is an
// audit trail only: it is never replayed into the hub.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDSN keeps the journal in memory for the lifetime of the process.
const DefaultDSN = "file:noteboard?mode=memory&cache=shared"

type Entry struct {
	Seq     int64           `json:"seq"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

type Journal struct {
	database *sql.DB
	now      func() time.Time
}

// Open connects to the sqlite database at dsn and ensures the commands table exists.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// in-memory databases vanish with their last connection
	db.SetMaxOpenConns(1)
	j := &Journal{database: db, now: time.Now}
	if err := j.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) init(ctx context.Context) error {
	if _, err := j.database.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS commands (
		seq integer not null primary key autoincrement,
		event text not null,
		payload text,
		at integer not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create commands table: %w", err)
	}
	slog.Debug("Ensured journal table exists")
	return nil
}

// Append stores one applied command and returns its sequence number.
func (j *Journal) Append(ctx context.Context, event string, payload []byte) (int64, error) {
	var p sql.NullString
	if len(payload) > 0 {
		p = sql.NullString{String: string(payload), Valid: true}
	}
	res, err := j.database.ExecContext(ctx,
		`INSERT INTO commands (event, payload, at) VALUES (?, ?, ?)`,
		event, p, j.now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append %s: %w", event, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}
	return seq, nil
}

// Since lists up to limit entries with a sequence greater than seq, oldest first.
func (j *Journal) Since(ctx context.Context, seq int64, limit int) ([]Entry, error) {
	rows, err := j.database.QueryContext(ctx,
		`SELECT seq, event, payload, at FROM commands WHERE seq > ? ORDER BY seq LIMIT ?`,
		seq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "err", err)
		}
	}(rows)

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e       Entry
			payload sql.NullString
			at      int64
		)
		if err := rows.Scan(&e.Seq, &e.Event, &payload, &at); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		e.At = time.UnixMilli(at).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (j *Journal) Close() error {
	return j.database.Close()
}
