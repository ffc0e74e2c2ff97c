package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite stores checks in a local database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and its schema.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("history: sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("history: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initSQLiteSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS live_checks (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id   TEXT NOT NULL,
		channel_name TEXT NOT NULL DEFAULT '',
		query        TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		checked_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS live_checks_channel_time ON live_checks (channel_id, checked_at)`)
	return err
}

// Record inserts c. An empty CheckedAt is stamped with the current time;
// checked_at is kept as UTC RFC 3339 text so it sorts chronologically.
func (s *SQLite) Record(ctx context.Context, c Check) error {
	c, _, err := normalize(c, time.Now())
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO live_checks (channel_id, channel_name, query, status, checked_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ChannelID, c.ChannelName, c.Query, c.Status, c.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit checks of channelID, newest first.
func (s *SQLite) Recent(ctx context.Context, channelID string, limit int) ([]Check, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, channel_name, query, status, checked_at
		 FROM live_checks WHERE channel_id = ? ORDER BY checked_at DESC, id DESC LIMIT ?`,
		channelID, normLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Check
	for rows.Next() {
		var c Check
		if err := rows.Scan(&c.ChannelID, &c.ChannelName, &c.Query, &c.Status, &c.CheckedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }
