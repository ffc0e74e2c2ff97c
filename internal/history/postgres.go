package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS live_checks (
	id           BIGSERIAL PRIMARY KEY,
	channel_id   TEXT NOT NULL,
	channel_name TEXT NOT NULL DEFAULT '',
	query        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	checked_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS live_checks_channel ON live_checks (channel_id, checked_at DESC)`

// Postgres stores checks in PostgreSQL, shared between replicas.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres creates a pgx pool and ensures the schema exists.
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 5
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Record inserts c. An empty CheckedAt is stamped with the current time.
func (p *Postgres) Record(ctx context.Context, c Check) error {
	c, at, err := normalize(c, time.Now())
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO live_checks (channel_id, channel_name, query, status, checked_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ChannelID, c.ChannelName, c.Query, c.Status, at,
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit checks of channelID, newest first.
func (p *Postgres) Recent(ctx context.Context, channelID string, limit int) ([]Check, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT channel_id, channel_name, query, status, checked_at
		 FROM live_checks WHERE channel_id = $1 ORDER BY checked_at DESC, id DESC LIMIT $2`,
		channelID, normLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Check
	for rows.Next() {
		var c Check
		var at time.Time
		if err := rows.Scan(&c.ChannelID, &c.ChannelName, &c.Query, &c.Status, &at); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		c.CheckedAt = at.UTC().Format(time.RFC3339)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
