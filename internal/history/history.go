// Package history persists completed live status checks so a channel's
// punctuality can be looked up later. Backends: SQLite (single node) and
// PostgreSQL (shared).
package history

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Check is one completed live status check.
type Check struct {
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name,omitempty"`
	Query       string `json:"query,omitempty"`
	Status      string `json:"live_status"`
	CheckedAt   string `json:"checked_at"` // RFC 3339, UTC
}

// Store records checks and lists them back, newest first.
type Store interface {
	Record(ctx context.Context, c Check) error
	Recent(ctx context.Context, channelID string, limit int) ([]Check, error)
	Close() error
}

// DefaultLimit and MaxLimit bound Recent.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// normLimit maps out-of-range limits to DefaultLimit.
func normLimit(limit int) int {
	if limit <= 0 || limit > MaxLimit {
		return DefaultLimit
	}
	return limit
}

// normalize validates c and resolves CheckedAt, stamping now when empty.
// Every backend stores the returned time, so ordering agrees across them.
func normalize(c Check, now time.Time) (Check, time.Time, error) {
	if c.ChannelID == "" || c.Status == "" {
		return c, time.Time{}, errors.New("history: channel_id and status are required")
	}
	at := now.UTC()
	if c.CheckedAt != "" {
		t, err := time.Parse(time.RFC3339, c.CheckedAt)
		if err != nil {
			return c, time.Time{}, fmt.Errorf("history: checked_at: %w", err)
		}
		at = t.UTC()
	}
	c.CheckedAt = at.Format(time.RFC3339)
	return c, at, nil
}

// Nop discards every check.
type Nop struct{}

func (Nop) Record(context.Context, Check) error                   { return nil }
func (Nop) Recent(context.Context, string, int) ([]Check, error) { return nil, nil }
func (Nop) Close() error                                          { return nil }
