package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_RecordAndRecent(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Check{ChannelID: "UC1", ChannelName: "One", Query: "@one", Status: "UPCOMING", CheckedAt: "2026-10-01T10:00:00Z"}))
	require.NoError(t, s.Record(ctx, Check{ChannelID: "UC1", ChannelName: "One", Query: "@one", Status: "LATE", CheckedAt: "2026-10-01T10:05:00Z"}))
	require.NoError(t, s.Record(ctx, Check{ChannelID: "UC2", Status: "LIVE", CheckedAt: "2026-10-01T10:06:00Z"}))

	got, err := s.Recent(ctx, "UC1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "LATE", got[0].Status, "newest first")
	assert.Equal(t, "UPCOMING", got[1].Status)
	assert.Equal(t, "@one", got[0].Query)
	assert.Equal(t, "2026-10-01T10:05:00Z", got[0].CheckedAt)
}

func TestSQLite_RecordStampsTime(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Check{ChannelID: "UC1", Status: "LIVE"}))
	got, err := s.Recent(ctx, "UC1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].CheckedAt)
}

func TestSQLite_RecordValidation(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	assert.Error(t, s.Record(ctx, Check{Status: "LIVE"}))
	assert.Error(t, s.Record(ctx, Check{ChannelID: "UC1"}))
}

func TestSQLite_RecentLimit(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	for i := 0; i < DefaultLimit+5; i++ {
		require.NoError(t, s.Record(ctx, Check{ChannelID: "UC1", Status: "UPCOMING", CheckedAt: fmt.Sprintf("2026-10-01T10:%02d:00Z", i)}))
	}

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"explicit", 3, 3},
		{"zero uses default", 0, DefaultLimit},
		{"negative uses default", -1, DefaultLimit},
		{"over max uses default", MaxLimit + 1, DefaultLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Recent(ctx, "UC1", tt.limit)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestSQLite_RecentUnknownChannel(t *testing.T) {
	s := openTestSQLite(t)
	got, err := s.Recent(context.Background(), "UCnobody", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, Check{ChannelID: "UC1", Status: "LIVE"}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Recent(ctx, "UC1", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite("")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var s Store = Nop{}
	ctx := context.Background()
	assert.NoError(t, s.Record(ctx, Check{ChannelID: "UC1", Status: "LIVE"}))
	got, err := s.Recent(ctx, "UC1", 5)
	assert.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, s.Close())
}

func TestSQLite_RecentOrdersByCheckedAt(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	// inserted out of order; the +02:00 offset is 09:30 UTC
	require.NoError(t, s.Record(ctx, Check{ChannelID: "UC1", Status: "LATE", CheckedAt: "2026-10-01T10:05:00Z"}))
	require.NoError(t, s.Record(ctx, Check{ChannelID: "UC1", Status: "UPCOMING", CheckedAt: "2026-10-01T11:30:00+02:00"}))
	require.NoError(t, s.Record(ctx, Check{ChannelID: "UC1", Status: "LIVE", CheckedAt: "2026-10-01T10:10:00Z"}))

	got, err := s.Recent(ctx, "UC1", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"LIVE", "LATE", "UPCOMING"}, []string{got[0].Status, got[1].Status, got[2].Status})
	assert.Equal(t, "2026-10-01T09:30:00Z", got[2].CheckedAt)
}

func TestSQLite_RecordRejectsBadCheckedAt(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	assert.Error(t, s.Record(ctx, Check{ChannelID: "UC1", Status: "LIVE", CheckedAt: "yesterday"}))
	got, err := s.Recent(ctx, "UC1", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNormalize(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		in      Check
		want    string
		wantErr bool
	}{
		{"stamps empty", Check{ChannelID: "UC1", Status: "LIVE"}, "2026-10-15T12:00:00Z", false},
		{"keeps utc", Check{ChannelID: "UC1", Status: "LIVE", CheckedAt: "2026-10-01T10:00:00Z"}, "2026-10-01T10:00:00Z", false},
		{"converts offset", Check{ChannelID: "UC1", Status: "LIVE", CheckedAt: "2026-10-01T10:00:00-03:00"}, "2026-10-01T13:00:00Z", false},
		{"bad time", Check{ChannelID: "UC1", Status: "LIVE", CheckedAt: "2026-10-01"}, "", true},
		{"missing channel", Check{Status: "LIVE"}, "", true},
		{"missing status", Check{ChannelID: "UC1"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, at, err := normalize(tt.in, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.CheckedAt)
			assert.Equal(t, tt.want, at.Format(time.RFC3339))
		})
	}
}
