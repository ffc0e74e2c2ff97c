package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	LateRequests          atomic.Int64
	LateErrors            atomic.Int64
	HistoryRequests       atomic.Int64
	YouTubeAPICalls       atomic.Int64
	YouTubeAPIErrors      atomic.Int64
	YouTubeQuotaFallbacks atomic.Int64
	HistoryWrites         atomic.Int64
	HistoryErrors         atomic.Int64
}

var metricKeys = []string{
	"late_requests", "late_errors", "history_requests",
	"youtube_api_calls", "youtube_api_errors", "youtube_quota_fallbacks",
	"history_writes", "history_errors",
	"cache_hits", "cache_misses",
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"late_requests":           metrics.LateRequests.Load(),
		"late_errors":             metrics.LateErrors.Load(),
		"history_requests":        metrics.HistoryRequests.Load(),
		"youtube_api_calls":       metrics.YouTubeAPICalls.Load(),
		"youtube_api_errors":      metrics.YouTubeAPIErrors.Load(),
		"youtube_quota_fallbacks": metrics.YouTubeQuotaFallbacks.Load(),
		"history_writes":          metrics.HistoryWrites.Load(),
		"history_errors":          metrics.HistoryErrors.Load(),
		"cache_hits":              hits,
		"cache_misses":            misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
