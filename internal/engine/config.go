package engine

import (
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	YouTubeAPIKey         string
	YouTubeAPIKeyFallback string // used when the primary key is over quota
	YouTubeEndpoint       string // empty = Google default
	YouTubeQPS            float64
	YouTubeBurst          int
	ChannelTTL            time.Duration // channel id resolution + channel info
	UpcomingTTL           time.Duration // upcoming broadcast search
	StatusTTL             time.Duration // computed live status
	ScheduleHorizon       time.Duration // scheduled streams further out are ignored
	FetchTimeout          time.Duration // bound on one shared upstream lookup
	CacheMaxEntries       int
	CacheCleanupInterval  time.Duration
	Retry                 RetryConfig
}

var cfg Config

// Cfg exposes the engine configuration for other packages.
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
// Zero-valued fields fall back to defaults.
func Init(c Config) {
	if c.YouTubeQPS <= 0 {
		c.YouTubeQPS = 5
	}
	if c.YouTubeBurst <= 0 {
		c.YouTubeBurst = 10
	}
	if c.ChannelTTL <= 0 {
		c.ChannelTTL = 12 * time.Hour
	}
	if c.UpcomingTTL <= 0 {
		c.UpcomingTTL = 10 * time.Minute
	}
	if c.StatusTTL <= 0 {
		c.StatusTTL = time.Minute
	}
	if c.ScheduleHorizon <= 0 {
		c.ScheduleHorizon = 7 * 24 * time.Hour
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.Retry.MaxRetries == 0 && c.Retry.InitialWait == 0 {
		c.Retry = DefaultRetryConfig
	}
	cfg = c
	Cfg = &cfg
}
