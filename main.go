// go_ytlate is an "is the streamer late?" service over the YouTube Data API.
//
// REST:  GET /late?channel=<UC id|@handle|username>, GET /history, /health, /metrics.
// MCP:   youtube_live_status, youtube_live_history (HTTP MCP server on MCP_PORT).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/anatolykoptev/go_ytlate/internal/api"
	"github.com/anatolykoptev/go_ytlate/internal/engine"
	"github.com/anatolykoptev/go_ytlate/internal/history"
	"github.com/anatolykoptev/go_ytlate/internal/ytserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	version = "dev"
	port    = env.Str("PORT", "8080")
)

const defaultMCPPort = "8892"

func main() {
	initLogging(env.Str("LOG_LEVEL", "info"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mcpPort := mcpListenPort()
	checker, store, err := initEngine(ctx)
	if err != nil {
		slog.Error("init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	slog.Info("starting go_ytlate",
		slog.String("version", version),
		slog.String("port", port),
		slog.String("mcp_port", mcpPort),
	)

	rest := api.New(checker, api.Options{
		TrustedProxies: env.Int("TRUSTED_PROXIES", 1),
		Metrics:        engine.FormatMetrics,
	})

	errCh := make(chan error, 2)
	go func() { errCh <- api.ListenAndServe(ctx, ":"+port, rest.Handler()) }()

	if mcpPort != "" {
		server := mcp.NewServer(&mcp.Implementation{
			Name:    "go_ytlate",
			Version: version,
		}, nil)
		ytserver.RegisterTools(server, checker)
		slog.Info("tools registered", slog.Int("count", 2))

		go func() {
			errCh <- mcpserver.Run(server, mcpserver.Config{
				Name:         "go_ytlate",
				Version:      version,
				Port:         mcpPort,
				WriteTimeout: 60 * time.Second,
				Metrics:      engine.FormatMetrics,
			})
		}()
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			slog.Error("server failed", slog.Any("error", err))
			stop()
			store.Close()
			os.Exit(1)
		}
	}
}

// mcpListenPort returns MCP_PORT, or the default when it is unset.
// Set but empty disables the MCP listener.
func mcpListenPort() string {
	if p, ok := os.LookupEnv("MCP_PORT"); ok {
		return strings.TrimSpace(p)
	}
	return defaultMCPPort
}

func initLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func initEngine(ctx context.Context) (*engine.Checker, history.Store, error) {
	engine.Init(engine.Config{
		YouTubeAPIKey:         env.Str("GOOGLE_API_KEY", ""),
		YouTubeAPIKeyFallback: env.Str("GOOGLE_API_KEY_FALLBACK", ""),
		YouTubeEndpoint:       env.Str("YOUTUBE_ENDPOINT", ""),
		YouTubeQPS:            env.Float("YOUTUBE_QPS", 5),
		YouTubeBurst:          env.Int("YOUTUBE_BURST", 10),
		ChannelTTL:            env.Duration("CHANNEL_TTL", 12*time.Hour),
		UpcomingTTL:           env.Duration("UPCOMING_TTL", 10*time.Minute),
		StatusTTL:             env.Duration("STATUS_TTL", time.Minute),
		ScheduleHorizon:       env.Duration("SCHEDULE_HORIZON", 7*24*time.Hour),
		FetchTimeout:          env.Duration("FETCH_TIMEOUT", 30*time.Second),
		CacheMaxEntries:       env.Int("CACHE_MAX_ENTRIES", 512),
		CacheCleanupInterval:  env.Duration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
	})
	engine.InitCache(env.Str("REDIS_URL", ""), engine.Cfg.CacheMaxEntries, engine.Cfg.CacheCleanupInterval)

	yt, err := engine.NewYouTube(ctx)
	if err != nil {
		return nil, nil, err
	}

	store := openHistory(ctx)
	return engine.NewChecker(yt, store), store, nil
}

// openHistory prefers Postgres, then SQLite, then no history at all.
// A configured but unreachable store is logged and skipped.
func openHistory(ctx context.Context) history.Store {
	if url := env.Str("DATABASE_URL", ""); url != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pg, err := history.ConnectPostgres(connectCtx, url)
		if err == nil {
			slog.Info("history: postgres connected")
			return pg
		}
		slog.Warn("history: postgres init failed", slog.Any("error", err))
	}
	if path := env.Str("HISTORY_DB", ""); path != "" {
		db, err := history.OpenSQLite(path)
		if err == nil {
			slog.Info("history: sqlite opened", slog.String("path", path))
			return db
		}
		slog.Warn("history: sqlite init failed", slog.Any("error", err))
	}
	slog.Info("history: disabled")
	return history.Nop{}
}
