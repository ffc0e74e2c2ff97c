// Package api serves the REST surface: live status checks, check history,
// health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/anatolykoptev/go_ytlate/internal/engine"
)

// Checker is the engine surface the handlers need.
type Checker interface {
	CheckLate(ctx context.Context, query string) (engine.LateResult, error)
	History(ctx context.Context, query string, limit int) (engine.HistoryResult, error)
}

// Options configures a Server.
type Options struct {
	TrustedProxies int           // X-Forwarded-* hops to trust; 0 ignores the headers
	Metrics        func() string // text exposition for /metrics; nil disables the route
}

// Server routes REST requests to a Checker.
type Server struct {
	checker Checker
	opts    Options
	mux     *http.ServeMux
}

// New builds the server and registers its routes.
func New(checker Checker, opts Options) *Server {
	s := &Server{checker: checker, opts: opts, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /late", s.handleLate)
	s.mux.HandleFunc("GET /history", s.handleHistory)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if opts.Metrics != nil {
		s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	}
	return s
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return proxyHeaders(s.opts.TrustedProxies, requestID(accessLog(s.mux)))
}

// ListenAndServe serves h on addr until ctx is done, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http: listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("http: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

type indexResponse struct {
	Routes []string `json:"routes"`
}

type errorResponse struct {
	Query     string `json:"query,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	Error     string `json:"error"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, indexResponse{Routes: []string{"late", "history"}})
}

func (s *Server) handleLate(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing YouTube channel argument"})
		return
	}

	res, err := s.checker.CheckLate(r.Context(), channel)
	if err != nil {
		writeCheckError(w, channel, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channel := q.Get("channel")
	if channel == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing YouTube channel argument"})
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Query: channel, Error: "limit must be an integer"})
			return
		}
		limit = n
	}

	res, err := s.checker.History(r.Context(), channel, limit)
	if err != nil {
		writeCheckError(w, channel, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, s.opts.Metrics())
}

// writeCheckError maps engine errors to a status code. The body always
// carries the query and, once resolved, the channel id.
func writeCheckError(w http.ResponseWriter, query string, err error) {
	body := errorResponse{Query: query, Error: err.Error()}
	var ce *engine.CheckError
	if errors.As(err, &ce) {
		body.ChannelID = ce.ChannelID
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrChannelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidHandle), errors.Is(err, engine.ErrEmptyQuery):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("http: encode response failed", slog.Any("error", err))
	}
}
