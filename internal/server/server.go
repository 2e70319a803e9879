// Package server exposes the ledger over a small read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/duesbot/internal/middleware"
	"github.com/dukerupert/duesbot/internal/model"
	"github.com/dukerupert/duesbot/internal/view"
	ws "github.com/dukerupert/duesbot/internal/websocket"
)

const shutdownTimeout = 5 * time.Second

// Source hands out ledger snapshots. *ledger.Engine implements it.
type Source interface {
	Snapshot() model.Ledger
}

type Server struct {
	source Source
	hub    *ws.Hub
	unit   string
	logger *slog.Logger
}

func New(source Source, hub *ws.Hub, unit string, logger *slog.Logger) *Server {
	return &Server{
		source: source,
		hub:    hub,
		unit:   unit,
		logger: logger,
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /api/ledger", s.ledgerHandler)
	mux.HandleFunc("GET /api/summary", s.summaryHandler)
	mux.Handle("GET /ws", ws.HandleWebSocket(s.hub, s.source.Snapshot, s.logger.With("component", "websocket")))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

type ledgerResponse struct {
	model.Ledger
	PaidCount   int `json:"paid_count"`
	UnpaidCount int `json:"unpaid_count"`
}

func (s *Server) ledgerHandler(w http.ResponseWriter, r *http.Request) {
	l := s.source.Snapshot()
	if l.Members == nil {
		l.Members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, ledgerResponse{
		Ledger:      l,
		PaidCount:   l.PaidCount(),
		UnpaidCount: l.UnpaidCount(),
	})
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, view.Summary(s.source.Snapshot(), s.unit))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
