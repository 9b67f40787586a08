// Package server assembles the HTTP API: routing, middleware, and the
// server lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/inkpress/comicmint/internal/domain"
	"github.com/inkpress/comicmint/internal/server/handler"
	"github.com/inkpress/comicmint/internal/server/middleware"
	"github.com/inkpress/comicmint/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// APIKey protects mutating endpoints; empty disables auth.
	APIKey string

	// RateLimit is requests per client IP per RateWindow; zero disables
	// API-wide limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the route handlers the server mounts.
type Handlers struct {
	Health      *handler.HealthHandler
	Listings    *handler.ListingHandler
	Settlement  *handler.SettlementHandler
	Transaction *handler.TransactionHandler
	Reconcile   *handler.ReconcileHandler
	Hub         *ws.Hub
}

// Server wraps the standard library HTTP server with the marketplace
// routes and middleware stack.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes registered. limiter may be nil when
// API-wide rate limiting is disabled.
func New(cfg Config, h Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.Health)

	mux.HandleFunc("GET /api/listings", h.Listings.List)
	mux.HandleFunc("POST /api/listings", h.Listings.Create)
	mux.HandleFunc("GET /api/listings/{id}", h.Listings.Get)
	mux.HandleFunc("DELETE /api/listings/{id}", h.Listings.Cancel)
	mux.HandleFunc("POST /api/listings/{id}/bids", h.Listings.PlaceBid)
	mux.HandleFunc("POST /api/listings/{id}/buy", h.Settlement.Buy)

	mux.HandleFunc("POST /api/auctions", h.Listings.CreateAuction)
	mux.HandleFunc("POST /api/auctions/{id}/complete", h.Settlement.CompleteAuction)

	mux.HandleFunc("GET /api/transactions", h.Transaction.List)
	mux.HandleFunc("GET /api/transactions/{id}", h.Transaction.Get)

	mux.HandleFunc("POST /api/admin/backfill", h.Reconcile.Backfill)

	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWS)
	}

	// Innermost to outermost: auth, logging, rate limit, CORS. CORS sits
	// outside so preflight requests short-circuit before auth.
	var chained http.Handler = mux
	chained = middleware.Auth(cfg.APIKey)(chained)
	chained = middleware.Logging(logger)(chained)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		chained = middleware.RateLimit(limiter, cfg.RateLimit, window)(chained)
	}
	chained = middleware.CORS(cfg.CORSOrigins)(chained)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      chained,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or fails.
func (s *Server) Start() error {
	s.logger.Info("server: listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	return s.httpServer.Shutdown(ctx)
}
