package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arbelos/rakeback/service/config"
	"github.com/arbelos/rakeback/service/db"
	"github.com/arbelos/rakeback/service/feed"
	"github.com/arbelos/rakeback/service/metrics"
)

// Server represents the HTTP server for the referral fee service.
type Server struct {
	addr      string
	cfg       *config.Config
	store     *db.Store
	processor *feed.Processor
	settler   Settler
	payer     PayoutRunner
	vaults    VaultReader
	prices    PriceLookup
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// settler, payer, vaults, and prices power the admin settlement
// surface; metrics is optional and disables the /metrics endpoint when
// nil.
func New(addr string, cfg *config.Config, store *db.Store, processor *feed.Processor, settler Settler, payer PayoutRunner, vaults VaultReader, prices PriceLookup, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		cfg:       cfg,
		store:     store,
		processor: processor,
		settler:   settler,
		payer:     payer,
		vaults:    vaults,
		prices:    prices,
		metrics:   m,
		logger:    logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	s.routes(mux)

	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) routes(mux *http.ServeMux) {
	// User and ledger routes
	mux.Handle("POST /api/v1/users", s.instrument("register_user", handleRegisterUser(s.store, s.logger)))
	mux.Handle("GET /api/v1/users/{wallet}", s.instrument("get_user", handleGetUser(s.store, s.logger)))
	mux.Handle("GET /api/v1/referrals/{wallet}/stats", s.instrument("referral_stats", handleGetReferralStats(s.store, s.logger)))
	mux.Handle("GET /api/v1/swaps", s.instrument("list_swaps", handleListSwaps(s.store, s.logger)))

	// Trade feed webhook. The shared admin secret doubles as the
	// webhook auth header, matching the Helius webhook configuration.
	mux.Handle("POST /webhooks/helius", s.instrument("helius_webhook", handleHeliusWebhook(s.processor, s.cfg.AdminKey, s.logger)))

	// Admin settlement surface
	identities := s.cfg.SettlementConfig().Identities
	s.admin(mux, "GET /admin/fees/status", "admin_fee_status", handleFeeStatus(identities, s.vaults, s.prices, s.logger))
	s.admin(mux, "POST /admin/fees/claim", "admin_claim", handleTriggerClaim(s.settler, s.logger))
	s.admin(mux, "POST /admin/fees/sweep", "admin_sweep", handleTriggerSweep(s.settler, s.logger))
	s.admin(mux, "POST /admin/payouts/run", "admin_payout_run", handleTriggerPayouts(s.payer, s.logger))
	s.admin(mux, "GET /admin/payouts/pending", "admin_payout_pending", handleListPendingPayouts(s.store, s.cfg.MinPayoutUSD, s.logger))
	s.admin(mux, "GET /admin/stats", "admin_stats", handlePlatformStats(s.store, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}
}

func (s *Server) admin(mux *http.ServeMux, pattern, name string, h http.Handler) {
	mux.Handle(pattern, s.instrument(name, requireAdminKey(s.cfg.AdminKey, h)))
}

func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS
// preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Key")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
