package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbelos/rakeback/service/config"
	"github.com/arbelos/rakeback/service/db"
	"github.com/arbelos/rakeback/service/feed"
	"github.com/arbelos/rakeback/service/metrics"
	natspkg "github.com/arbelos/rakeback/service/nats"
	"github.com/arbelos/rakeback/service/prices"
	"github.com/arbelos/rakeback/service/server"
	"github.com/arbelos/rakeback/service/settle"
	solanasvc "github.com/arbelos/rakeback/service/solana"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// Verify database connection
	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize database store
	store := db.NewStore(dbPool)

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Initialize Solana RPC client
	// Note: For premium RPC endpoints, include API key in the URL
	solanaRPC := solanasvc.NewRPCClient(cfg.SolanaRPCURL)
	solanaClient := solanasvc.NewClient(solanaRPC, endpointLabel(cfg.SolanaRPCURL), metricsCollector, logger)
	logger.Info("initialized solana RPC client", "endpoint", endpointLabel(cfg.SolanaRPCURL))

	// Initialize Birdeye price client
	priceClient := prices.NewClient(cfg.BirdeyeAPIKey, logger)

	// Initialize NATS publisher
	natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create NATS publisher", "error", err)
		os.Exit(1)
	}
	defer natsPublisher.Close()
	logger.Info("connected to NATS", "url", cfg.NATSURL)

	// Initialize trade feed processor for the Helius webhook
	processor := feed.NewProcessor(store, priceClient, natsPublisher, metricsCollector, cfg.FeePayer, logger)

	// Initialize settlement orchestrator and payout runner. The server
	// process never holds signing keys: the nil executor leaves the
	// admin claim/sweep/payout endpoints in enumerate-only mode, where
	// each step reports what it would do and why it cannot execute.
	settleCfg := cfg.SettlementConfig()
	orchestrator := settle.NewOrchestrator(settleCfg, solanaClient, nil, metricsCollector, logger)
	payer := settle.NewPayer(orchestrator, store, priceClient, natsPublisher)

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, store, processor, orchestrator, payer, solanaClient, priceClient, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"solana_rpc", cfg.SolanaRPCURL,
		"nats_url", cfg.NATSURL,
		"identities", len(settleCfg.Identities),
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// endpointLabel extracts a short identifier from the Solana RPC URL for
// metrics labeling so API keys embedded in the URL never reach a label.
func endpointLabel(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil {
		return "unknown"
	}
	if host := parsed.Hostname(); host != "" {
		return host
	}
	return "unknown"
}
