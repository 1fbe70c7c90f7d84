package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arbelos/rakeback/service/config"
	"github.com/arbelos/rakeback/service/db"
	"github.com/arbelos/rakeback/service/metrics"
	natspkg "github.com/arbelos/rakeback/service/nats"
	"github.com/arbelos/rakeback/service/prices"
	"github.com/arbelos/rakeback/service/settle"
	solanasvc "github.com/arbelos/rakeback/service/solana"
	"github.com/arbelos/rakeback/service/temporal"
)

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
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
	logger.Info("Prometheus metrics collector initialized")

	// Start metrics HTTP server
	metricsAddr := getEnv("METRICS_ADDR", ":9091")
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}

	go func() {
		logger.Info("starting metrics HTTP server", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	// Initialize Solana RPC client
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

	// Initialize settlement orchestrator and payout runner. Signing is
	// delegated to an external service; until that executor is wired in,
	// scheduled runs enumerate claimable vaults and owed payouts without
	// submitting transactions.
	settleCfg := cfg.SettlementConfig()
	orchestrator := settle.NewOrchestrator(settleCfg, solanaClient, nil, metricsCollector, logger)
	payer := settle.NewPayer(orchestrator, store, priceClient, natsPublisher)

	// Initialize Temporal client for schedule management
	temporalClient, err := temporal.NewClient(
		cfg.TemporalHost,
		cfg.TemporalNamespace,
		cfg.TemporalTaskQueue,
		logger,
	)
	if err != nil {
		logger.Error("failed to create temporal client", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("connected to temporal for schedule management",
		"host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
	)

	// Ensure the settlement schedules exist. Creation is idempotent so
	// every worker start can call this unconditionally.
	if err := temporalClient.CreateClaimSchedule(ctx, cfg.ClaimInterval); err != nil {
		logger.Error("failed to create claim schedule", "error", err)
		os.Exit(1)
	}
	payoutHour := getEnvInt("PAYOUT_HOUR_UTC", 2)
	if err := temporalClient.CreatePayoutSchedule(ctx, payoutHour); err != nil {
		logger.Error("failed to create payout schedule", "error", err)
		os.Exit(1)
	}
	if cfg.SettlementPayer != "" {
		minSOL := getEnvFloat("MIN_PAYER_SOL", 0.1)
		minLamports := uint64(minSOL * 1e9)
		if err := temporalClient.CreateBalanceCheckSchedule(ctx, cfg.SettlementPayer, minLamports, cfg.BalanceCheckInterval); err != nil {
			logger.Error("failed to create balance check schedule", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("settlement schedules ensured",
		"claim_interval", cfg.ClaimInterval,
		"payout_hour_utc", payoutHour,
		"balance_check", cfg.SettlementPayer != "",
	)

	// Initialize Temporal worker
	workerConfig := temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Settler:           orchestrator,
		Payer:             payer,
		SolanaClient:      solanaClient,
		Metrics:           metricsCollector,
		Logger:            logger,
	}

	worker, err := temporal.NewWorker(workerConfig)
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("temporal worker initialized, all dependencies ready",
		"temporal_host", cfg.TemporalHost,
		"temporal_namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"identities", len(settleCfg.Identities),
	)

	// Start worker in background
	workerErrors := make(chan error, 1)
	go func() {
		logger.Info("starting temporal worker")
		workerErrors <- worker.Start()
	}()

	// Wait for shutdown signal or worker error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Stop worker gracefully
		logger.Info("stopping temporal worker")
		worker.Stop()
		logger.Info("temporal worker stopped")

		logger.Info("shutdown complete")
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

// getEnv returns the value of an environment variable or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
