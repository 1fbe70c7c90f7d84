package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/arbelos/rakeback/service/settle"
)

// USDCMint is the mainnet USDC mint, the default settlement asset.
const USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// Config holds all application configuration loaded from environment
// variables. All required fields are validated at startup to ensure
// fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string
	AdminKey   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Solana configuration
	SolanaRPCURL string

	// Birdeye configuration
	BirdeyeAPIKey string

	// Fee payer observed in the trade feed. Empty disables the
	// fee-payer filter (useful in dev against replayed payloads).
	FeePayer string

	// Settlement configuration
	UltraReferralAccount   string
	TriggerReferralAccount string
	SettlementPayer        string
	ProjectAdmin           string
	TreasuryWallet         string
	SettlementMint         string
	MinPayoutUSD           float64

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Schedule intervals
	ClaimInterval        time.Duration
	BalanceCheckInterval time.Duration
}

// Load reads configuration from environment variables and validates all
// required fields. Returns an error listing every problem found rather
// than stopping at the first.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.AdminKey = os.Getenv("ADMIN_KEY")
	if cfg.AdminKey == "" {
		errs = append(errs, fmt.Errorf("ADMIN_KEY is required"))
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	cfg.BirdeyeAPIKey = os.Getenv("BIRDEYE_API_KEY")
	if cfg.BirdeyeAPIKey == "" {
		errs = append(errs, fmt.Errorf("BIRDEYE_API_KEY is required"))
	}

	cfg.FeePayer = os.Getenv("FEE_PAYER_PUBLIC_KEY")

	cfg.UltraReferralAccount = os.Getenv("ULTRA_REFERRAL_ACCOUNT")
	cfg.TriggerReferralAccount = os.Getenv("TRIGGER_REFERRAL_ACCOUNT")
	if cfg.UltraReferralAccount == "" && cfg.TriggerReferralAccount == "" {
		errs = append(errs, fmt.Errorf("at least one of ULTRA_REFERRAL_ACCOUNT or TRIGGER_REFERRAL_ACCOUNT is required"))
	}

	// The settlement authority is optional: without it the service runs
	// in enumerate-only mode and every execution step fails per item.
	cfg.SettlementPayer = os.Getenv("SETTLEMENT_PAYER")
	cfg.ProjectAdmin = os.Getenv("PROJECT_ADMIN")
	cfg.TreasuryWallet = os.Getenv("TREASURY_WALLET")
	if cfg.TreasuryWallet == "" {
		errs = append(errs, fmt.Errorf("TREASURY_WALLET is required"))
	}
	cfg.SettlementMint = getEnvOrDefault("SETTLEMENT_MINT", USDCMint)

	minPayout, err := parseFloat("MIN_PAYOUT_USD", "1.00")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinPayoutUSD = minPayout
	}

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "rakeback-settlement")

	claimInterval, err := parseDuration("CLAIM_INTERVAL", "1h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ClaimInterval = claimInterval
	}

	balanceInterval, err := parseDuration("BALANCE_CHECK_INTERVAL", "15m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.BalanceCheckInterval = balanceInterval
	}

	// Every configured address must parse; a typo here would otherwise
	// surface as a confusing on-chain error much later.
	for name, val := range map[string]string{
		"ULTRA_REFERRAL_ACCOUNT":   cfg.UltraReferralAccount,
		"TRIGGER_REFERRAL_ACCOUNT": cfg.TriggerReferralAccount,
		"SETTLEMENT_PAYER":         cfg.SettlementPayer,
		"PROJECT_ADMIN":            cfg.ProjectAdmin,
		"TREASURY_WALLET":          cfg.TreasuryWallet,
		"SETTLEMENT_MINT":          cfg.SettlementMint,
	} {
		if val == "" {
			continue
		}
		if _, err := solana.PublicKeyFromBase58(val); err != nil {
			errs = append(errs, fmt.Errorf("%s is not a valid address: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid. Useful
// for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// SettlementConfig converts the validated string configuration into the
// orchestrator's typed config. Load has already verified the addresses,
// so parsing here cannot fail.
func (c *Config) SettlementConfig() settle.Config {
	cfg := settle.Config{
		SettlementMint: solana.MustPublicKeyFromBase58(c.SettlementMint),
		MinPayoutUSD:   c.MinPayoutUSD,
	}
	if c.UltraReferralAccount != "" {
		cfg.Identities = append(cfg.Identities, settle.Identity{
			Name:            "ultra",
			ReferralAccount: solana.MustPublicKeyFromBase58(c.UltraReferralAccount),
		})
	}
	if c.TriggerReferralAccount != "" {
		cfg.Identities = append(cfg.Identities, settle.Identity{
			Name:            "trigger",
			ReferralAccount: solana.MustPublicKeyFromBase58(c.TriggerReferralAccount),
		})
	}
	if c.SettlementPayer != "" {
		cfg.Payer = solana.MustPublicKeyFromBase58(c.SettlementPayer)
	}
	if c.ProjectAdmin != "" {
		cfg.ProjectAdmin = solana.MustPublicKeyFromBase58(c.ProjectAdmin)
	}
	if c.TreasuryWallet != "" {
		cfg.TreasuryWallet = solana.MustPublicKeyFromBase58(c.TreasuryWallet)
	}
	return cfg
}

// getEnvOrDefault returns the environment variable value or a default
// if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses
// a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid duration: %w", key, err)
	}
	return duration, nil
}

// parseFloat parses a float from an environment variable or uses a
// default.
func parseFloat(key, defaultValue string) (float64, error) {
	value := getEnvOrDefault(key, defaultValue)
	var f float64
	if _, err := fmt.Sscanf(strings.TrimSpace(value), "%g", &f); err != nil {
		return 0, fmt.Errorf("%s is not a valid number: %w", key, err)
	}
	return f, nil
}
