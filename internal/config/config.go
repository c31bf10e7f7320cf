// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/3dhome4u/wc-backend/internal/chain"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// CORS origins allowed to call the API, comma separated.
	AllowedOrigins []string

	// Wallet-protocol settings
	WCProjectID string
	WCBridgeURL string // sign-client sidecar websocket

	// Pairing settings
	PairingTTL time.Duration

	// Blockchain settings
	RPCURL     string
	ChainID    int64
	PrivateKey string // Hex-encoded, 0x prefix optional

	// Contract addresses (empty disables the respective operations)
	GameCurrencyContract string
	ResourceNFTContract  string
	LandNFTContract      string
	ParcelStateContract  string

	// Billing settings
	TreasuryAddress string
	Prices          BillingPrices

	// Security
	RateLimitRPS int
}

// BillingPrices holds the native-token prices per action category, in wei.
// A nil or zero price leaves that category unconfigured.
type BillingPrices struct {
	ItemNFT     *big.Int
	ResourceNFT *big.Int
	Currency    *big.Int
	LandNFT     *big.Int
	ParcelState *big.Int
}

// Defaults
const (
	DefaultPort        = "3000"
	DefaultEnv         = "development"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultBridgeURL   = "ws://localhost:3100/bridge"
	DefaultPairingTTL  = 10 * time.Minute
	DefaultChainID     = 97 // BSC testnet
	DefaultRPCURL      = "https://data-seed-prebsc-1-s1.binance.org:8545"
	DefaultRateLimit   = 100
)

// DefaultAllowedOrigins covers the game's web frontends.
var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"https://3dhome4u.com",
	"https://www.3dhome4u.com",
}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:            getEnv("LOG_FORMAT", DefaultLogFormat),
		AllowedOrigins:       getEnvList("ALLOWED_ORIGINS", DefaultAllowedOrigins),
		WCProjectID:          os.Getenv("WC_PROJECT_ID"), // Required, no default
		WCBridgeURL:          getEnv("WC_BRIDGE_URL", DefaultBridgeURL),
		PairingTTL:           getEnvDuration("PAIRING_TTL", DefaultPairingTTL),
		RPCURL:               getEnv("RPC_URL", DefaultRPCURL),
		ChainID:              getEnvInt64("CHAIN_ID", DefaultChainID),
		PrivateKey:           os.Getenv("PRIVATE_KEY"), // Required, no default
		GameCurrencyContract: os.Getenv("GameCurrency_ADDRESS"),
		ResourceNFTContract:  os.Getenv("ResourceNFT_CONTRACT_ADDRESS"),
		LandNFTContract:      os.Getenv("LandNFT_CONTRACT_ADDRESS"),
		ParcelStateContract:  os.Getenv("ParcelState_CONTRACT_ADDRESS"),
		TreasuryAddress:      os.Getenv("BILLING_TREASURY_ADDRESS"),
		RateLimitRPS:         int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		Prices: BillingPrices{
			ItemNFT:     getEnvNativePrice("PRICE_NATIVE_ITEM_NFT"),
			ResourceNFT: getEnvNativePrice("PRICE_NATIVE_RESOURCE_NFT"),
			Currency:    getEnvNativePrice("PRICE_NATIVE_CURRENCY"),
			LandNFT:     getEnvNativePrice("PRICE_NATIVE_LAND"),
			ParcelState: getEnvNativePrice("PRICE_NATIVE_PARCELSTATE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.WCProjectID == "" {
		return fmt.Errorf("WC_PROJECT_ID is required")
	}

	if c.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}
	key := strings.TrimPrefix(c.PrivateKey, "0x")
	if len(key) != 64 {
		return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
	}

	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.PairingTTL <= 0 {
		return fmt.Errorf("PAIRING_TTL must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvNativePrice parses a human-readable native amount ("0.0002") into
// wei. Missing or unparseable values yield zero, which billing treats as
// not configured rather than free.
func getEnvNativePrice(key string) *big.Int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return big.NewInt(0)
	}
	wei, err := chain.ParseNativeAmount(raw)
	if err != nil {
		return big.NewInt(0)
	}
	return wei
}
