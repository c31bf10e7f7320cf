package config

import (
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "WC_PROJECT_ID", "project123")
	setEnv(t, "PRIVATE_KEY", validKey)
	setEnv(t, "PORT", "9090")
	setEnv(t, "PRICE_NATIVE_LAND", "0.0005")
	setEnv(t, "PAIRING_TTL", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, int64(DefaultChainID), cfg.ChainID)
	assert.Equal(t, DefaultBridgeURL, cfg.WCBridgeURL)
	assert.Equal(t, 5*time.Minute, cfg.PairingTTL)
	assert.Equal(t, "500000000000000", cfg.Prices.LandNFT.String())
}

func TestLoad_MissingProjectID(t *testing.T) {
	setEnv(t, "WC_PROJECT_ID", "")
	setEnv(t, "PRIVATE_KEY", validKey)

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "WC_PROJECT_ID is required")
}

func TestLoad_MissingPrivateKey(t *testing.T) {
	setEnv(t, "WC_PROJECT_ID", "project123")
	setEnv(t, "PRIVATE_KEY", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "PRIVATE_KEY is required")
}

func TestLoad_InvalidPrivateKeyLength(t *testing.T) {
	setEnv(t, "WC_PROJECT_ID", "project123")
	setEnv(t, "PRIVATE_KEY", "tooshort")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "64 hex characters")
}

func TestLoad_UnparseablePriceBecomesZero(t *testing.T) {
	setEnv(t, "WC_PROJECT_ID", "project123")
	setEnv(t, "PRIVATE_KEY", validKey)
	setEnv(t, "PRICE_NATIVE_CURRENCY", "not-a-number")
	setEnv(t, "PRICE_NATIVE_ITEM_NFT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.Prices.Currency.Int64())
	assert.Equal(t, int64(0), cfg.Prices.ItemNFT.Int64())
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		WCProjectID: "project123",
		PrivateKey:  validKey,
		RPCURL:      "https://data-seed-prebsc-1-s1.binance.org:8545",
		PairingTTL:  DefaultPairingTTL,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{
			name:    "missing project id",
			mutate:  func(c *Config) { c.WCProjectID = "" },
			wantErr: "WC_PROJECT_ID is required",
		},
		{
			name:    "missing private key",
			mutate:  func(c *Config) { c.PrivateKey = "" },
			wantErr: "PRIVATE_KEY is required",
		},
		{
			name:    "invalid private key length",
			mutate:  func(c *Config) { c.PrivateKey = "abc123" },
			wantErr: "64 hex characters",
		},
		{
			name:    "missing RPC URL",
			mutate:  func(c *Config) { c.RPCURL = "" },
			wantErr: "RPC_URL is required",
		},
		{
			name:    "non-positive pairing ttl",
			mutate:  func(c *Config) { c.PairingTTL = 0 },
			wantErr: "PAIRING_TTL must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvList(t *testing.T) {
	setEnv(t, "TEST_LIST", "https://a.example, https://b.example ,")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, getEnvList("TEST_LIST", nil))

	assert.Equal(t, DefaultAllowedOrigins, getEnvList("NONEXISTENT_VAR", DefaultAllowedOrigins))
}

func TestGetEnvNativePrice(t *testing.T) {
	setEnv(t, "TEST_PRICE", "0.0002")
	assert.Equal(t, big.NewInt(200_000_000_000_000), getEnvNativePrice("TEST_PRICE"))

	setEnv(t, "TEST_PRICE_BAD", "abc")
	assert.Equal(t, int64(0), getEnvNativePrice("TEST_PRICE_BAD").Int64())
}
