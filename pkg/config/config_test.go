package config

import (
	"testing"
	"time"

	"github.com/keygate-hq/keygate-signer/pkg/logger"
	"github.com/keygate-hq/keygate-signer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("WALLET_ID", "wallet-1")
	t.Setenv("API_KEY", "secret")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "wallet-1", cfg.WalletID)
	assert.Equal(t, DefaultGatewayRPCURL, cfg.GatewayRPCURL)
	assert.Equal(t, models.NetworkICP, cfg.Network)
	assert.Equal(t, models.NativeICP, cfg.DefaultAsset)
	assert.Equal(t, int32(8), cfg.AssetDecimals)
	assert.Equal(t, uint64(0), cfg.SignerCount)
	assert.Equal(t, 30*time.Second, cfg.SubmitTimeout)
	assert.False(t, cfg.RegisterRemote)
	assert.Empty(t, cfg.JournalPath)
	assert.Equal(t, "8080", cfg.MetricsPort)
	assert.Equal(t, float64(600), cfg.APIRateLimit.PerMinute)
	assert.Equal(t, 20, cfg.APIRateLimit.Burst)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.False(t, cfg.APITrustProxy)
	assert.True(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, 5, cfg.CircuitBreaker.Threshold)
	assert.True(t, cfg.Retry.Enabled)
	assert.Equal(t, 10, cfg.Retry.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Retry.Interval)
	assert.Equal(t, logger.InfoLevel, cfg.LoggerConfig.Level)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("WALLET_ID", "wallet-2")
	t.Setenv("API_KEY", "secret")
	t.Setenv("API_TRUST_PROXY", "true")
	t.Setenv("GATEWAY_RPC_URL", "ws://bridge:9000")
	t.Setenv("SIGNER_COUNT", "3")
	t.Setenv("SUBMIT_TIMEOUT", "5s")
	t.Setenv("REGISTER_REMOTE", "true")
	t.Setenv("JOURNAL_PATH", "/var/lib/keygate")
	t.Setenv("RETRY_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FILE", "/var/log/keygate.log")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "ws://bridge:9000", cfg.GatewayRPCURL)
	assert.True(t, cfg.APITrustProxy)
	assert.Equal(t, uint64(3), cfg.SignerCount)
	assert.Equal(t, 5*time.Second, cfg.SubmitTimeout)
	assert.True(t, cfg.RegisterRemote)
	assert.Equal(t, "/var/lib/keygate", cfg.JournalPath)
	assert.False(t, cfg.Retry.Enabled)
	assert.Equal(t, logger.DebugLevel, cfg.LoggerConfig.Level)
	assert.Equal(t, "/var/log/keygate.log", cfg.LoggerConfig.File.Path)
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing wallet", map[string]string{"WALLET_ID": ""}},
		{"missing api key", map[string]string{"API_KEY": ""}},
		{"bad trust proxy", map[string]string{"API_TRUST_PROXY": "maybe"}},
		{"bad url", map[string]string{"GATEWAY_RPC_URL": "not a url"}},
		{"unsupported scheme", map[string]string{"GATEWAY_RPC_URL": "ftp://bridge"}},
		{"bad network", map[string]string{"NETWORK": "eth"}},
		{"unknown asset", map[string]string{"DEFAULT_ASSET": "doge"}},
		{"bad decimals", map[string]string{"ASSET_DECIMALS": "40"}},
		{"negative signers", map[string]string{"SIGNER_COUNT": "-1"}},
		{"bad timeout", map[string]string{"SUBMIT_TIMEOUT": "soon"}},
		{"bad bool", map[string]string{"REGISTER_REMOTE": "yes"}},
		{"negative rate limit", map[string]string{"API_RATE_LIMIT": "-1"}},
		{"zero burst", map[string]string{"API_RATE_BURST": "0"}},
		{"bad threshold", map[string]string{"CIRCUIT_BREAKER_THRESHOLD": "0"}},
		{"negative retries", map[string]string{"MAX_RETRIES": "-2"}},
		{"zero interval", map[string]string{"RETRY_INTERVAL": "0s"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WALLET_ID", "wallet-1")
			t.Setenv("API_KEY", "secret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestAssetRegistry(t *testing.T) {
	d, ok := GetAssetDecimals("ICP:NATIVE")
	assert.True(t, ok)
	assert.Equal(t, int32(8), d)

	_, ok = GetAssetDecimals("unknown")
	assert.False(t, ok)

	assert.Equal(t, "ICP", GetAssetSymbol("icp:native"))
	assert.Equal(t, "other", GetAssetSymbol("other"))
}
