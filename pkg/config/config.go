package config

import (
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/keygate-hq/keygate-signer/pkg/logger"
	"github.com/keygate-hq/keygate-signer/pkg/models"
)

// Config holds the configuration for the signer service
type Config struct {
	WalletID       string
	GatewayRPCURL  string
	Network        models.Network
	DefaultAsset   string
	AssetDecimals  int32
	SignerCount    uint64
	SubmitTimeout  time.Duration
	RegisterRemote bool
	JournalPath    string
	MetricsPort    string
	MetricsAPIKey  string
	APIKey         string
	APITrustProxy  bool
	APIRateLimit   RateLimitConfig
	CircuitBreaker CircuitBreakerConfig
	Retry          RetryConfig
	LoggerConfig   LoggerConfig
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// RateLimitConfig throttles the intent endpoints per client
type RateLimitConfig struct {
	PerMinute float64
	Burst     int
}

// RetryConfig controls automatic re-execution of re-queued intents
type RetryConfig struct {
	Enabled    bool
	MaxRetries int
	Interval   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
	File     logger.FileConfig
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current process environment
func FromEnv() (*Config, error) {
	walletID, err := GetEnvWalletID()
	if err != nil {
		return nil, err
	}

	rpcURL, err := GetEnvGatewayRPCURL()
	if err != nil {
		return nil, err
	}

	network, err := GetEnvNetwork()
	if err != nil {
		return nil, err
	}

	asset, err := GetEnvDefaultAsset()
	if err != nil {
		return nil, err
	}

	decimals, err := GetEnvAssetDecimals(asset)
	if err != nil {
		return nil, err
	}

	signerCount, err := GetEnvSignerCount()
	if err != nil {
		return nil, err
	}

	submitTimeout, err := GetEnvSubmitTimeout()
	if err != nil {
		return nil, err
	}

	registerRemote, err := GetEnvRegisterRemote()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	rateLimit, err := GetEnvAPIRateLimit()
	if err != nil {
		return nil, err
	}

	rateBurst, err := GetEnvAPIRateBurst()
	if err != nil {
		return nil, err
	}

	trustProxy, err := GetEnvAPITrustProxy()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	retryEnabled, err := GetEnvRetryEnabled()
	if err != nil {
		return nil, err
	}

	maxRetries, err := GetEnvMaxRetries()
	if err != nil {
		return nil, err
	}

	retryInterval, err := GetEnvRetryInterval()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		WalletID:       walletID,
		GatewayRPCURL:  rpcURL,
		Network:        network,
		DefaultAsset:   asset,
		AssetDecimals:  decimals,
		SignerCount:    signerCount,
		SubmitTimeout:  submitTimeout,
		RegisterRemote: registerRemote,
		JournalPath:    GetEnvJournalPath(),
		MetricsPort:    metricsPort,
		MetricsAPIKey:  GetEnvMetricsAPIKey(),
		APIKey:         GetEnvAPIKey(),
		APITrustProxy:  trustProxy,
		APIRateLimit: RateLimitConfig{
			PerMinute: rateLimit,
			Burst:     rateBurst,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		Retry: RetryConfig{
			Enabled:    retryEnabled,
			MaxRetries: maxRetries,
			Interval:   retryInterval,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
			File: logger.FileConfig{
				Path:       GetEnvLogFile(),
				MaxSizeMB:  DefaultLogMaxSizeMB,
				MaxBackups: DefaultLogMaxBackups,
				MaxAgeDays: DefaultLogMaxAgeDays,
			},
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.WalletID == "" {
		return fmt.Errorf("WALLET_ID environment variable is required")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("API_KEY environment variable is required")
	}
	u, err := url.Parse(cfg.GatewayRPCURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("GATEWAY_RPC_URL %q must include a host", cfg.GatewayRPCURL)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("GATEWAY_RPC_URL scheme %q is not supported", u.Scheme)
	}
	if cfg.Retry.Enabled && cfg.Retry.Interval <= 0 {
		return fmt.Errorf("RETRY_INTERVAL must be greater than 0 when retries are enabled")
	}
	return nil
}
