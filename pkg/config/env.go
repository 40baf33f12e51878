package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/keygate-hq/keygate-signer/pkg/logger"
	"github.com/keygate-hq/keygate-signer/pkg/models"
)

const (
	// DefaultNetwork is the ledger network intents are proposed on
	DefaultNetwork = models.NetworkICP

	// DefaultAsset is the asset used when a proposal does not name one
	DefaultAsset = models.NativeICP

	// DefaultGatewayRPCURL is the JSON-RPC endpoint of the wallet bridge
	DefaultGatewayRPCURL = "http://127.0.0.1:8545"

	// DefaultSignerCount of 0 means the number of signers is unknown
	DefaultSignerCount = 0

	// DefaultSubmitTimeout bounds a single execution request, in seconds
	DefaultSubmitTimeout = 30

	// DefaultRegisterRemote defines whether proposals are registered with the account
	DefaultRegisterRemote = false

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultAPIRateLimit is the number of intent requests allowed per client and minute
	DefaultAPIRateLimit = 600

	// DefaultAPIRateBurst is the burst size of the intent rate limit
	DefaultAPIRateBurst = 20

	// DefaultAPITrustProxy defines whether forwarding headers identify API clients
	DefaultAPITrustProxy = false

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 5

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15

	// DefaultRetryEnabled defines whether re-queued intents are retried
	DefaultRetryEnabled = true

	// DefaultMaxRetries defines the maximum number of retries for re-queued intents
	DefaultMaxRetries = 10

	// DefaultRetryInterval is the base retry interval in seconds
	DefaultRetryInterval = 10

	// DefaultLogLevel is the minimum level logged
	DefaultLogLevel = "info"

	// DefaultLogMaxSizeMB is the size at which the log file is rotated
	DefaultLogMaxSizeMB = 100

	// DefaultLogMaxBackups is the number of rotated log files kept
	DefaultLogMaxBackups = 5

	// DefaultLogMaxAgeDays is how long rotated log files are kept
	DefaultLogMaxAgeDays = 28
)

// GetEnvWalletID returns the wallet account the signer operates on
func GetEnvWalletID() (string, error) {
	walletID := strings.TrimSpace(os.Getenv("WALLET_ID"))
	if walletID == "" {
		return "", fmt.Errorf("WALLET_ID environment variable is required")
	}
	return walletID, nil
}

// GetEnvGatewayRPCURL returns the wallet bridge endpoint from environment variables
func GetEnvGatewayRPCURL() (string, error) {
	rpcURL := os.Getenv("GATEWAY_RPC_URL")
	if rpcURL == "" {
		return DefaultGatewayRPCURL, nil
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(rpcURL); err != nil {
		return "", fmt.Errorf("invalid GATEWAY_RPC_URL value: %s, must be a valid URL", rpcURL)
	}
	return rpcURL, nil
}

// GetEnvNetwork returns the configured network from environment variables or defaults to icp
func GetEnvNetwork() (models.Network, error) {
	network := os.Getenv("NETWORK")
	if network == "" {
		return DefaultNetwork, nil
	}

	parsed, err := models.ParseNetwork(network)
	if err != nil {
		return "", fmt.Errorf("invalid NETWORK value: %s, must be 'icp'", network)
	}
	return parsed, nil
}

// GetEnvDefaultAsset returns the asset used when a proposal omits one
func GetEnvDefaultAsset() (string, error) {
	asset := strings.TrimSpace(os.Getenv("DEFAULT_ASSET"))
	if asset == "" {
		return DefaultAsset, nil
	}
	if _, ok := GetAssetDecimals(asset); !ok {
		return "", fmt.Errorf("invalid DEFAULT_ASSET value: %s, unknown asset", asset)
	}
	return asset, nil
}

// GetEnvAssetDecimals returns the decimals override for the default asset,
// or the registry value when unset
func GetEnvAssetDecimals(asset string) (int32, error) {
	decimals := os.Getenv("ASSET_DECIMALS")
	if decimals == "" {
		d, _ := GetAssetDecimals(asset)
		return d, nil
	}

	d, err := strconv.Atoi(decimals)
	if err != nil {
		return 0, fmt.Errorf("invalid ASSET_DECIMALS value: %s, must be an integer", decimals)
	}
	if d < 0 || d > 18 {
		return 0, fmt.Errorf("ASSET_DECIMALS must be between 0 and 18")
	}
	return int32(d), nil
}

// GetEnvSignerCount returns the number of signers of the account, 0 if unknown
func GetEnvSignerCount() (uint64, error) {
	signerCount := os.Getenv("SIGNER_COUNT")
	if signerCount == "" {
		return DefaultSignerCount, nil
	}

	count, err := strconv.ParseUint(signerCount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid SIGNER_COUNT value: %s, must be a non-negative integer", signerCount)
	}
	return count, nil
}

// GetEnvSubmitTimeout returns the execution request timeout from environment variables
func GetEnvSubmitTimeout() (time.Duration, error) {
	return getEnvDuration("SUBMIT_TIMEOUT", DefaultSubmitTimeout*time.Second)
}

// GetEnvRegisterRemote returns whether proposals are registered with the remote account
func GetEnvRegisterRemote() (bool, error) {
	return getEnvBool("REGISTER_REMOTE", DefaultRegisterRemote)
}

// GetEnvJournalPath returns the journal directory, empty for an in-memory journal
func GetEnvJournalPath() string {
	return strings.TrimSpace(os.Getenv("JOURNAL_PATH"))
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvMetricsAPIKey returns the bearer key protecting /metrics, empty for none
func GetEnvMetricsAPIKey() string {
	return os.Getenv("METRICS_API_KEY")
}

// GetEnvAPIKey returns the bearer key protecting the intent API
func GetEnvAPIKey() string {
	return os.Getenv("API_KEY")
}

// GetEnvAPITrustProxy returns whether X-Real-IP/X-Forwarded-For identify clients
func GetEnvAPITrustProxy() (bool, error) {
	return getEnvBool("API_TRUST_PROXY", DefaultAPITrustProxy)
}

// GetEnvAPIRateLimit returns the per-client intent request limit per minute, 0 disables it
func GetEnvAPIRateLimit() (float64, error) {
	limit := os.Getenv("API_RATE_LIMIT")
	if limit == "" {
		return DefaultAPIRateLimit, nil
	}

	parsed, err := strconv.ParseFloat(limit, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid API_RATE_LIMIT value: %s, must be a number", limit)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("API_RATE_LIMIT must be greater than or equal to 0")
	}
	return parsed, nil
}

// GetEnvAPIRateBurst returns the burst size of the intent rate limit
func GetEnvAPIRateBurst() (int, error) {
	burst := os.Getenv("API_RATE_BURST")
	if burst == "" {
		return DefaultAPIRateBurst, nil
	}

	parsed, err := strconv.Atoi(burst)
	if err != nil {
		return 0, fmt.Errorf("invalid API_RATE_BURST value: %s, must be an integer", burst)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("API_RATE_BURST must be greater than 0")
	}
	return parsed, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow*time.Second)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset*time.Second)
}

// GetEnvRetryEnabled returns whether re-queued intents are retried automatically
func GetEnvRetryEnabled() (bool, error) {
	return getEnvBool("RETRY_ENABLED", DefaultRetryEnabled)
}

// GetEnvMaxRetries returns the maximum number of retries from environment variables
func GetEnvMaxRetries() (int, error) {
	maxRetries := os.Getenv("MAX_RETRIES")
	if maxRetries == "" {
		return DefaultMaxRetries, nil
	}

	maxRetriesInt, err := strconv.Atoi(maxRetries)
	if err != nil {
		return 0, fmt.Errorf("invalid MAX_RETRIES value: %s, must be an integer", maxRetries)
	}
	if maxRetriesInt < 0 {
		return 0, fmt.Errorf("MAX_RETRIES must be greater than or equal to 0")
	}
	return maxRetriesInt, nil
}

// GetEnvRetryInterval returns the base retry interval from environment variables
func GetEnvRetryInterval() (time.Duration, error) {
	return getEnvDuration("RETRY_INTERVAL", DefaultRetryInterval*time.Second)
}

// GetEnvLogLevel returns the minimum log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = DefaultLogLevel
	}

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return logger.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of debug, info, notice, error", level)
	}
	return parsed, nil
}

// GetEnvLogColoring returns whether log prefixes are colored
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", true)
}

// GetEnvLogFile returns the rotating log file path, empty for stderr
func GetEnvLogFile() string {
	return strings.TrimSpace(os.Getenv("LOG_FILE"))
}

func getEnvBool(name string, fallback bool) (bool, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}

	if value == "true" {
		return true, nil
	} else if value == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", name, value)
}

func getEnvDuration(name string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}

	// Validate duration format
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", name, value)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return parsed, nil
}
