package config

import (
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/payflow/pkg/chains"
	"github.com/speedrun-hq/payflow/pkg/logger"
)

const (
	// DefaultChainID defines the chain the service submits transactions to (Base mainnet)
	DefaultChainID = 8453

	// DefaultProtocolFeeBps defines the protocol fee charged on top of every transferred amount, in basis points
	DefaultProtocolFeeBps = 50

	// DefaultPollInterval defines the interval between direct state polls in seconds
	DefaultPollInterval = 2

	// DefaultPollAttempts defines the number of direct state polls before giving up
	DefaultPollAttempts = 10

	// DefaultConfirmationGrace defines the grace period in seconds before the one-shot receipt check
	DefaultConfirmationGrace = 20

	// DefaultStoreEndpoint defines the durable payment store endpoint
	DefaultStoreEndpoint = "http://localhost:3000/api"

	// DefaultMaxRetries defines the maximum number of retries for store writes
	DefaultMaxRetries = 3

	// DefaultGasMultiplier defines the buffer applied to suggested fees
	DefaultGasMultiplier = 1.1

	// DefaultMaxGasPrice defines the maximum fee cap for transactions
	DefaultMaxGasPrice = "50000000000" // 50 Gwei

	// DefaultRPCRateLimit defines the maximum number of ledger reads per second
	DefaultRPCRateLimit = 10.0

	// DefaultMetricsPort defines the default port for the HTTP server
	DefaultMetricsPort = "8080"

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 60

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 30

	// DefaultLogLevel defines the default log level
	DefaultLogLevel = "info"

	// DefaultLocale defines the language of user facing error messages
	DefaultLocale = "en"
)

var defaultRPCURLs = map[int]string{
	1:        "https://eth.llamarpc.com",
	8453:     "https://mainnet.base.org",
	42161:    "https://arb1.arbitrum.io/rpc",
	137:      "https://polygon-rpc.com",
	10:       "https://mainnet.optimism.io",
	11155111: "https://ethereum-sepolia-rpc.publicnode.com",
	84532:    "https://sepolia.base.org",
}

// GetEnvChainID returns the chain ID from environment variables
func GetEnvChainID() (int, error) {
	chainID := os.Getenv("CHAIN_ID")
	if chainID == "" {
		return DefaultChainID, nil
	}

	id, err := strconv.Atoi(chainID)
	if err != nil {
		return 0, fmt.Errorf("invalid CHAIN_ID value: %s, must be an integer", chainID)
	}
	if !chains.IsSupported(id) {
		return 0, fmt.Errorf("unsupported CHAIN_ID value: %d", id)
	}
	return id, nil
}

// GetEnvRPCURL returns the RPC URL, falling back to the network manifest and the chain default
func GetEnvRPCURL(network *Network) (string, error) {
	rpcURL := os.Getenv("RPC_URL")
	if rpcURL == "" && network != nil {
		rpcURL = network.RPCURL
	}
	if rpcURL == "" {
		chainID, err := GetEnvChainID()
		if err != nil {
			return "", err
		}
		rpcURL = defaultRPCURLs[chainID]
	}

	if _, err := url.ParseRequestURI(rpcURL); err != nil {
		return "", fmt.Errorf("invalid RPC_URL value: %s, must be a valid URL", rpcURL)
	}
	return rpcURL, nil
}

// GetEnvFactoryAddress returns the payment factory address from environment variables or the network manifest
func GetEnvFactoryAddress(network *Network) (common.Address, error) {
	factory := os.Getenv("FACTORY_ADDRESS")
	if factory == "" && network != nil {
		factory = network.Factory
	}
	if factory == "" {
		return common.Address{}, nil
	}

	if !common.IsHexAddress(factory) {
		return common.Address{}, fmt.Errorf("invalid FACTORY_ADDRESS value: %s, must be a valid Ethereum address", factory)
	}
	return common.HexToAddress(factory), nil
}

// GetEnvProtocolFeeBps returns the protocol fee in basis points from environment variables
func GetEnvProtocolFeeBps() (int64, error) {
	fee := os.Getenv("PROTOCOL_FEE_BPS")
	if fee == "" {
		return DefaultProtocolFeeBps, nil
	}

	bps, err := strconv.ParseInt(fee, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid PROTOCOL_FEE_BPS value: %s, must be an integer", fee)
	}
	if bps < 0 || bps > 10000 {
		return 0, fmt.Errorf("PROTOCOL_FEE_BPS must be between 0 and 10000")
	}
	return bps, nil
}

// GetEnvPollInterval returns the direct poll interval from environment variables
func GetEnvPollInterval() (time.Duration, error) {
	return getEnvDuration("POLL_INTERVAL", DefaultPollInterval*time.Second)
}

// GetEnvPollAttempts returns the number of direct polls from environment variables
func GetEnvPollAttempts() (int, error) {
	attempts := os.Getenv("POLL_ATTEMPTS")
	if attempts == "" {
		return DefaultPollAttempts, nil
	}

	count, err := strconv.Atoi(attempts)
	if err != nil {
		return 0, fmt.Errorf("invalid POLL_ATTEMPTS value: %s, must be an integer", attempts)
	}
	if count <= 0 {
		return 0, fmt.Errorf("POLL_ATTEMPTS must be greater than 0")
	}
	return count, nil
}

// GetEnvConfirmationGrace returns the confirmation grace period from environment variables
func GetEnvConfirmationGrace() (time.Duration, error) {
	return getEnvDuration("CONFIRMATION_GRACE", DefaultConfirmationGrace*time.Second)
}

// GetEnvStoreEndpoint returns the durable store endpoint from environment variables
func GetEnvStoreEndpoint() (string, error) {
	endpoint := os.Getenv("STORE_ENDPOINT")
	if endpoint == "" {
		return DefaultStoreEndpoint, nil
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return "", fmt.Errorf("invalid STORE_ENDPOINT value: %s, must be a valid URL", endpoint)
	}
	return strings.TrimRight(endpoint, "/"), nil
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

// GetEnvGasMultiplier returns the fee multiplier from environment variables
func GetEnvGasMultiplier() (float64, error) {
	multiplier := os.Getenv("GAS_MULTIPLIER")
	if multiplier == "" {
		return DefaultGasMultiplier, nil
	}

	parsed, err := strconv.ParseFloat(multiplier, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid GAS_MULTIPLIER value: %s, must be a number", multiplier)
	}
	if parsed < 1 {
		return 0, fmt.Errorf("GAS_MULTIPLIER must be greater than or equal to 1")
	}
	return parsed, nil
}

// GetEnvMaxGasPrice returns the maximum gas price from environment variables
func GetEnvMaxGasPrice() (*big.Int, error) {
	maxGasPrice := os.Getenv("MAX_GAS_PRICE")
	if maxGasPrice == "" {
		maxGasPrice = DefaultMaxGasPrice
	}

	maxGasPriceBig := new(big.Int)
	if _, ok := maxGasPriceBig.SetString(maxGasPrice, 10); !ok {
		return nil, fmt.Errorf("invalid MAX_GAS_PRICE value: %s, must be a valid integer string", maxGasPrice)
	}

	if maxGasPriceBig.Sign() < 0 {
		return nil, fmt.Errorf("MAX_GAS_PRICE must be greater than or equal to 0")
	}
	return maxGasPriceBig, nil
}

// GetEnvRPCRateLimit returns the ledger read rate limit from environment variables
func GetEnvRPCRateLimit() (float64, error) {
	limit := os.Getenv("RPC_RATE_LIMIT")
	if limit == "" {
		return DefaultRPCRateLimit, nil
	}

	parsed, err := strconv.ParseFloat(limit, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid RPC_RATE_LIMIT value: %s, must be a number", limit)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("RPC_RATE_LIMIT must be greater than 0")
	}
	return parsed, nil
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

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = DefaultLogLevel
	}

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return logger.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of debug, info, notice, warn, error", level)
	}
	return parsed, nil
}

// GetEnvLogColoring returns whether log coloring is enabled from environment variables
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", false)
}

// GetEnvLocale returns the locale of user facing messages
func GetEnvLocale() string {
	locale := strings.ToLower(os.Getenv("LOCALE"))
	if locale == "" {
		return DefaultLocale
	}
	return locale
}

func getEnvBool(key string, def bool) (bool, error) {
	value := os.Getenv(key)
	switch value {
	case "":
		return def, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", key, value)
}

// getEnvDuration accepts either a Go duration string or a plain number of seconds
func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("%s must be greater than 0", key)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", key, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return parsed, nil
}
