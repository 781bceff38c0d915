package config

import (
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/speedrun-hq/payflow/pkg/chains"
	"github.com/speedrun-hq/payflow/pkg/logger"
)

// Config holds the configuration for the payment orchestration service
type Config struct {
	ChainID        int
	RPCURL         string
	PrivateKey     string
	FactoryAddress common.Address
	// Tokens maps upper-case token symbols to their address on the configured chain
	Tokens         map[string]common.Address
	ProtocolFeeBps int64
	Watcher        WatcherConfig
	Store          StoreConfig
	Gas            GasConfig
	RPCRateLimit   float64
	MetricsPort    string
	MetricsAPIKey  string
	Locale         string
	CircuitBreaker CircuitBreakerConfig
	LoggerConfig   LoggerConfig
}

// WatcherConfig holds confirmation watcher timings
type WatcherConfig struct {
	PollInterval time.Duration
	PollAttempts int
	GracePeriod  time.Duration
}

// StoreConfig holds the durable payment store configuration
type StoreConfig struct {
	Endpoint   string
	APIKey     string
	MaxRetries int
}

// GasConfig holds fee settings for submitted transactions
type GasConfig struct {
	Multiplier  float64
	MaxGasPrice *big.Int
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	chainID, err := GetEnvChainID()
	if err != nil {
		return nil, err
	}

	var network *Network
	if path := os.Getenv("NETWORKS_FILE"); path != "" {
		manifest, err := LoadNetworks(path)
		if err != nil {
			return nil, err
		}
		if n, ok := manifest.Find(chainID); ok {
			network = n
		}
	}

	rpcURL, err := GetEnvRPCURL(network)
	if err != nil {
		return nil, err
	}

	factory, err := GetEnvFactoryAddress(network)
	if err != nil {
		return nil, err
	}

	tokens, err := resolveTokens(chainID, network)
	if err != nil {
		return nil, err
	}

	feeBps, err := GetEnvProtocolFeeBps()
	if err != nil {
		return nil, err
	}

	pollInterval, err := GetEnvPollInterval()
	if err != nil {
		return nil, err
	}

	pollAttempts, err := GetEnvPollAttempts()
	if err != nil {
		return nil, err
	}

	grace, err := GetEnvConfirmationGrace()
	if err != nil {
		return nil, err
	}

	storeEndpoint, err := GetEnvStoreEndpoint()
	if err != nil {
		return nil, err
	}

	maxRetries, err := GetEnvMaxRetries()
	if err != nil {
		return nil, err
	}

	gasMultiplier, err := GetEnvGasMultiplier()
	if err != nil {
		return nil, err
	}

	maxGasPrice, err := GetEnvMaxGasPrice()
	if err != nil {
		return nil, err
	}

	rateLimit, err := GetEnvRPCRateLimit()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
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

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ChainID:        chainID,
		RPCURL:         rpcURL,
		PrivateKey:     os.Getenv("PRIVATE_KEY"),
		FactoryAddress: factory,
		Tokens:         tokens,
		ProtocolFeeBps: feeBps,
		Watcher: WatcherConfig{
			PollInterval: pollInterval,
			PollAttempts: pollAttempts,
			GracePeriod:  grace,
		},
		Store: StoreConfig{
			Endpoint:   storeEndpoint,
			APIKey:     os.Getenv("STORE_API_KEY"),
			MaxRetries: maxRetries,
		},
		Gas: GasConfig{
			Multiplier:  gasMultiplier,
			MaxGasPrice: maxGasPrice,
		},
		RPCRateLimit:  rateLimit,
		MetricsPort:   metricsPort,
		MetricsAPIKey: os.Getenv("METRICS_API_KEY"),
		Locale:        GetEnvLocale(),
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveTokens merges the built-in stablecoin addresses with the manifest entries
func resolveTokens(chainID int, network *Network) (map[string]common.Address, error) {
	tokens := make(map[string]common.Address)
	if addr := chains.GetUSDCAddress(chainID); addr != "" {
		tokens[string(chains.TokenTypeUSDC)] = common.HexToAddress(addr)
	}
	if addr := chains.GetUSDTAddress(chainID); addr != "" {
		tokens[string(chains.TokenTypeUSDT)] = common.HexToAddress(addr)
	}
	if network == nil {
		return tokens, nil
	}
	for symbol, addr := range network.Tokens {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid address for token %s in network %d: %s", symbol, chainID, addr)
		}
		tokens[normalizeSymbol(symbol)] = common.HexToAddress(addr)
	}
	return tokens, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY environment variable is required")
	}
	if cfg.FactoryAddress == (common.Address{}) {
		return fmt.Errorf("FACTORY_ADDRESS for chain %d is required", cfg.ChainID)
	}
	if cfg.Watcher.GracePeriod <= cfg.Watcher.PollInterval {
		return fmt.Errorf("CONFIRMATION_GRACE (%s) must be longer than POLL_INTERVAL (%s)",
			cfg.Watcher.GracePeriod, cfg.Watcher.PollInterval)
	}
	return nil
}
