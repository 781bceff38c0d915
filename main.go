package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/speedrun-hq/payflow/pkg/chainclient"
	"github.com/speedrun-hq/payflow/pkg/circuitbreaker"
	"github.com/speedrun-hq/payflow/pkg/config"
	"github.com/speedrun-hq/payflow/pkg/logger"
	"github.com/speedrun-hq/payflow/pkg/orchestrator"
	"github.com/speedrun-hq/payflow/pkg/persistence"
	"github.com/speedrun-hq/payflow/pkg/server"
	"github.com/speedrun-hq/payflow/pkg/signer"
	"github.com/speedrun-hq/payflow/pkg/watcher"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		l.Notice("Received termination signal, shutting down gracefully...")
		cancel()
	}()

	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		log.Fatalf("Failed to connect to chain %d: %v", cfg.ChainID, err)
	}
	defer rpc.Close()

	ledger := chainclient.New(cfg.ChainID, rpc, cfg.RPCRateLimit, l)
	ledger.SetReceiptInterval(cfg.Watcher.PollInterval)

	keySigner, err := signer.NewKeySigner(ctx, rpc, cfg.PrivateKey, signer.GasSettings{
		Multiplier:  cfg.Gas.Multiplier,
		MaxGasPrice: cfg.Gas.MaxGasPrice,
	}, l)
	if err != nil {
		log.Fatalf("Failed to create signer: %v", err)
	}
	l.InfoWithChain(cfg.ChainID, "Signing as %s", keySigner.Address().Hex())

	breaker := circuitbreaker.NewCircuitBreaker(
		"store",
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.Threshold,
		cfg.CircuitBreaker.WindowDuration,
		cfg.CircuitBreaker.ResetTimeout,
		l,
	)

	var store persistence.Store
	if cfg.Store.Endpoint != "" {
		store = persistence.NewClient(cfg.Store.Endpoint, cfg.Store.APIKey, cfg.Store.MaxRetries, breaker, l)
	} else {
		l.Warn("STORE_ENDPOINT is not set, payment outcomes will not be recorded")
	}

	orch := orchestrator.New(orchestrator.Config{
		ChainID:        cfg.ChainID,
		FactoryAddress: cfg.FactoryAddress,
		Tokens:         cfg.Tokens,
		ProtocolFeeBps: cfg.ProtocolFeeBps,
		Locale:         cfg.Locale,
		Watcher: watcher.Config{
			PollInterval: cfg.Watcher.PollInterval,
			PollAttempts: cfg.Watcher.PollAttempts,
			GracePeriod:  cfg.Watcher.GracePeriod,
		},
	}, ledger, keySigner, store, l)

	ready := func(ctx context.Context) error {
		_, err := ledger.GetLatestBlockNumber(ctx)
		return err
	}

	srv := server.New(ctx, server.Config{
		Port:           cfg.MetricsPort,
		APIKey:         cfg.MetricsAPIKey,
		ChainID:        cfg.ChainID,
		FactoryAddress: cfg.FactoryAddress,
	}, orch, breaker, ready, l)

	l.InfoWithChain(cfg.ChainID, "Starting the payment orchestrator with factory %s", cfg.FactoryAddress.Hex())
	if err := srv.Run(ctx); err != nil {
		l.Error("Server error: %v", err)
	}

	cancel()
	orch.Wait()
	l.Info("Payment orchestrator stopped")
}
