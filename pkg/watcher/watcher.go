// Package watcher decides whether a submitted transaction confirmed, reverted
// or could not be resolved, racing three independent strategies.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/speedrun-hq/payflow/pkg/chainclient"
	"github.com/speedrun-hq/payflow/pkg/logger"
	"github.com/speedrun-hq/payflow/pkg/metrics"
)

// Default strategy timings
const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollAttempts = 10
	DefaultGracePeriod  = 20 * time.Second
)

// Status is the resolution of a watch
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusReverted  Status = "reverted"
	// StatusAbandoned means nothing resolved within the grace period
	StatusAbandoned Status = "abandoned"
	// StatusFailed means the transaction was never broadcast, or the watch was cancelled
	StatusFailed Status = "failed"
)

// Strategy names the strategy that resolved a watch
type Strategy string

const (
	StrategyReceiptWait     Strategy = "receipt_wait"
	StrategyDirectPoll      Strategy = "direct_poll"
	StrategyTimeoutFallback Strategy = "timeout_fallback"
	StrategySubmit          Strategy = "submit"
)

// Probe reports whether the state the transaction is expected to produce is
// visible on-chain. It is consulted while the transaction hash is unknown.
type Probe func(ctx context.Context) (bool, error)

// Outcome is the result of a watch
type Outcome struct {
	Status   Status
	Strategy Strategy
	Hash     common.Hash
	// Receipt is nil when the watch resolved through a probe or did not resolve
	Receipt *types.Receipt
	Err     error
}

// Config holds strategy timings
type Config struct {
	PollInterval time.Duration
	PollAttempts int
	GracePeriod  time.Duration
}

// Watcher resolves submissions against the ledger
type Watcher struct {
	ledger chainclient.Ledger
	cfg    Config
	logger logger.Logger
}

// New creates a watcher, filling zero timings with defaults
func New(ledger chainclient.Ledger, cfg Config, logger logger.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = DefaultPollAttempts
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	return &Watcher{
		ledger: ledger,
		cfg:    cfg,
		logger: logger,
	}
}

// Watch arms the receipt wait, the direct poll and the timeout fallback and
// returns the first resolution. The other strategies are stopped before
// Watch returns.
func (w *Watcher) Watch(ctx context.Context, sub *Submission, probe Probe) Outcome {
	watchCtx, cancel := context.WithCancel(ctx)

	results := make(chan Outcome, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		w.waitReceipt(watchCtx, sub, results)
	}()
	go func() {
		defer wg.Done()
		w.poll(watchCtx, sub, probe, results)
	}()
	go func() {
		defer wg.Done()
		w.fallback(watchCtx, sub, probe, results)
	}()

	var out Outcome
	select {
	case out = <-results:
	case <-ctx.Done():
		out = Outcome{Status: StatusFailed, Strategy: StrategySubmit, Err: ctx.Err()}
	}
	cancel()
	wg.Wait()

	if out.Hash == (common.Hash{}) {
		if hash, ok := sub.Hash(); ok {
			out.Hash = hash
		}
	}

	metrics.WatcherResolutions.WithLabelValues(string(out.Strategy), string(out.Status)).Inc()
	w.logger.Debug("Watch of %s resolved %s by %s", out.Hash.Hex(), out.Status, out.Strategy)
	return out
}

// waitReceipt blocks on the receipt once the signing agent returns a hash.
// A failed submission resolves the watch immediately.
func (w *Watcher) waitReceipt(ctx context.Context, sub *Submission, results chan<- Outcome) {
	hash, err := sub.Result(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		results <- Outcome{Status: StatusFailed, Strategy: StrategySubmit, Err: err}
		return
	}

	receipt, err := w.ledger.WaitReceipt(ctx, hash)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Debug("Receipt wait for %s stopped: %v", hash.Hex(), err)
		}
		return
	}
	results <- fromReceipt(receipt, hash, StrategyReceiptWait)
}

// poll checks the receipt every interval once the hash is known, or the
// probe while it is not, for a bounded number of attempts
func (w *Watcher) poll(ctx context.Context, sub *Submission, probe Probe, results chan<- Outcome) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= w.cfg.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if hash, ok := sub.Hash(); ok {
			receipt, err := w.ledger.GetReceipt(ctx, hash)
			if err != nil {
				w.logger.Debug("Poll attempt %d/%d for %s failed: %v", attempt, w.cfg.PollAttempts, hash.Hex(), err)
				continue
			}
			if receipt != nil {
				results <- fromReceipt(receipt, hash, StrategyDirectPoll)
				return
			}
			continue
		}

		if probe == nil {
			continue
		}
		ok, err := probe(ctx)
		if err != nil {
			w.logger.Debug("Probe attempt %d/%d failed: %v", attempt, w.cfg.PollAttempts, err)
			continue
		}
		if ok {
			results <- Outcome{Status: StatusConfirmed, Strategy: StrategyDirectPoll}
			return
		}
	}
}

// fallback performs one last check after the grace period and otherwise
// abandons the watch
func (w *Watcher) fallback(ctx context.Context, sub *Submission, probe Probe, results chan<- Outcome) {
	timer := time.NewTimer(w.cfg.GracePeriod)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if hash, ok := sub.Hash(); ok {
		receipt, err := w.ledger.GetReceipt(ctx, hash)
		if err == nil && receipt != nil {
			results <- fromReceipt(receipt, hash, StrategyTimeoutFallback)
			return
		}
		if err != nil {
			w.logger.Debug("Fallback receipt fetch for %s failed: %v", hash.Hex(), err)
		}
	} else if probe != nil {
		if ok, err := probe(ctx); err == nil && ok {
			results <- Outcome{Status: StatusConfirmed, Strategy: StrategyTimeoutFallback}
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	results <- Outcome{Status: StatusAbandoned, Strategy: StrategyTimeoutFallback}
}

func fromReceipt(receipt *types.Receipt, hash common.Hash, strategy Strategy) Outcome {
	status := StatusConfirmed
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = StatusReverted
	}
	return Outcome{Status: status, Strategy: strategy, Hash: hash, Receipt: receipt}
}
