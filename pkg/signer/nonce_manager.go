package signer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/payflow/pkg/logger"
)

// nonceSyncInterval is how long a locally tracked nonce is trusted before resyncing
const nonceSyncInterval = 5 * time.Minute

// NonceReader reads the pending nonce of an account
type NonceReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// pendingTx tracks a transaction sent but not yet seen mined
type pendingTx struct {
	hash   common.Hash
	nonce  uint64
	sentAt time.Time
}

// NonceManager handles nonce allocation for a single account
type NonceManager struct {
	reader  NonceReader
	account common.Address
	logger  logger.Logger

	mu           sync.Mutex
	currentNonce uint64
	pending      map[uint64]*pendingTx
	byHash       map[common.Hash]uint64
	lastSync     time.Time
}

// NewNonceManager creates a new nonce manager
func NewNonceManager(reader NonceReader, account common.Address, logger logger.Logger) *NonceManager {
	return &NonceManager{
		reader:  reader,
		account: account,
		logger:  logger,
		pending: make(map[uint64]*pendingTx),
		byHash:  make(map[common.Hash]uint64),
	}
}

// Next reserves and returns the next available nonce
func (nm *NonceManager) Next(ctx context.Context) (uint64, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.lastSync.IsZero() || time.Since(nm.lastSync) > nonceSyncInterval {
		if err := nm.syncLocked(ctx); err != nil {
			return 0, err
		}
	}

	nonce := nm.currentNonce
	nm.currentNonce++
	return nonce, nil
}

// Track records a transaction sent with the given nonce
func (nm *NonceManager) Track(hash common.Hash, nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nm.pending[nonce] = &pendingTx{hash: hash, nonce: nonce, sentAt: time.Now()}
	nm.byHash[hash] = nonce
	nm.logger.Debug("Tracking transaction with nonce %d: %s", nonce, hash.Hex())
}

// MarkMined forgets a transaction once the ledger included it, whatever its status
func (nm *NonceManager) MarkMined(hash common.Hash) bool {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nonce, ok := nm.byHash[hash]
	if !ok {
		return false
	}
	delete(nm.byHash, hash)
	delete(nm.pending, nonce)
	return true
}

// Release gives back a reserved nonce whose transaction was never broadcast.
// The nonce is only reused when no later nonce is in flight.
func (nm *NonceManager) Release(nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	for pendingNonce := range nm.pending {
		if pendingNonce > nonce {
			nm.logger.Notice("Cannot reuse nonce %d, nonce %d is already in flight", nonce, pendingNonce)
			// force a resync so the gap is picked up from the node
			nm.lastSync = time.Time{}
			return
		}
	}
	if nonce < nm.currentNonce {
		nm.currentNonce = nonce
		nm.logger.Debug("Nonce %d set for reuse", nonce)
	}
}

// Sync synchronizes nonce state with the blockchain
func (nm *NonceManager) Sync(ctx context.Context) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return nm.syncLocked(ctx)
}

func (nm *NonceManager) syncLocked(ctx context.Context) error {
	nonce, err := nm.reader.PendingNonceAt(ctx, nm.account)
	if err != nil {
		return fmt.Errorf("failed to get pending nonce: %w", err)
	}

	if nonce > nm.currentNonce {
		nm.logger.Debug("Updating nonce: %d -> %d", nm.currentNonce, nonce)
		nm.currentNonce = nonce
	}

	// the node already accounts for everything below its pending nonce
	for pendingNonce, tx := range nm.pending {
		if pendingNonce < nonce {
			delete(nm.byHash, tx.hash)
			delete(nm.pending, pendingNonce)
		}
	}

	nm.lastSync = time.Now()
	return nil
}

// Pending returns the number of transactions sent and not yet seen mined
func (nm *NonceManager) Pending() int {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return len(nm.pending)
}
