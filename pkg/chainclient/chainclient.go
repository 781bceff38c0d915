// Package chainclient provides throttled read access to the ledger.
package chainclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"

	"github.com/speedrun-hq/payflow/pkg/contracts"
	"github.com/speedrun-hq/payflow/pkg/logger"
)

// DefaultReceiptInterval is the interval between receipt lookups while waiting for a transaction
const DefaultReceiptInterval = 2 * time.Second

// Ledger is the read capability the orchestrator needs from the chain
type Ledger interface {
	// ReadField calls a view of the Views ABI by name and returns its single output
	ReadField(ctx context.Context, contract common.Address, field string, args ...interface{}) (interface{}, error)
	// GetReceipt returns nil without error when the transaction is not mined yet
	GetReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	// WaitReceipt blocks until the transaction is mined or ctx is done
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	GetBytecode(ctx context.Context, addr common.Address) ([]byte, error)
}

// Backend is the subset of an RPC client used by Client
type Backend interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Client implements Ledger over an RPC backend
type Client struct {
	ChainID         int
	backend         Backend
	limiter         *rate.Limiter
	receiptInterval time.Duration
	logger          logger.Logger
}

var _ Ledger = (*Client)(nil)

// New creates a new ledger client that issues at most readsPerSecond calls
func New(chainID int, backend Backend, readsPerSecond float64, logger logger.Logger) *Client {
	burst := int(readsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		ChainID:         chainID,
		backend:         backend,
		limiter:         rate.NewLimiter(rate.Limit(readsPerSecond), burst),
		receiptInterval: DefaultReceiptInterval,
		logger:          logger,
	}
}

// SetReceiptInterval changes the interval between receipt lookups in WaitReceipt
func (c *Client) SetReceiptInterval(interval time.Duration) {
	c.receiptInterval = interval
}

// ReadField reads a named view from a contract
func (c *Client) ReadField(ctx context.Context, contract common.Address, field string, args ...interface{}) (interface{}, error) {
	input, err := contracts.Views.Pack(field, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", field, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	output, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s on %s: %w", field, contract.Hex(), err)
	}

	values, err := contracts.Views.Unpack(field, output)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s on %s: %w", field, contract.Hex(), err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty %s response from %s", field, contract.Hex())
	}
	return values[0], nil
}

// GetReceipt fetches a receipt, returning nil if the transaction is not mined yet
func (c *Client) GetReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}

// WaitReceipt polls for a receipt until the transaction is mined or ctx is done
func (c *Client) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.receiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.GetReceipt(ctx, hash)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.DebugWithChain(c.ChainID, "Receipt lookup for %s failed, retrying: %v", hash.Hex(), err)
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetBytecode returns the code deployed at an address
func (c *Client) GetBytecode(ctx context.Context, addr common.Address) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	code, err := c.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code at %s: %w", addr.Hex(), err)
	}
	return code, nil
}

// GetLatestBlockNumber gets the latest block number from the chain
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.backend.BlockNumber(ctx)
}
