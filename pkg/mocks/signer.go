package mocks

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/speedrun-hq/payflow/pkg/signer"
)

// Reaction controls how MockSigner handles one request
type Reaction struct {
	// Err rejects the request before anything is broadcast
	Err error
	// Delay holds the hash back for this long before broadcasting
	Delay time.Duration
	// Hang blocks the request until its context is done
	Hang bool
	// Revert mines a failed receipt
	Revert bool
	// Unmined returns a hash without mining the transaction
	Unmined bool
	// Logs are attached to the mined receipt
	Logs []*types.Log
	// After runs once the transaction is mined, e.g. to update contract state
	After func(hash common.Hash)
}

// MockSigner is an in-memory signer.Signer that mines into a MockLedger
type MockSigner struct {
	mu       sync.Mutex
	requests []signer.TxRequest
	mined    []common.Hash

	Account     common.Address
	Chain       *big.Int
	AccountsErr error
	Ledger      *MockLedger
	// React decides the handling of the n-th request, nil mines every request successfully
	React func(req signer.TxRequest, n int) Reaction
}

var (
	_ signer.Signer        = (*MockSigner)(nil)
	_ signer.MinedNotifier = (*MockSigner)(nil)
)

// NewMockSigner creates a signer for account on chainID that mines into ledger
func NewMockSigner(account common.Address, chainID int64, ledger *MockLedger) *MockSigner {
	return &MockSigner{
		Account: account,
		Chain:   big.NewInt(chainID),
		Ledger:  ledger,
	}
}

// RequestAccounts returns the configured account
func (s *MockSigner) RequestAccounts(_ context.Context) ([]common.Address, error) {
	if s.AccountsErr != nil {
		return nil, s.AccountsErr
	}
	if s.Account == (common.Address{}) {
		return nil, nil
	}
	return []common.Address{s.Account}, nil
}

// ActiveChain returns the configured chain
func (s *MockSigner) ActiveChain(_ context.Context) (*big.Int, error) {
	return s.Chain, nil
}

// Submit records the request and reacts to it
func (s *MockSigner) Submit(ctx context.Context, req signer.TxRequest) (common.Hash, error) {
	s.mu.Lock()
	n := len(s.requests)
	s.requests = append(s.requests, req)
	react := s.React
	s.mu.Unlock()

	var r Reaction
	if react != nil {
		r = react(req, n)
	}

	if r.Hang {
		<-ctx.Done()
		return common.Hash{}, ctx.Err()
	}
	if r.Err != nil {
		return common.Hash{}, r.Err
	}
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return common.Hash{}, ctx.Err()
		}
	}

	hash := crypto.Keccak256Hash(req.To.Bytes(), req.Data, big.NewInt(int64(n)).Bytes())
	if r.Unmined || s.Ledger == nil {
		return hash, nil
	}

	status := types.ReceiptStatusSuccessful
	if r.Revert {
		status = types.ReceiptStatusFailed
	}
	for i, lg := range r.Logs {
		lg.TxHash = hash
		lg.Index = uint(i)
	}
	s.Ledger.SetReceipt(hash, &types.Receipt{
		Status:  status,
		Logs:    r.Logs,
		GasUsed: 50_000,
	})
	if r.After != nil {
		r.After(hash)
	}
	return hash, nil
}

// Mined records the notification
func (s *MockSigner) Mined(hash common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mined = append(s.mined, hash)
}

// Requests returns the submitted requests in order
func (s *MockSigner) Requests() []signer.TxRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]signer.TxRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// MinedHashes returns the hashes reported through Mined
func (s *MockSigner) MinedHashes() []common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]common.Hash, len(s.mined))
	copy(out, s.mined)
	return out
}
