// Package mocks provides in-memory ledger and signing agent fakes for tests.
package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/speedrun-hq/payflow/pkg/chainclient"
)

// ErrNoField is returned when a field was never set on a contract
var ErrNoField = errors.New("execution reverted: no such field")

// MockLedger is an in-memory chainclient.Ledger
type MockLedger struct {
	mu       sync.Mutex
	fields   map[common.Address]map[string]interface{}
	code     map[common.Address][]byte
	receipts map[common.Hash]*types.Receipt
	reads    int

	// StallWait makes WaitReceipt block until its context is done
	StallWait bool
	// ReadErr fails every field read when set
	ReadErr error
}

var _ chainclient.Ledger = (*MockLedger)(nil)

// NewMockLedger creates an empty ledger
func NewMockLedger() *MockLedger {
	return &MockLedger{
		fields:   make(map[common.Address]map[string]interface{}),
		code:     make(map[common.Address][]byte),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func fieldKey(field string, args []interface{}) string {
	if len(args) == 0 {
		return field
	}
	return field + fmt.Sprint(args...)
}

// SetField sets the value returned by a view, args select a mapping entry
func (l *MockLedger) SetField(contract common.Address, field string, value interface{}, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fields[contract] == nil {
		l.fields[contract] = make(map[string]interface{})
	}
	l.fields[contract][fieldKey(field, args)] = value
}

// SetCode deploys bytecode at an address
func (l *MockLedger) SetCode(addr common.Address, code []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.code[addr] = code
}

// SetReceipt mines a transaction
func (l *MockLedger) SetReceipt(hash common.Hash, receipt *types.Receipt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	receipt.TxHash = hash
	l.receipts[hash] = receipt
}

// Reads returns how many field reads were served
func (l *MockLedger) Reads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads
}

// ReadField returns a value set with SetField
func (l *MockLedger) ReadField(_ context.Context, contract common.Address, field string, args ...interface{}) (interface{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	if l.ReadErr != nil {
		return nil, l.ReadErr
	}
	value, ok := l.fields[contract][fieldKey(field, args)]
	if !ok {
		return nil, fmt.Errorf("failed to read %s on %s: %w", field, contract.Hex(), ErrNoField)
	}
	return value, nil
}

// GetReceipt returns nil until the transaction is mined
func (l *MockLedger) GetReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.receipts[hash], nil
}

// WaitReceipt polls the in-memory receipts
func (l *MockLedger) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		l.mu.Lock()
		receipt, stalled := l.receipts[hash], l.StallWait
		l.mu.Unlock()
		if receipt != nil && !stalled {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetBytecode returns code set with SetCode
func (l *MockLedger) GetBytecode(_ context.Context, addr common.Address) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.code[addr], nil
}
