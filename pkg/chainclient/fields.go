package chainclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/payflow/pkg/contracts"
)

// ReadBool reads a boolean view
func ReadBool(ctx context.Context, l Ledger, contract common.Address, field string) (bool, error) {
	value, err := l.ReadField(ctx, contract, field)
	if err != nil {
		return false, err
	}
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected %s type %T", field, value)
	}
	return b, nil
}

// ReadUint reads a uint256 view
func ReadUint(ctx context.Context, l Ledger, contract common.Address, field string, args ...interface{}) (*big.Int, error) {
	value, err := l.ReadField(ctx, contract, field, args...)
	if err != nil {
		return nil, err
	}
	n, ok := value.(*big.Int)
	if !ok || n == nil {
		return nil, fmt.Errorf("unexpected %s type %T", field, value)
	}
	return n, nil
}

// ReadAddress reads an address view
func ReadAddress(ctx context.Context, l Ledger, contract common.Address, field string) (common.Address, error) {
	value, err := l.ReadField(ctx, contract, field)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := value.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s type %T", field, value)
	}
	return addr, nil
}

// ReadAllowance reads the ERC20 allowance of owner for spender
func ReadAllowance(ctx context.Context, l Ledger, token, owner, spender common.Address) (*big.Int, error) {
	return ReadUint(ctx, l, token, contracts.FieldAllowance, owner, spender)
}

// ReadDecimals reads token decimals, going through the cache when one is given
func ReadDecimals(ctx context.Context, l Ledger, cache *DecimalsCache, token common.Address) (uint8, error) {
	if cache != nil {
		if decimals, ok := cache.Get(token); ok {
			return decimals, nil
		}
	}

	value, err := l.ReadField(ctx, token, contracts.FieldDecimals)
	if err != nil {
		return 0, err
	}
	decimals, ok := value.(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", value)
	}

	if cache != nil {
		cache.Set(token, decimals)
	}
	return decimals, nil
}
