// Package signer submits transactions on behalf of the payer.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/speedrun-hq/payflow/pkg/logger"
	"github.com/speedrun-hq/payflow/pkg/metrics"
	"github.com/speedrun-hq/payflow/pkg/models"
)

// DefaultGasLimitBuffer pads the estimated gas of every transaction
const DefaultGasLimitBuffer = 1.2

// TxRequest is a transaction for the signing agent to sign and broadcast
type TxRequest struct {
	To      common.Address
	Data    []byte
	Value   *big.Int
	Purpose models.TxPurpose
}

// Signer is the signing agent capability. Submit may block for as long as
// the agent needs to obtain approval, and may fail with a rejection.
type Signer interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ActiveChain(ctx context.Context) (*big.Int, error)
	Submit(ctx context.Context, req TxRequest) (common.Hash, error)
}

// MinedNotifier is implemented by signers that track in-flight nonces
type MinedNotifier interface {
	Mined(hash common.Hash)
}

// Backend is the subset of an RPC client used to sign and broadcast transactions
type Backend interface {
	NonceReader
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// GasSettings controls fee selection
type GasSettings struct {
	// Multiplier is applied to the suggested fee cap (e.g. 1.1 = 10% buffer)
	Multiplier float64
	// MaxGasPrice is the highest fee cap the signer accepts, nil means no limit
	MaxGasPrice *big.Int
	// GasLimitBuffer is applied to estimated gas
	GasLimitBuffer float64
}

// KeySigner signs with a local private key
type KeySigner struct {
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	signer  types.Signer
	gas     GasSettings
	nonces  *NonceManager
	logger  logger.Logger
}

var (
	_ Signer        = (*KeySigner)(nil)
	_ MinedNotifier = (*KeySigner)(nil)
)

// NewKeySigner creates a signer for the hex encoded private key on the backend's chain
func NewKeySigner(ctx context.Context, backend Backend, privateKeyHex string, gas GasSettings, logger logger.Logger) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %v", err)
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %v", err)
	}

	if gas.Multiplier < 1 {
		gas.Multiplier = 1
	}
	if gas.GasLimitBuffer < 1 {
		gas.GasLimitBuffer = DefaultGasLimitBuffer
	}

	address := crypto.PubkeyToAddress(key.PublicKey)
	return &KeySigner{
		backend: backend,
		key:     key,
		address: address,
		chainID: chainID,
		signer:  types.LatestSignerForChainID(chainID),
		gas:     gas,
		nonces:  NewNonceManager(backend, address, logger),
		logger:  logger,
	}, nil
}

// Address returns the signing account
func (s *KeySigner) Address() common.Address {
	return s.address
}

// RequestAccounts returns the signing account
func (s *KeySigner) RequestAccounts(_ context.Context) ([]common.Address, error) {
	return []common.Address{s.address}, nil
}

// ActiveChain returns the chain the backend is connected to
func (s *KeySigner) ActiveChain(ctx context.Context) (*big.Int, error) {
	return s.backend.ChainID(ctx)
}

// Submit signs and broadcasts an EIP-1559 transaction
func (s *KeySigner) Submit(ctx context.Context, req TxRequest) (common.Hash, error) {
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	gasLimit, err := s.estimateGas(ctx, req.To, req.Data, value)
	if err != nil {
		return common.Hash{}, err
	}

	tipCap, feeCap, err := s.suggestFees(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := s.nonces.Next(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	to := req.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})

	signed, err := types.SignTx(tx, s.signer, s.key)
	if err != nil {
		s.nonces.Release(nonce)
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %v", err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		s.nonces.Release(nonce)
		return common.Hash{}, fmt.Errorf("failed to send %s transaction: %w", req.Purpose, err)
	}
	s.nonces.Track(signed.Hash(), nonce)

	metrics.TransactionsSubmitted.WithLabelValues(string(req.Purpose)).Inc()
	s.logger.InfoWithChain(int(s.chainID.Int64()), "Submitted %s transaction %s (nonce %d, gas %d)",
		req.Purpose, signed.Hash().Hex(), nonce, gasLimit)

	return signed.Hash(), nil
}

// Mined tells the nonce manager the transaction left the mempool
func (s *KeySigner) Mined(hash common.Hash) {
	s.nonces.MarkMined(hash)
}

func (s *KeySigner) estimateGas(ctx context.Context, to common.Address, data []byte, value *big.Int) (uint64, error) {
	estimated, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.address,
		To:    &to,
		Data:  data,
		Value: value,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	return uint64(float64(estimated) * s.gas.GasLimitBuffer), nil
}

// suggestFees returns the tip and fee cap, refusing fee caps above the configured maximum
func (s *KeySigner) suggestFees(ctx context.Context) (*big.Int, *big.Int, error) {
	tipCap, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}

	head, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest header: %w", err)
	}

	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}

	// 2x base fee leaves room for base fee increases over the next blocks
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tipCap)
	multiplied := new(big.Float).Mul(new(big.Float).SetInt(feeCap), big.NewFloat(s.gas.Multiplier))
	multiplied.Int(feeCap)

	if s.gas.MaxGasPrice != nil && s.gas.MaxGasPrice.Sign() > 0 && feeCap.Cmp(s.gas.MaxGasPrice) > 0 {
		return nil, nil, fmt.Errorf("gas price too high: %s > %s", feeCap.String(), s.gas.MaxGasPrice.String())
	}

	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(feeCap), big.NewFloat(1e9)).Float64()
	metrics.GasPrice.WithLabelValues(strconv.FormatInt(s.chainID.Int64(), 10)).Set(gwei)

	return tipCap, feeCap, nil
}
