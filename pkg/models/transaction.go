package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxPurpose is why a transaction is submitted
type TxPurpose string

const (
	PurposeApproveFactory  TxPurpose = "approve_factory"
	PurposeCreate          TxPurpose = "create"
	PurposeApproveContract TxPurpose = "approve_contract"
	PurposeCancel          TxPurpose = "cancel"
)

// TxStatus is the known state of a submitted transaction
type TxStatus string

const (
	TxSubmitted      TxStatus = "submitted"
	TxConfirming     TxStatus = "confirming"
	TxConfirmed      TxStatus = "confirmed"
	TxReverted       TxStatus = "reverted"
	TxUnknownTimeout TxStatus = "unknown_timeout"
)

// TransactionRecord tracks one transaction of an orchestration session
type TransactionRecord struct {
	Purpose TxPurpose `json:"purpose"`
	// Index is the contract position for approve_contract records
	Index int `json:"index"`
	// Hash stays zero until the signing agent hands it back
	Hash      common.Hash    `json:"hash"`
	Status    TxStatus       `json:"status"`
	To        common.Address `json:"to"`
	Amount    *big.Int       `json:"amount,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// HasHash reports whether the transaction hash is known
func (r *TransactionRecord) HasHash() bool {
	return r.Hash != (common.Hash{})
}

// IsConfirmed reports whether the ledger included the transaction successfully
func (r *TransactionRecord) IsConfirmed() bool {
	return r.Status == TxConfirmed
}

// AuthorizationGrant is an allowance transaction in flight or settled
type AuthorizationGrant struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Token   common.Address `json:"token"`
	Amount  *big.Int       `json:"amount"`
}
