package models

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LifecycleState is the lifecycle of a ContractInstance
type LifecycleState int

const (
	StateUninstantiated LifecycleState = iota
	StateCreated
	StateAuthorized
	StateActive
	StateExhausted
	StateCancelled
)

var lifecycleNames = map[LifecycleState]string{
	StateUninstantiated: "uninstantiated",
	StateCreated:        "created",
	StateAuthorized:     "authorized",
	StateActive:         "active",
	StateExhausted:      "exhausted",
	StateCancelled:      "cancelled",
}

func (s LifecycleState) String() string {
	if name, ok := lifecycleNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in JSON
func (s LifecycleState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ContractInstance is the on-chain object executing one payment
type ContractInstance struct {
	Address          common.Address `json:"address"`
	Type             ContractType   `json:"type"`
	Payer            common.Address `json:"payer"`
	Beneficiary      common.Address `json:"beneficiary"`
	Token            common.Address `json:"token"`
	Amount           *big.Int       `json:"amount,omitempty"`
	MonthlyAmount    *big.Int       `json:"monthly_amount,omitempty"`
	FirstMonthAmount *big.Int       `json:"first_month_amount,omitempty"`
	// ApprovalAmount is the allowance the contract needs over its whole schedule
	ApprovalAmount *big.Int       `json:"approval_amount,omitempty"`
	Schedule       Schedule       `json:"schedule"`
	Cancellable    bool           `json:"cancellable"`
	State          LifecycleState `json:"state"`
	CreatedAt      time.Time      `json:"created_at,omitempty"`
}

// Advance moves the contract forward in its lifecycle. States never regress,
// and cancellation is only reachable through Cancel.
func (c *ContractInstance) Advance(to LifecycleState) error {
	if to == StateCancelled {
		return fmt.Errorf("contract %s: cancellation requires an explicit cancel", c.Address.Hex())
	}
	if c.State == StateCancelled || c.State == StateExhausted {
		return fmt.Errorf("contract %s is %s and cannot move to %s", c.Address.Hex(), c.State, to)
	}
	if to < c.State {
		return fmt.Errorf("contract %s cannot regress from %s to %s", c.Address.Hex(), c.State, to)
	}
	c.State = to
	return nil
}

// Cancel marks the contract as cancelled after a confirmed cancellation
func (c *ContractInstance) Cancel() error {
	if c.State == StateCancelled {
		return fmt.Errorf("contract %s is already cancelled", c.Address.Hex())
	}
	if c.State == StateExhausted {
		return fmt.Errorf("contract %s is exhausted", c.Address.Hex())
	}
	c.State = StateCancelled
	return nil
}
