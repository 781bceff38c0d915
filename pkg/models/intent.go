package models

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PaymentKind is the kind of commitment a PaymentIntent asks for
type PaymentKind string

const (
	KindInstant        PaymentKind = "instant"
	KindScheduled      PaymentKind = "scheduled"
	KindRecurring      PaymentKind = "recurring"
	KindRecurringBatch PaymentKind = "recurring_batch"
	KindCancel         PaymentKind = "cancel"
)

// ContractType labels the kind of on-chain payment contract
type ContractType string

const (
	ContractUnknown   ContractType = ""
	ContractInstant   ContractType = "instant"
	ContractScheduled ContractType = "scheduled"
	ContractRecurring ContractType = "recurring"
)

// Schedule holds the timing parameters of scheduled and recurring payments
type Schedule struct {
	FirstExecution    time.Time `json:"first_execution"`
	TotalInstallments int       `json:"total_installments,omitempty"`
	DayOfMonth        int       `json:"day_of_month,omitempty"`
}

// Beneficiary is one recipient of a recurring payment
type Beneficiary struct {
	Address          string          `json:"address"`
	MonthlyAmount    decimal.Decimal `json:"monthly_amount"`
	FirstMonthAmount decimal.Decimal `json:"first_month_amount"`
}

// FirstAmount returns the first installment, which defaults to the monthly amount
func (b Beneficiary) FirstAmount() decimal.Decimal {
	if b.FirstMonthAmount.IsPositive() {
		return b.FirstMonthAmount
	}
	return b.MonthlyAmount
}

// PaymentIntent is the user's request. It is never mutated once handed to the orchestrator.
type PaymentIntent struct {
	// ID is the durable store record, known up front for instant and scheduled payments and cancellations
	ID            string          `json:"id,omitempty"`
	Kind          PaymentKind     `json:"kind"`
	Token         string          `json:"token,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Beneficiary   string          `json:"beneficiary,omitempty"`
	Beneficiaries []Beneficiary   `json:"beneficiaries,omitempty"`
	// MonthlyAmount and FirstMonthAmount apply to a single-beneficiary recurring payment
	MonthlyAmount    decimal.Decimal `json:"monthly_amount"`
	FirstMonthAmount decimal.Decimal `json:"first_month_amount"`
	Schedule         Schedule        `json:"schedule"`
	Cancellable      bool            `json:"cancellable"`
	// Target and ContractType describe the contract to cancel
	Target       string       `json:"target,omitempty"`
	ContractType ContractType `json:"contract_type,omitempty"`
}

// Recipients returns the beneficiaries of a recurring intent, with the
// single-beneficiary form normalized into a one element list
func (i PaymentIntent) Recipients() []Beneficiary {
	if i.Kind == KindRecurringBatch {
		return i.Beneficiaries
	}
	return []Beneficiary{{
		Address:          i.Beneficiary,
		MonthlyAmount:    i.MonthlyAmount,
		FirstMonthAmount: i.FirstMonthAmount,
	}}
}

// IsRecurring reports whether the intent creates recurring contracts
func (i PaymentIntent) IsRecurring() bool {
	return i.Kind == KindRecurring || i.Kind == KindRecurringBatch
}

// Validate checks the intent is complete for its kind
func (i PaymentIntent) Validate() error {
	switch i.Kind {
	case KindInstant, KindScheduled:
		if i.Token == "" {
			return fmt.Errorf("token is required")
		}
		if !common.IsHexAddress(i.Beneficiary) {
			return fmt.Errorf("invalid beneficiary address: %q", i.Beneficiary)
		}
		if !i.Amount.IsPositive() {
			return fmt.Errorf("amount must be positive")
		}
		if i.Kind == KindScheduled && i.Schedule.FirstExecution.IsZero() {
			return fmt.Errorf("scheduled payment requires a release time")
		}
	case KindRecurring, KindRecurringBatch:
		if i.Token == "" {
			return fmt.Errorf("token is required")
		}
		if i.Schedule.TotalInstallments <= 0 {
			return fmt.Errorf("total installments must be positive")
		}
		if i.Schedule.DayOfMonth < 1 || i.Schedule.DayOfMonth > 28 {
			return fmt.Errorf("day of month must be between 1 and 28, got %d", i.Schedule.DayOfMonth)
		}
		if i.Schedule.FirstExecution.IsZero() {
			return fmt.Errorf("recurring payment requires a first execution time")
		}
		recipients := i.Recipients()
		if len(recipients) == 0 {
			return fmt.Errorf("at least one beneficiary is required")
		}
		seen := make(map[common.Address]bool, len(recipients))
		for idx, b := range recipients {
			if !common.IsHexAddress(b.Address) {
				return fmt.Errorf("invalid beneficiary address at index %d: %q", idx, b.Address)
			}
			addr := common.HexToAddress(b.Address)
			if seen[addr] {
				return fmt.Errorf("duplicate beneficiary %s", addr.Hex())
			}
			seen[addr] = true
			if !b.MonthlyAmount.IsPositive() {
				return fmt.Errorf("monthly amount must be positive for beneficiary %s", addr.Hex())
			}
			if b.FirstMonthAmount.IsNegative() {
				return fmt.Errorf("first month amount must not be negative for beneficiary %s", addr.Hex())
			}
		}
	case KindCancel:
		if !common.IsHexAddress(i.Target) {
			return fmt.Errorf("invalid cancellation target: %q", i.Target)
		}
		switch i.ContractType {
		case ContractUnknown, ContractScheduled, ContractRecurring:
		default:
			return fmt.Errorf("contract type %q cannot be cancelled", i.ContractType)
		}
	default:
		return fmt.Errorf("unknown payment kind: %q", i.Kind)
	}
	return nil
}
