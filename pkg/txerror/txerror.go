// Package txerror classifies provider and ledger errors into a small taxonomy
// with one stable user facing message per kind.
package txerror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// Kind is the classified category of an error
type Kind string

const (
	UserRejected         Kind = "user_rejected"
	InsufficientGasFunds Kind = "insufficient_gas_funds"
	NonceConflict        Kind = "nonce_conflict"
	NetworkOrRPC         Kind = "network_or_rpc"
	ContractReverted     Kind = "contract_reverted"
	ExtractionFailed     Kind = "extraction_failed"
	UnknownTimeout       Kind = "unknown_timeout"
	PersistenceFailed    Kind = "persistence_failed"
	Unknown              Kind = "unknown"

	// Cancellation preconditions
	AlreadyCancelled   Kind = "already_cancelled"
	AlreadyExecuted    Kind = "already_executed"
	CancelWindowPassed Kind = "cancel_window_passed"
	NotOwner           Kind = "not_owner"
	NotCancellable     Kind = "not_cancellable"
	TargetIsFactory    Kind = "target_is_factory"
	NotAContract       Kind = "not_a_contract"

	WrongNetwork  Kind = "wrong_network"
	InvalidIntent Kind = "invalid_intent"
)

// Outcome groups kinds into the terminal outcome a session reports
type Outcome string

const (
	OutcomeUserError   Outcome = "user_error"
	OutcomeSystemError Outcome = "system_error"
	OutcomeUncertain   Outcome = "uncertain"
)

// userRejectedCode is the EIP-1193 code for a request the user declined
const userRejectedCode = 4001

// Retryable reports whether submitting the same step again may succeed without user action
func (k Kind) Retryable() bool {
	switch k {
	case NonceConflict, NetworkOrRPC:
		return true
	}
	return false
}

// Fatal reports whether the error ends the current attempt with no point in resubmitting
func (k Kind) Fatal() bool {
	switch k {
	case ContractReverted, ExtractionFailed, TargetIsFactory, NotAContract, AlreadyCancelled,
		AlreadyExecuted, CancelWindowPassed, NotOwner, NotCancellable:
		return true
	}
	return false
}

// Outcome returns whether the error is attributable to the user or the system
func (k Kind) Outcome() Outcome {
	switch k {
	case UnknownTimeout:
		return OutcomeUncertain
	case UserRejected, InsufficientGasFunds, AlreadyCancelled, AlreadyExecuted, CancelWindowPassed,
		NotOwner, NotCancellable, TargetIsFactory, NotAContract, WrongNetwork, InvalidIntent:
		return OutcomeUserError
	}
	return OutcomeSystemError
}

// Error is a classified error. Raw keeps the provider text for diagnostics.
type Error struct {
	Kind    Kind
	Raw     string
	TxHash  common.Hash
	Address common.Address
	Err     error
}

func (e *Error) Error() string {
	if e.Raw == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Raw
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the localized user facing message
func (e *Error) Message(locale string) string {
	return Message(e.Kind, locale, e.Raw)
}

// WithTx attaches the transaction hash the error relates to
func (e *Error) WithTx(hash common.Hash) *Error {
	e.TxHash = hash
	return e
}

// WithAddress attaches the contract address the error relates to
func (e *Error) WithAddress(addr common.Address) *Error {
	e.Address = addr
	return e
}

// New creates a classified error with a formatted diagnostic
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Raw: fmt.Sprintf(format, args...)}
}

// Wrap classifies err as the given kind
func Wrap(kind Kind, err error) *Error {
	e := &Error{Kind: kind, Err: err}
	if err != nil {
		e.Raw = err.Error()
	}
	return e
}

// KindOf returns the kind of a classified error or Unknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

var patterns = []struct {
	kind    Kind
	needles []string
}{
	{UserRejected, []string{
		"user rejected", "user denied", "rejected by user", "request rejected", "user cancelled", "action_rejected",
	}},
	{NonceConflict, []string{
		"nonce too low", "nonce too high", "replacement transaction underpriced", "already known", "nonce has already been used",
	}},
	{InsufficientGasFunds, []string{
		"insufficient funds", "insufficient balance for transfer",
	}},
	{ContractReverted, []string{
		"execution reverted", "reverted", "invalid opcode", "out of gas", "transfer amount exceeds",
	}},
	{NetworkOrRPC, []string{
		"connection refused", "connection reset", "timeout", "timed out", "no response", "eof",
		"missing trie node", "header not found", "too many requests", "bad gateway", "service unavailable",
		"gateway timeout", "rate limit", "gas price too high", "no such host", "deadline exceeded",
	}},
}

// Classify maps a raw error into the taxonomy. Already classified errors pass through.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return Wrap(UserRejected, err)
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && transientStatus(httpErr.StatusCode) {
		return Wrap(NetworkOrRPC, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(NetworkOrRPC, err)
	}

	errStr := strings.ToLower(err.Error())
	for _, p := range patterns {
		for _, needle := range p.needles {
			if strings.Contains(errStr, needle) {
				return Wrap(p.kind, err)
			}
		}
	}

	return Wrap(Unknown, err)
}

// transientStatus reports whether an HTTP status from the RPC endpoint is worth retrying
func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
