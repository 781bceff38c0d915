// Package contracts holds the ABIs of the payment factory, the payment
// contracts it deploys and the ERC20 tokens they move.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/lmittmann/w3"
)

// Field names readable through the Views ABI
const (
	FieldPayer           = "payer"
	FieldBeneficiary     = "beneficiary"
	FieldToken           = "token"
	FieldCancellable     = "cancellable"
	FieldCancelled       = "cancelled"
	FieldReleased        = "released"
	FieldReleaseTime     = "releaseTime"
	FieldMonthsRemaining = "monthsRemaining"
	FieldAllowance       = "allowance"
	FieldDecimals        = "decimals"
	FieldCreationFee     = "creationFee"
)

// ViewsABI merges the read-only surface of scheduled payments, recurring
// payments, the factory and ERC20 tokens into one ABI so any field can be
// read by name against any address.
const ViewsABI = `[
	{"type":"function","name":"payer","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"beneficiary","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"token","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"cancellable","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"cancelled","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"released","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"releaseTime","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"monthsRemaining","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"creationFee","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{
		"type":"function","name":"allowance","stateMutability":"view",
		"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}
]`

// Views is the parsed ViewsABI
var Views = mustParseABI(ViewsABI)

var (
	// FuncApprove is the ERC20 allowance grant
	FuncApprove = w3.MustNewFunc("approve(address,uint256)", "bool")

	// FuncCancel stops a scheduled or recurring payment and refunds the payer
	FuncCancel = w3.MustNewFunc("cancel()", "")

	// FuncCreateInstant pulls amount plus fee from the payer and pays the beneficiary immediately
	FuncCreateInstant = w3.MustNewFunc(
		"createInstantPayment(address,address,uint256)", "address",
	)

	// FuncCreateScheduled escrows amount plus fee until releaseTime
	FuncCreateScheduled = w3.MustNewFunc(
		"createScheduledPayment(address,address,uint256,uint256,bool)", "address",
	)

	// FuncCreateRecurring deploys one recurring payment contract
	FuncCreateRecurring = w3.MustNewFunc(
		"createRecurringPayment(address,address,uint256,uint256,uint256,uint256,uint256,bool)", "address",
	)

	// FuncCreateRecurringBatch deploys one recurring payment contract per beneficiary
	FuncCreateRecurringBatch = w3.MustNewFunc(
		"createRecurringPaymentBatch(address,address[],uint256[],uint256[],uint256,uint256,uint256,bool)", "address[]",
	)
)

var (
	// EventPaymentCreated is emitted by the factory for instant and scheduled payments
	EventPaymentCreated = w3.MustNewEvent(
		"PaymentCreated(address indexed,address indexed,address indexed)",
	)

	// EventRecurringPaymentCreated is emitted by the factory once per recurring contract
	EventRecurringPaymentCreated = w3.MustNewEvent(
		"RecurringPaymentCreated(address indexed,address indexed,address indexed)",
	)
)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic("invalid ABI: " + err.Error())
	}
	return parsed
}
