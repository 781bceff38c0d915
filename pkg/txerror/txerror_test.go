package txerror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codedError struct {
	code int
	msg  string
}

func (e codedError) Error() string  { return e.msg }
func (e codedError) ErrorCode() int { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"wallet denial", errors.New("MetaMask Tx Signature: User denied transaction signature."), UserRejected},
		{"eip-1193 code", codedError{code: 4001, msg: "declined"}, UserRejected},
		{"nonce", errors.New("nonce too low"), NonceConflict},
		{"underpriced replacement", errors.New("replacement transaction underpriced"), NonceConflict},
		{"gas funds", errors.New("insufficient funds for gas * price + value"), InsufficientGasFunds},
		{"revert", errors.New("execution reverted: ERC20: transfer amount exceeds allowance"), ContractReverted},
		{"rpc down", errors.New("dial tcp: connection refused"), NetworkOrRPC},
		{"rate limited", errors.New("429 Too Many Requests"), NetworkOrRPC},
		{"deadline", fmt.Errorf("waiting: %w", context.DeadlineExceeded), NetworkOrRPC},
		{"http 503", rpc.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}, NetworkOrRPC},
		{"http 400", rpc.HTTPError{StatusCode: 400, Status: "400 Bad Request"}, Unknown},
		{"digits in an address", fmt.Errorf("failed to read decimals of %s: %w",
			common.HexToAddress("0x5020000000000000000000000000000000000001").Hex(),
			errors.New("abi: cannot unmarshal string into uint8")), Unknown},
		{"digits in a hash", fmt.Errorf("receipt of %s: %w",
			common.HexToHash("0x4290000000000000000000000000000000000000000000000000000000000503").Hex(),
			errors.New("unexpected response")), Unknown},
		{"other", errors.New("something odd"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.err.Error(), got.Raw)
		})
	}
}

func TestClassify_PassesThroughClassified(t *testing.T) {
	assert.Nil(t, Classify(nil))

	hash := common.HexToHash("0x01")
	orig := New(NotOwner, "payer is %s", "0xabc").WithTx(hash)
	got := Classify(fmt.Errorf("cancel: %w", orig))
	assert.Same(t, orig, got)
	assert.Equal(t, hash, got.TxHash)
	assert.Equal(t, NotOwner, KindOf(fmt.Errorf("cancel: %w", orig)))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
}

func TestKindProperties(t *testing.T) {
	assert.True(t, NetworkOrRPC.Retryable())
	assert.True(t, NonceConflict.Retryable())
	assert.False(t, UserRejected.Retryable())

	assert.True(t, ContractReverted.Fatal())
	assert.False(t, UnknownTimeout.Fatal())

	assert.Equal(t, OutcomeUserError, UserRejected.Outcome())
	assert.Equal(t, OutcomeUncertain, UnknownTimeout.Outcome())
	assert.Equal(t, OutcomeSystemError, ExtractionFailed.Outcome())
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Only the payer can cancel this payment.", Message(NotOwner, "en", ""))
	assert.Equal(t, "Solo el pagador puede cancelar este pago.", Message(NotOwner, "ES", ""))
	assert.Equal(t, Message(NotOwner, "en", ""), Message(NotOwner, "fr", ""), "falls back to english")

	assert.Equal(t, "weird provider text", Message(Unknown, "en", "weird provider text"))
	assert.Equal(t, "Something went wrong.", Message(Unknown, "en", ""))

	e := Wrap(UserRejected, errors.New("user rejected"))
	assert.Contains(t, e.Message("es"), "Rechazaste")
	assert.ElementsMatch(t, []string{"en", "es"}, Locales())
}
