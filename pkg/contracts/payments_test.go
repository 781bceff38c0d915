package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewsABI(t *testing.T) {
	for _, field := range []string{
		FieldPayer, FieldBeneficiary, FieldToken, FieldCancellable, FieldCancelled, FieldReleased,
		FieldReleaseTime, FieldMonthsRemaining, FieldAllowance, FieldDecimals, FieldCreationFee,
	} {
		_, ok := Views.Methods[field]
		assert.True(t, ok, "missing view %s", field)
	}
}

func TestFuncApprove_Encode(t *testing.T) {
	spender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	data, err := FuncApprove.EncodeArgs(spender, big.NewInt(42))
	require.NoError(t, err)

	// selector of approve(address,uint256)
	assert.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, data[:4])
	assert.Len(t, data, 4+32+32)
	assert.Equal(t, spender.Bytes(), data[4+12:4+32])
	assert.Equal(t, byte(42), data[len(data)-1])
}

func TestEventRecurringPaymentCreated_Decode(t *testing.T) {
	payment := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	payer := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	beneficiary := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	log := &types.Log{
		Topics: []common.Hash{
			EventRecurringPaymentCreated.Topic0,
			common.BytesToHash(payment.Bytes()),
			common.BytesToHash(payer.Bytes()),
			common.BytesToHash(beneficiary.Bytes()),
		},
	}

	var gotPayment, gotPayer, gotBeneficiary common.Address
	require.NoError(t, EventRecurringPaymentCreated.DecodeArgs(log, &gotPayment, &gotPayer, &gotBeneficiary))
	assert.Equal(t, payment, gotPayment)
	assert.Equal(t, payer, gotPayer)
	assert.Equal(t, beneficiary, gotBeneficiary)
	assert.NotEqual(t, EventPaymentCreated.Topic0, EventRecurringPaymentCreated.Topic0)
}
