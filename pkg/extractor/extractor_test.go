package extractor

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/payflow/pkg/contracts"
	"github.com/speedrun-hq/payflow/pkg/logger"
	"github.com/speedrun-hq/payflow/pkg/txerror"
)

var (
	factory     = common.HexToAddress("0xfac0000000000000000000000000000000000001")
	token       = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	payer       = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	beneficiary = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	transferSig = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
)

func createdLog(event common.Hash, payment common.Address) *types.Log {
	return &types.Log{
		Address: factory,
		Topics: []common.Hash{
			event,
			common.BytesToHash(payment.Bytes()),
			common.BytesToHash(payer.Bytes()),
			common.BytesToHash(beneficiary.Bytes()),
		},
	}
}

func transferLog(emitter common.Address) *types.Log {
	return &types.Log{
		Address: emitter,
		Topics:  []common.Hash{transferSig, common.BytesToHash(payer.Bytes()), common.BytesToHash(beneficiary.Bytes())},
		Data:    common.LeftPadBytes([]byte{1}, 32),
	}
}

func TestExtract_DecodesEvent(t *testing.T) {
	payment := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	receipt := &types.Receipt{Logs: []*types.Log{
		transferLog(token),
		transferLog(common.HexToAddress("0x9999999999999999999999999999999999999999")),
		createdLog(contracts.EventPaymentCreated.Topic0, payment),
	}}

	e := New(factory, &logger.EmptyLogger{}, token)
	got, err := e.Extract(receipt, 1)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{payment}, got)
}

func TestExtract_BatchInLogOrder(t *testing.T) {
	addrs := []common.Address{
		common.HexToAddress("0x0000000000000000000000000000000000000a01"),
		common.HexToAddress("0x0000000000000000000000000000000000000a02"),
		common.HexToAddress("0x0000000000000000000000000000000000000a03"),
	}
	var logs []*types.Log
	for _, addr := range addrs {
		logs = append(logs, transferLog(token), createdLog(contracts.EventRecurringPaymentCreated.Topic0, addr))
	}

	e := New(factory, &logger.EmptyLogger{}, token)
	got, err := e.Extract(&types.Receipt{Logs: logs}, 3)
	require.NoError(t, err)
	assert.Equal(t, addrs, got)

	_, err = e.Extract(&types.Receipt{Logs: logs[:2]}, 3)
	require.Error(t, err)
	assert.Equal(t, txerror.ExtractionFailed, txerror.KindOf(err))
}

func TestExtract_Fallback(t *testing.T) {
	created := common.HexToAddress("0x4444444444444444444444444444444444444444")

	t.Run("first log not from the factory", func(t *testing.T) {
		receipt := &types.Receipt{Logs: []*types.Log{
			{Address: factory, Topics: []common.Hash{common.HexToHash("0x01")}},
			{Address: created},
			{Address: common.HexToAddress("0x5555555555555555555555555555555555555555")},
		}}

		e := New(factory, &logger.EmptyLogger{})
		got, err := e.Extract(receipt, 1)
		require.NoError(t, err)
		assert.Equal(t, []common.Address{created}, got)
	})

	t.Run("ignored emitters are skipped", func(t *testing.T) {
		receipt := &types.Receipt{Logs: []*types.Log{transferLog(token), {Address: created}}}

		e := New(factory, &logger.EmptyLogger{})
		got, err := e.Extract(receipt, 1, token)
		require.NoError(t, err)
		assert.Equal(t, []common.Address{created}, got)
	})

	t.Run("no usable logs", func(t *testing.T) {
		hash := common.HexToHash("0xbeef")
		receipt := &types.Receipt{TxHash: hash, Logs: []*types.Log{{Address: factory}, transferLog(token)}}

		e := New(factory, &logger.EmptyLogger{}, token)
		_, err := e.Extract(receipt, 1)
		require.Error(t, err)

		var classified *txerror.Error
		require.ErrorAs(t, err, &classified)
		assert.Equal(t, txerror.ExtractionFailed, classified.Kind)
		assert.Equal(t, hash, classified.TxHash)
	})

	t.Run("nil receipt", func(t *testing.T) {
		_, err := New(factory, &logger.EmptyLogger{}).Extract(nil, 1)
		assert.Equal(t, txerror.ExtractionFailed, txerror.KindOf(err))
	})
}
