package watcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/payflow/pkg/logger"
	"github.com/speedrun-hq/payflow/pkg/mocks"
	"github.com/speedrun-hq/payflow/pkg/models"
	"github.com/speedrun-hq/payflow/pkg/signer"
)

var (
	payer  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	target = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func newTestWatcher(ledger *mocks.MockLedger, cfg Config) *Watcher {
	return New(ledger, cfg, &logger.EmptyLogger{})
}

func cancelRequest() signer.TxRequest {
	return signer.TxRequest{To: target, Purpose: models.PurposeCancel}
}

func TestWatch_ReceiptWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tests := []struct {
		name   string
		revert bool
		want   Status
	}{
		{"confirmed", false, StatusConfirmed},
		{"reverted", true, StatusReverted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := mocks.NewMockLedger()
			s := mocks.NewMockSigner(payer, 8453, ledger)
			s.React = func(signer.TxRequest, int) mocks.Reaction { return mocks.Reaction{Revert: tt.revert} }

			w := newTestWatcher(ledger, Config{PollInterval: time.Hour, PollAttempts: 1, GracePeriod: time.Hour})

			var seen atomic.Value
			sub := Submit(ctx, s, cancelRequest(), func(h common.Hash) { seen.Store(h) })
			out := w.Watch(ctx, sub, nil)

			assert.Equal(t, tt.want, out.Status)
			assert.Equal(t, StrategyReceiptWait, out.Strategy)
			require.NotNil(t, out.Receipt)
			assert.Equal(t, out.Hash, out.Receipt.TxHash)
			assert.Equal(t, out.Hash, seen.Load())
		})
	}
}

func TestWatch_SubmissionRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ledger := mocks.NewMockLedger()
	s := mocks.NewMockSigner(payer, 8453, ledger)
	rejected := errors.New("user rejected the request")
	s.React = func(signer.TxRequest, int) mocks.Reaction { return mocks.Reaction{Err: rejected} }

	w := newTestWatcher(ledger, Config{PollInterval: time.Hour, PollAttempts: 1, GracePeriod: time.Hour})
	out := w.Watch(ctx, Submit(ctx, s, cancelRequest(), nil), nil)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, StrategySubmit, out.Strategy)
	assert.ErrorIs(t, out.Err, rejected)
	assert.Equal(t, common.Hash{}, out.Hash)
}

func TestWatch_ProbeResolvesWithoutHash(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ledger := mocks.NewMockLedger()
	s := mocks.NewMockSigner(payer, 8453, ledger)
	s.React = func(signer.TxRequest, int) mocks.Reaction { return mocks.Reaction{Hang: true} }

	var probes atomic.Int32
	probe := func(context.Context) (bool, error) {
		return probes.Add(1) >= 3, nil
	}

	w := newTestWatcher(ledger, Config{PollInterval: 5 * time.Millisecond, PollAttempts: 10, GracePeriod: time.Hour})
	out := w.Watch(ctx, Submit(ctx, s, cancelRequest(), nil), probe)

	assert.Equal(t, StatusConfirmed, out.Status)
	assert.Equal(t, StrategyDirectPoll, out.Strategy)
	assert.Nil(t, out.Receipt)
	assert.Equal(t, int32(3), probes.Load())
}

func TestWatch_PollFindsReceiptWhenWaitStalls(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ledger := mocks.NewMockLedger()
	ledger.StallWait = true
	s := mocks.NewMockSigner(payer, 8453, ledger)

	w := newTestWatcher(ledger, Config{PollInterval: 5 * time.Millisecond, PollAttempts: 50, GracePeriod: time.Hour})
	out := w.Watch(ctx, Submit(ctx, s, cancelRequest(), nil), nil)

	assert.Equal(t, StatusConfirmed, out.Status)
	assert.Equal(t, StrategyDirectPoll, out.Strategy)
	require.NotNil(t, out.Receipt)
}

func TestWatch_TimeoutFallback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("abandons when nothing resolves", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		s := mocks.NewMockSigner(payer, 8453, ledger)
		s.React = func(signer.TxRequest, int) mocks.Reaction { return mocks.Reaction{Unmined: true} }

		w := newTestWatcher(ledger, Config{PollInterval: 5 * time.Millisecond, PollAttempts: 2, GracePeriod: 50 * time.Millisecond})
		out := w.Watch(ctx, Submit(ctx, s, cancelRequest(), nil), func(context.Context) (bool, error) { return false, nil })

		assert.Equal(t, StatusAbandoned, out.Status)
		assert.Equal(t, StrategyTimeoutFallback, out.Strategy)
		assert.NotEqual(t, common.Hash{}, out.Hash, "the hash is reported for manual verification")
	})

	t.Run("abandons a signer that never answers", func(t *testing.T) {
		hangCtx, stop := context.WithCancel(ctx)
		defer stop()

		ledger := mocks.NewMockLedger()
		s := mocks.NewMockSigner(payer, 8453, ledger)
		s.React = func(signer.TxRequest, int) mocks.Reaction { return mocks.Reaction{Hang: true} }

		w := newTestWatcher(ledger, Config{PollInterval: 5 * time.Millisecond, PollAttempts: 2, GracePeriod: 30 * time.Millisecond})
		out := w.Watch(ctx, Submit(hangCtx, s, cancelRequest(), nil), nil)

		assert.Equal(t, StatusAbandoned, out.Status)
		assert.Equal(t, common.Hash{}, out.Hash)
	})

	t.Run("one last receipt fetch", func(t *testing.T) {
		ledger := mocks.NewMockLedger()
		ledger.StallWait = true
		hash := common.HexToHash("0xfeed")

		w := newTestWatcher(ledger, Config{PollInterval: 5 * time.Millisecond, PollAttempts: 1, GracePeriod: 60 * time.Millisecond})
		go func() {
			time.Sleep(25 * time.Millisecond)
			ledger.SetReceipt(hash, &types.Receipt{Status: types.ReceiptStatusSuccessful})
		}()
		out := w.Watch(ctx, Resolved(hash), nil)

		assert.Equal(t, StatusConfirmed, out.Status)
		assert.Equal(t, StrategyTimeoutFallback, out.Strategy)
		assert.Equal(t, hash, out.Hash)
	})
}

func TestWatch_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ledger := mocks.NewMockLedger()
	w := newTestWatcher(ledger, Config{PollInterval: time.Hour, PollAttempts: 1, GracePeriod: time.Hour})

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	out := w.Watch(ctx, Resolved(common.HexToHash("0x01")), nil)

	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestSubmission(t *testing.T) {
	hash := common.HexToHash("0xabc")
	sub := Resolved(hash)

	got, ok := sub.Hash()
	assert.True(t, ok)
	assert.Equal(t, hash, got)

	result, err := sub.Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hash, result)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ledger := mocks.NewMockLedger()
	s := mocks.NewMockSigner(payer, 8453, ledger)
	s.React = func(signer.TxRequest, int) mocks.Reaction { return mocks.Reaction{Hang: true} }

	pending := Submit(ctx, s, cancelRequest(), nil)
	_, ok = pending.Hash()
	assert.False(t, ok)
	assert.True(t, pending.Pending())
	assert.False(t, sub.Pending())

	cancel()
	<-pending.Done()
	assert.False(t, pending.Pending())
	_, err = pending.Result(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}
