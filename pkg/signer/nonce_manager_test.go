package signer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/payflow/pkg/logger"
)

type fakeNonceReader struct {
	nonce uint64
	err   error
	calls int
}

func (f *fakeNonceReader) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	f.calls++
	return f.nonce, f.err
}

func TestNonceManager_Next(t *testing.T) {
	reader := &fakeNonceReader{nonce: 7}
	nm := NewNonceManager(reader, common.Address{}, &logger.EmptyLogger{})
	ctx := context.Background()

	n, err := nm.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)

	n, err = nm.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), n)
	assert.Equal(t, 1, reader.calls, "nonce is synced once per interval")
}

func TestNonceManager_SyncError(t *testing.T) {
	reader := &fakeNonceReader{err: errors.New("connection refused")}
	nm := NewNonceManager(reader, common.Address{}, &logger.EmptyLogger{})

	_, err := nm.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNonceManager_Release(t *testing.T) {
	ctx := context.Background()

	t.Run("reuses the last unsent nonce", func(t *testing.T) {
		nm := NewNonceManager(&fakeNonceReader{nonce: 3}, common.Address{}, &logger.EmptyLogger{})
		n, err := nm.Next(ctx)
		require.NoError(t, err)

		nm.Release(n)

		again, err := nm.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, n, again)
	})

	t.Run("keeps allocation when a later nonce is in flight", func(t *testing.T) {
		reader := &fakeNonceReader{nonce: 3}
		nm := NewNonceManager(reader, common.Address{}, &logger.EmptyLogger{})
		first, _ := nm.Next(ctx)
		second, _ := nm.Next(ctx)
		nm.Track(common.HexToHash("0x02"), second)

		nm.Release(first)

		// the node now reports the gap nonce; the forced resync must not move backwards
		next, err := nm.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), next)
		assert.Equal(t, 2, reader.calls)
	})
}

func TestNonceManager_TrackAndSync(t *testing.T) {
	reader := &fakeNonceReader{nonce: 0}
	nm := NewNonceManager(reader, common.Address{}, &logger.EmptyLogger{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, err := nm.Next(ctx)
		require.NoError(t, err)
		nm.Track(common.BigToHash(new(big.Int).SetUint64(n+1)), n)
	}
	assert.Equal(t, 3, nm.Pending())

	assert.True(t, nm.MarkMined(common.BigToHash(big.NewInt(1))))
	assert.False(t, nm.MarkMined(common.HexToHash("0xdead")))
	assert.Equal(t, 2, nm.Pending())

	reader.nonce = 3
	require.NoError(t, nm.Sync(ctx))
	assert.Equal(t, 0, nm.Pending())
}
