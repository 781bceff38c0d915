package chainclient

import (
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	dai  = common.HexToAddress("0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb")
)

func TestDecimalsCache(t *testing.T) {
	t.Run("NewDecimalsCache", func(t *testing.T) {
		ttl := 60 * time.Second
		cache := NewDecimalsCache(ttl)

		require.NotNil(t, cache)
		assert.Equal(t, ttl, cache.cacheTTL)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("Set and Get", func(t *testing.T) {
		cache := NewDecimalsCache(1 * time.Second)

		cache.Set(usdc, 6)

		decimals, found := cache.Get(usdc)
		assert.True(t, found)
		assert.Equal(t, uint8(6), decimals)

		_, found = cache.Get(dai)
		assert.False(t, found)
	})

	t.Run("TTL expiration", func(t *testing.T) {
		cache := NewDecimalsCache(10 * time.Millisecond)

		cache.Set(usdc, 6)
		_, found := cache.Get(usdc)
		assert.True(t, found)

		// Wait for TTL to expire
		time.Sleep(20 * time.Millisecond)

		_, found = cache.Get(usdc)
		assert.False(t, found)
	})

	t.Run("Clear", func(t *testing.T) {
		cache := NewDecimalsCache(1 * time.Second)
		cache.Set(usdc, 6)
		cache.Set(dai, 18)
		assert.Equal(t, 2, cache.Len())

		cache.Clear()

		_, found := cache.Get(usdc)
		assert.False(t, found)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("Concurrent access", func(t *testing.T) {
		cache := NewDecimalsCache(1 * time.Second)
		done := make(chan bool, 5)

		for i := 0; i < 5; i++ {
			go func(id int) {
				token := common.HexToAddress(fmt.Sprintf("0x%040x", id+1))
				cache.Set(token, uint8(id))
				time.Sleep(1 * time.Millisecond)
				_, _ = cache.Get(token)
				done <- true
			}(i)
		}

		for i := 0; i < 5; i++ {
			<-done
		}

		for i := 0; i < 5; i++ {
			decimals, found := cache.Get(common.HexToAddress(fmt.Sprintf("0x%040x", i+1)))
			assert.True(t, found)
			assert.Equal(t, uint8(i), decimals)
		}
	})
}
