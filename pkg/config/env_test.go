package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/payflow/pkg/logger"
)

func TestGetEnvChainID(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("CHAIN_ID", "")
		id, err := GetEnvChainID()
		require.NoError(t, err)
		assert.Equal(t, DefaultChainID, id)
	})

	t.Run("supported", func(t *testing.T) {
		t.Setenv("CHAIN_ID", "84532")
		id, err := GetEnvChainID()
		require.NoError(t, err)
		assert.Equal(t, 84532, id)
	})

	t.Run("unsupported", func(t *testing.T) {
		t.Setenv("CHAIN_ID", "12345")
		_, err := GetEnvChainID()
		require.Error(t, err)
	})

	t.Run("not a number", func(t *testing.T) {
		t.Setenv("CHAIN_ID", "base")
		_, err := GetEnvChainID()
		require.Error(t, err)
	})
}

func TestGetEnvDurations(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "")
	interval, err := GetEnvPollInterval()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, interval)

	t.Setenv("POLL_INTERVAL", "500ms")
	interval, err = GetEnvPollInterval()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, interval)

	t.Setenv("CONFIRMATION_GRACE", "15")
	grace, err := GetEnvConfirmationGrace()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, grace)

	t.Setenv("CONFIRMATION_GRACE", "soon")
	_, err = GetEnvConfirmationGrace()
	require.Error(t, err)

	t.Setenv("CONFIRMATION_GRACE", "-1")
	_, err = GetEnvConfirmationGrace()
	require.Error(t, err)
}

func TestGetEnvProtocolFeeBps(t *testing.T) {
	tests := []struct {
		value    string
		expected int64
		isErr    bool
	}{
		{value: "", expected: DefaultProtocolFeeBps},
		{value: "0", expected: 0},
		{value: "125", expected: 125},
		{value: "10001", isErr: true},
		{value: "-5", isErr: true},
		{value: "one", isErr: true},
	}

	for _, tt := range tests {
		t.Run("value="+tt.value, func(t *testing.T) {
			t.Setenv("PROTOCOL_FEE_BPS", tt.value)
			bps, err := GetEnvProtocolFeeBps()
			if tt.isErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, bps)
		})
	}
}

func TestGetEnvMaxGasPrice(t *testing.T) {
	t.Setenv("MAX_GAS_PRICE", "")
	price, err := GetEnvMaxGasPrice()
	require.NoError(t, err)
	assert.Equal(t, 0, price.Cmp(big.NewInt(50_000_000_000)))

	t.Setenv("MAX_GAS_PRICE", "abc")
	_, err = GetEnvMaxGasPrice()
	require.Error(t, err)
}

func TestGetEnvLogSettings(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	level, err := GetEnvLogLevel()
	require.NoError(t, err)
	assert.Equal(t, logger.DebugLevel, level)

	t.Setenv("LOG_LEVEL", "loud")
	_, err = GetEnvLogLevel()
	require.Error(t, err)

	t.Setenv("LOG_COLORING", "true")
	coloring, err := GetEnvLogColoring()
	require.NoError(t, err)
	assert.True(t, coloring)

	t.Setenv("LOG_COLORING", "yes")
	_, err = GetEnvLogColoring()
	require.Error(t, err)
}

func TestGetEnvFactoryAddress(t *testing.T) {
	t.Setenv("FACTORY_ADDRESS", "")
	addr, err := GetEnvFactoryAddress(&Network{Factory: "0x2222222222222222222222222222222222222222"})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), addr)

	t.Setenv("FACTORY_ADDRESS", "0x3333333333333333333333333333333333333333")
	addr, err = GetEnvFactoryAddress(&Network{Factory: "0x2222222222222222222222222222222222222222"})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x3333333333333333333333333333333333333333"), addr)

	t.Setenv("FACTORY_ADDRESS", "not-an-address")
	_, err = GetEnvFactoryAddress(nil)
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "networks.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
networks:
  - chain_id: 84532
    name: base-sepolia
    rpc_url: https://sepolia.base.org
    factory: "0x4444444444444444444444444444444444444444"
    tokens:
      eurc: "0x5555555555555555555555555555555555555555"
`), 0o600))

	t.Setenv("NETWORKS_FILE", manifest)
	t.Setenv("CHAIN_ID", "84532")
	t.Setenv("RPC_URL", "")
	t.Setenv("FACTORY_ADDRESS", "")
	t.Setenv("PRIVATE_KEY", "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	t.Setenv("POLL_INTERVAL", "1s")
	t.Setenv("CONFIRMATION_GRACE", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 84532, cfg.ChainID)
	assert.Equal(t, "https://sepolia.base.org", cfg.RPCURL)
	assert.Equal(t, common.HexToAddress("0x4444444444444444444444444444444444444444"), cfg.FactoryAddress)
	assert.Equal(t, common.HexToAddress("0x5555555555555555555555555555555555555555"), cfg.Tokens["EURC"])
	assert.Contains(t, cfg.Tokens, "USDC")
	assert.Equal(t, time.Second, cfg.Watcher.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Watcher.GracePeriod)
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Setenv("NETWORKS_FILE", "")
	t.Setenv("CHAIN_ID", "8453")
	t.Setenv("FACTORY_ADDRESS", "0x4444444444444444444444444444444444444444")

	t.Run("missing private key", func(t *testing.T) {
		t.Setenv("PRIVATE_KEY", "")
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PRIVATE_KEY")
	})

	t.Run("grace shorter than poll interval", func(t *testing.T) {
		t.Setenv("PRIVATE_KEY", "abc")
		t.Setenv("POLL_INTERVAL", "10s")
		t.Setenv("CONFIRMATION_GRACE", "5s")
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CONFIRMATION_GRACE")
	})
}
