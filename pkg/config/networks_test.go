package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "networks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadNetworks(t *testing.T) {
	path := writeManifest(t, `
networks:
  - chain_id: 8453
    name: base
    factory: "0x1111111111111111111111111111111111111111"
  - chain_id: 1
    name: ethereum
`)

	manifest, err := LoadNetworks(path)
	require.NoError(t, err)
	require.Len(t, manifest.Networks, 2)

	n, ok := manifest.Find(8453)
	require.True(t, ok)
	assert.Equal(t, "base", n.Name)

	_, ok = manifest.Find(10)
	assert.False(t, ok)
}

func TestLoadNetworks_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadNetworks(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("duplicate chain", func(t *testing.T) {
		path := writeManifest(t, `
networks:
  - chain_id: 1
  - chain_id: 1
`)
		_, err := LoadNetworks(path)
		require.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeManifest(t, "networks: [")
		_, err := LoadNetworks(path)
		require.Error(t, err)
	})
}
