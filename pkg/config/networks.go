package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NetworkManifest lists per-chain deployments of the payment factory
type NetworkManifest struct {
	Networks []Network `yaml:"networks"`
}

// Network describes one chain deployment
type Network struct {
	ChainID int               `yaml:"chain_id"`
	Name    string            `yaml:"name"`
	RPCURL  string            `yaml:"rpc_url"`
	Factory string            `yaml:"factory"`
	Tokens  map[string]string `yaml:"tokens"`
}

// LoadNetworks reads a YAML network manifest from disk
func LoadNetworks(path string) (*NetworkManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network manifest %s: %w", path, err)
	}

	var manifest NetworkManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse network manifest %s: %w", path, err)
	}

	seen := make(map[int]bool, len(manifest.Networks))
	for _, n := range manifest.Networks {
		if n.ChainID <= 0 {
			return nil, fmt.Errorf("network %q has an invalid chain_id", n.Name)
		}
		if seen[n.ChainID] {
			return nil, fmt.Errorf("chain_id %d is declared more than once", n.ChainID)
		}
		seen[n.ChainID] = true
	}
	return &manifest, nil
}

// Find returns the network entry for a chain
func (m *NetworkManifest) Find(chainID int) (*Network, bool) {
	for i := range m.Networks {
		if m.Networks[i].ChainID == chainID {
			return &m.Networks[i], true
		}
	}
	return nil, false
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
