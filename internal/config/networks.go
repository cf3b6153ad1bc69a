package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/property_registry/internal/chain"
)

type networksFile struct {
	Networks map[string]chain.Network `yaml:"networks"`
}

// LoadNetworks reads a network table and merges it over the built-in one.
func LoadNetworks(path string) (map[string]chain.Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read networks config: %w", err)
	}

	var doc networksFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse networks config: %w", err)
	}

	table := DefaultNetworks()
	for name, n := range doc.Networks {
		if n.RPCURL == "" {
			return nil, fmt.Errorf("network %s: rpc_url is required", name)
		}
		if n.Name == "" {
			n.Name = name
		}
		table[name] = n
	}
	return table, nil
}

// LoadNetworksOrDefault loads the table at path, or the built-in table when
// the file is absent or invalid.
func LoadNetworksOrDefault(path string) map[string]chain.Network {
	if path == "" {
		return DefaultNetworks()
	}
	table, err := LoadNetworks(path)
	if err != nil {
		return DefaultNetworks()
	}
	return table
}

// DefaultNetworks returns a copy of the built-in network table.
func DefaultNetworks() map[string]chain.Network {
	table := make(map[string]chain.Network, len(chain.DefaultNetworks))
	for name, n := range chain.DefaultNetworks {
		table[name] = n
	}
	return table
}
