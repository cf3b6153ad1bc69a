package chain

import (
	"fmt"
	"strings"
)

// Network describes an EVM network the registry can live on.
type Network struct {
	Name    string `json:"name" yaml:"name"`
	ChainID uint64 `json:"chain_id" yaml:"chain_id"`
	RPCURL  string `json:"rpc_url" yaml:"rpc_url"`
	// Public networks hold real balances; deployment checks the signer's funds.
	Public bool `json:"public" yaml:"public"`
}

// Well-known chain ids.
const (
	SepoliaChainID uint64 = 11155111
	HardhatChainID uint64 = 31337
)

// DefaultNetworks is the built-in network table.
var DefaultNetworks = map[string]Network{
	"sepolia": {
		Name:    "sepolia",
		ChainID: SepoliaChainID,
		RPCURL:  "https://1rpc.io/sepolia",
		Public:  true,
	},
	"hardhat": {
		Name:    "hardhat",
		ChainID: HardhatChainID,
		RPCURL:  "http://127.0.0.1:8545",
	},
}

// AlchemySepoliaURL is the Alchemy endpoint template for Sepolia.
const AlchemySepoliaURL = "https://eth-sepolia.g.alchemy.com/v2/%s"

// Selection holds the inputs of the network selection policy.
type Selection struct {
	// RPCURL is an explicit endpoint; it wins over everything else.
	RPCURL string
	// ChainID pins the chain for RPCURL. Zero means "ask the endpoint".
	ChainID uint64
	// Network names an entry of the network table.
	Network string
	// AlchemyID selects Sepolia through Alchemy when no endpoint is given.
	AlchemyID string
}

// SelectNetwork resolves the network to talk to:
//
//  1. an explicit RPC URL, with the configured chain id (0 = discover);
//  2. a named network from the table;
//  3. an Alchemy API key selects the public Sepolia test network;
//  4. otherwise the local hardhat development network.
func SelectNetwork(sel Selection, table map[string]Network) (Network, error) {
	if table == nil {
		table = DefaultNetworks
	}

	if rpcURL := strings.TrimSpace(sel.RPCURL); rpcURL != "" {
		n := Network{Name: "custom", ChainID: sel.ChainID, RPCURL: rpcURL}
		if named, ok := table[strings.TrimSpace(sel.Network)]; ok {
			n.Name = named.Name
			n.Public = named.Public
			if n.ChainID == 0 {
				n.ChainID = named.ChainID
			}
		}
		return n, nil
	}

	if name := strings.TrimSpace(sel.Network); name != "" {
		n, ok := table[name]
		if !ok {
			return Network{}, ConfigError("unknown network %q", name)
		}
		if n.RPCURL == "" {
			return Network{}, ConfigError("network %q has no rpc_url", name)
		}
		return n, nil
	}

	if key := strings.TrimSpace(sel.AlchemyID); key != "" {
		n, ok := table["sepolia"]
		if !ok {
			n = DefaultNetworks["sepolia"]
		}
		n.RPCURL = fmt.Sprintf(AlchemySepoliaURL, key)
		return n, nil
	}

	n, ok := table["hardhat"]
	if !ok {
		n = DefaultNetworks["hardhat"]
	}
	return n, nil
}

// Redacted returns the RPC URL with any path secret (API key) masked, for logs.
func (n Network) Redacted() string {
	u := n.RPCURL
	if i := strings.Index(u, "/v2/"); i >= 0 && len(u) > i+4 {
		return u[:i+4] + "***"
	}
	return u
}
