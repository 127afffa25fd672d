// Package chains holds the catalog of EVM chains the registry accepts
// deployments on, keyed by a short chain key.
package chains

import (
	"fmt"
	"sort"
)

// Chain describes a supported EVM-compatible chain.
type Chain struct {
	Key         string // "bsc-mainnet"
	Name        string // "BNB Smart Chain Mainnet"
	ChainID     uint64
	RPCURL      string // default public RPC endpoint
	ExplorerURL string // block explorer base, no trailing slash
	Testnet     bool
}

var supported = map[string]Chain{
	"bsc-mainnet": {
		Key:         "bsc-mainnet",
		Name:        "BNB Smart Chain Mainnet",
		ChainID:     56,
		RPCURL:      "https://bsc-dataseed1.binance.org",
		ExplorerURL: "https://bscscan.com",
	},
	"bsc-testnet": {
		Key:         "bsc-testnet",
		Name:        "BNB Smart Chain Testnet",
		ChainID:     97,
		RPCURL:      "https://data-seed-prebsc-1-s1.binance.org:8545",
		ExplorerURL: "https://testnet.bscscan.com",
		Testnet:     true,
	},
	"opbnb-mainnet": {
		Key:         "opbnb-mainnet",
		Name:        "opBNB Mainnet",
		ChainID:     204,
		RPCURL:      "https://opbnb-mainnet-rpc.bnbchain.org",
		ExplorerURL: "https://opbnbscan.com",
	},
	"opbnb-testnet": {
		Key:         "opbnb-testnet",
		Name:        "opBNB Testnet",
		ChainID:     5611,
		RPCURL:      "https://opbnb-testnet-rpc.bnbchain.org",
		ExplorerURL: "https://testnet.opbnbscan.com",
		Testnet:     true,
	},
}

// Get returns the chain for the given key.
func Get(key string) (Chain, error) {
	c, ok := supported[key]
	if !ok {
		return Chain{}, fmt.Errorf("unsupported chain: %s", key)
	}
	return c, nil
}

// IsSupported reports whether key names a supported chain.
func IsSupported(key string) bool {
	_, ok := supported[key]
	return ok
}

// Keys returns all supported chain keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(supported))
	for k := range supported {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExplorerAddressURL returns the explorer page for an address on the chain.
func ExplorerAddressURL(key, address string) (string, error) {
	c, err := Get(key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/address/%s", c.ExplorerURL, address), nil
}

// Registry resolves chains with per-chain RPC URL overrides applied on top
// of the built-in catalog. Overrides come from configuration.
type Registry struct {
	rpcOverrides map[string]string
}

// NewRegistry creates a chain registry. rpcOverrides maps chain key to an
// RPC URL that replaces the catalog default; unknown keys are ignored.
func NewRegistry(rpcOverrides map[string]string) *Registry {
	return &Registry{rpcOverrides: rpcOverrides}
}

// Get returns the chain for key with any RPC override applied.
func (r *Registry) Get(key string) (Chain, error) {
	c, err := Get(key)
	if err != nil {
		return Chain{}, err
	}
	if url, ok := r.rpcOverrides[key]; ok && url != "" {
		c.RPCURL = url
	}
	return c, nil
}
