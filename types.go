package x402

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// X402Version is the only protocol version this module speaks.
const X402Version = 1

// SchemeExact is the single supported payment scheme: a native-token transfer of an exact amount.
const SchemeExact = "exact"

// NamespaceEVM is the CAIP-2 namespace of every supported network.
const NamespaceEVM = "eip155"

// HTTP headers used by the payment handshake.
const (
	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// Network represents a blockchain network identifier.
// Both v1 names ("base-sepolia") and CAIP-2 identifiers ("eip155:84532") are accepted.
type Network string

// Parse splits a CAIP-2 network into namespace and reference components
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(n), ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// Match reports whether n and pattern name the same network. A "<namespace>:*" on either
// side matches every network of that namespace; v1 names only match themselves.
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}
	if ns, ok := strings.CutSuffix(string(pattern), ":*"); ok {
		return strings.HasPrefix(string(n), ns+":")
	}
	if ns, ok := strings.CutSuffix(string(n), ":*"); ok {
		return strings.HasPrefix(string(pattern), ns+":")
	}
	return false
}

// CAIP2ChainID returns the chain id carried by an "eip155:<id>" network.
func (n Network) CAIP2ChainID() (int64, bool) {
	namespace, reference, err := n.Parse()
	if err != nil || namespace != NamespaceEVM {
		return 0, false
	}
	id, err := strconv.ParseInt(reference, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// NetworkConfig describes one EVM network the process can price and settle on.
type NetworkConfig struct {
	Name    Network `json:"name"`
	ChainID int64   `json:"chainId"`
	RPCURL  string  `json:"rpcUrl,omitempty"`
	Testnet bool    `json:"testnet,omitempty"`
}

// CAIP2 returns the CAIP-2 form of the network.
func (c NetworkConfig) CAIP2() Network {
	return Network(fmt.Sprintf("%s:%d", NamespaceEVM, c.ChainID))
}

// ChainIDBig returns the chain id as a big integer, the form go-ethereum signers expect.
func (c NetworkConfig) ChainIDBig() *big.Int {
	return big.NewInt(c.ChainID)
}

// DefaultNetworks returns the built-in network table keyed by v1 network name.
func DefaultNetworks() map[Network]NetworkConfig {
	return map[Network]NetworkConfig{
		"ethereum":     {Name: "ethereum", ChainID: 1},
		"sepolia":      {Name: "sepolia", ChainID: 11155111, Testnet: true},
		"base":         {Name: "base", ChainID: 8453},
		"base-sepolia": {Name: "base-sepolia", ChainID: 84532, Testnet: true},
		"polygon":      {Name: "polygon", ChainID: 137},
		"arbitrum":     {Name: "arbitrum", ChainID: 42161},
		"optimism":     {Name: "optimism", ChainID: 10},
		"bsc":          {Name: "bsc", ChainID: 56},
		"avalanche":    {Name: "avalanche", ChainID: 43114},
	}
}
