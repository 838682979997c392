package types

import (
	"fmt"
	"strings"
)

// Network represents the Solana ledger environment a client targets.
// The string value is the identifier the facilitator expects on the wire.
type Network string

const (
	// NetworkMainnet is Solana mainnet-beta.
	NetworkMainnet Network = "solana"
	// NetworkDevnet is Solana devnet (testnet).
	NetworkDevnet Network = "solana-devnet"
)

// SupportedNetworks lists every network the facilitator brokers payments on.
var SupportedNetworks = []Network{NetworkMainnet, NetworkDevnet}

// ParseNetwork maps a wire identifier (or a common alias) to a Network.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "solana", "mainnet", "solana-mainnet", "mainnet-beta":
		return NetworkMainnet, nil
	case "solana-devnet", "devnet":
		return NetworkDevnet, nil
	default:
		return "", &QweryError{
			Code:    ErrConfigError,
			Message: fmt.Sprintf("unsupported network: %q", s),
		}
	}
}

// IsValid reports whether n is one of the supported networks.
func (n Network) IsValid() bool {
	return n == NetworkMainnet || n == NetworkDevnet
}

func (n Network) IsTestnet() bool {
	return n == NetworkDevnet
}

func (n Network) String() string {
	return string(n)
}
