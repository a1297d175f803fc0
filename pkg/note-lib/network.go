package notelib

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network selects the chain parameters every derivation and signing call works with.
type Network int

const (
	NetworkMain Network = iota
	NetworkTest
)

var networkNames = map[Network]string{
	NetworkMain: "livenet",
	NetworkTest: "testnet",
}

func (n Network) String() string {
	if name, ok := networkNames[n]; ok {
		return name
	}
	return fmt.Sprintf("unknown network (%d)", int(n))
}

// Params returns the btcd chain parameters for the network.
// Testnet3 and testnet4 share the address encoding, so the testnet3 params serve both.
func (n Network) Params() *chaincfg.Params {
	if n == NetworkTest {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

// CoinType is the BIP44 coin type of the network.
func (n Network) CoinType() uint32 {
	if n == NetworkTest {
		return 1
	}
	return 0
}

func ParseNetwork(name string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "livenet", "mainnet", "main", "bitcoin":
		return NetworkMain, nil
	case "testnet", "testnet4", "testnet3", "test":
		return NetworkTest, nil
	default:
		return NetworkMain, fmt.Errorf("unknown network %q", name)
	}
}
