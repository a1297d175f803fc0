package script

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/keys"
)

// AddressInfo bundles an address with its output script and indexer script hash.
type AddressInfo struct {
	Address    string              `json:"address"`
	Script     []byte              `json:"-"`
	ScriptHash string              `json:"scriptHash"`
	Type       notelib.AddressType `json:"type"`
}

func (a AddressInfo) ScriptHex() string {
	return hex.EncodeToString(a.Script)
}

// ScriptHash is the electrum style script hash: sha256 of the script, byte reversed, hex encoded.
func ScriptHash(script []byte) string {
	hash := sha256.Sum256(script)
	for i, j := 0, len(hash)-1; i < j; i, j = i+1, j-1 {
		hash[i], hash[j] = hash[j], hash[i]
	}
	return hex.EncodeToString(hash[:])
}

// P2WPKHAddress derives the native segwit v0 address of pubkey.
func P2WPKHAddress(pubkey []byte, network notelib.Network) (*AddressInfo, error) {
	key, err := btcec.ParsePubKey(pubkey)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}

	address, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.SerializeCompressed()), network.Params(),
	)
	if err != nil {
		return nil, err
	}
	return newAddressInfo(address, notelib.AddressP2WPKH)
}

// P2TRAddress derives the key path only (BIP86) taproot address of pubkey.
func P2TRAddress(pubkey []byte, network notelib.Network) (*AddressInfo, error) {
	internalKey, err := keys.XOnlyKey(pubkey)
	if err != nil {
		return nil, err
	}

	outputKey := txscript.ComputeTaprootKeyNoScript(internalKey)
	address, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), network.Params())
	if err != nil {
		return nil, err
	}
	return newAddressInfo(address, notelib.AddressP2TR)
}

// DecodeAddress maps any supported address of the network to its script and script hash.
func DecodeAddress(address string, network notelib.Network) (*AddressInfo, error) {
	decoded, err := btcutil.DecodeAddress(address, network.Params())
	if err != nil {
		return nil, fmt.Errorf("invalid address %s: %w", address, err)
	}
	if !decoded.IsForNet(network.Params()) {
		return nil, fmt.Errorf("address %s is not valid on %s", address, network)
	}

	var addrType notelib.AddressType
	switch decoded.(type) {
	case *btcutil.AddressWitnessPubKeyHash:
		addrType = notelib.AddressP2WPKH
	case *btcutil.AddressWitnessScriptHash:
		addrType = notelib.AddressP2WSH
	case *btcutil.AddressTaproot:
		addrType = notelib.AddressP2TR
	default:
		return nil, fmt.Errorf("unsupported address type %T", decoded)
	}
	return newAddressInfo(decoded, addrType)
}

// AddressScript returns the output script paying to address.
func AddressScript(address string, network notelib.Network) ([]byte, error) {
	info, err := DecodeAddress(address, network)
	if err != nil {
		return nil, err
	}
	return info.Script, nil
}

func newAddressInfo(address btcutil.Address, addrType notelib.AddressType) (*AddressInfo, error) {
	pkScript, err := txscript.PayToAddrScript(address)
	if err != nil {
		return nil, fmt.Errorf("failed to build output script: %w", err)
	}
	return &AddressInfo{
		Address:    address.EncodeAddress(),
		Script:     pkScript,
		ScriptHash: ScriptHash(pkScript),
		Type:       addrType,
	}, nil
}
