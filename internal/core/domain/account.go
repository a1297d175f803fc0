package domain

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/keys"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/script"
)

// Account is a derived key with its main (p2wpkh) and token (note tree) addresses.
type Account struct {
	Index        uint32              `json:"index"`
	Path         string              `json:"path"`
	PublicKey    string              `json:"publicKey"`
	XOnlyPubKey  string              `json:"xOnlyPubkey"`
	MainAddress  *script.AddressInfo `json:"mainAddress"`
	TokenAddress *script.AddressInfo `json:"tokenAddress"`

	PrivateKey *btcec.PrivateKey `json:"-"`
	network    notelib.Network
}

func NewAccount(
	index uint32, path string, key *btcec.PrivateKey, network notelib.Network,
) (*Account, error) {
	if key == nil {
		return nil, fmt.Errorf("missing account key")
	}
	pubkey := key.PubKey().SerializeCompressed()

	mainAddress, err := script.P2WPKHAddress(pubkey, network)
	if err != nil {
		return nil, fmt.Errorf("failed to derive main address: %w", err)
	}
	noteTree, err := script.NoteTree(pubkey, network)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token address: %w", err)
	}

	return &Account{
		Index:        index,
		Path:         path,
		PublicKey:    hex.EncodeToString(pubkey),
		XOnlyPubKey:  hex.EncodeToString(schnorr.SerializePubKey(key.PubKey())),
		MainAddress:  mainAddress,
		TokenAddress: noteTree.AddressInfo(),
		PrivateKey:   key,
		network:      network,
	}, nil
}

func (a *Account) Network() notelib.Network {
	return a.network
}

func (a *Account) WIF() (string, error) {
	return keys.EncodeWIF(a.PrivateKey, a.network)
}

// TweakedWIF is the key signing key path spends of the account's p2tr outputs.
func (a *Account) TweakedWIF() (string, error) {
	wif, err := a.WIF()
	if err != nil {
		return "", err
	}
	tweaked, _, err := keys.TweakWIF(wif, a.PublicKey, a.network)
	return tweaked, err
}

// CommitAddress is the commit note address of payload for this account.
func (a *Account) CommitAddress(payload notelib.NotePayload) (*script.AddressInfo, error) {
	tree, err := script.CommitNoteTree(a.PrivateKey.PubKey().SerializeCompressed(), payload, a.network)
	if err != nil {
		return nil, err
	}
	return tree.AddressInfo(), nil
}

// Owns maps a script hash of the account to the type of its outputs.
func (a *Account) Owns(scriptHash string) (notelib.AddressType, bool) {
	switch scriptHash {
	case a.MainAddress.ScriptHash:
		return a.MainAddress.Type, true
	case a.TokenAddress.ScriptHash:
		return a.TokenAddress.Type, true
	default:
		return "", false
	}
}
