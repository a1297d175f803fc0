package hd

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/noteprotocol/note-wallet/internal/core/domain"
	"github.com/noteprotocol/note-wallet/internal/core/ports"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	"github.com/tyler-smith/go-bip39"
)

const (
	purpose         = 44
	mnemonicEntropy = 128
)

type keyProvider struct {
	mnemonic string
	network  notelib.Network
	// m/44'/c'/0'
	rootAccount *hdkeychain.ExtendedKey
}

// New derives the BIP44 root account of mnemonic. An empty mnemonic generates a new one.
func New(mnemonic, passphrase string, network notelib.Network) (ports.KeyProvider, error) {
	mnemonic = strings.Join(strings.Fields(strings.Trim(mnemonic, `"`)), " ")
	if mnemonic == "" {
		generated, err := NewMnemonic()
		if err != nil {
			return nil, err
		}
		mnemonic = generated
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	masterKey, err := hdkeychain.NewMaster(seed, network.Params())
	if err != nil {
		return nil, err
	}

	rootAccount := masterKey
	for _, index := range []uint32{purpose, network.CoinType(), 0} {
		rootAccount, err = rootAccount.Derive(hdkeychain.HardenedKeyStart + index)
		if err != nil {
			return nil, fmt.Errorf("failed to derive root account: %w", err)
		}
	}

	return &keyProvider{mnemonic, network, rootAccount}, nil
}

func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(mnemonicEntropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

func (k *keyProvider) Mnemonic() string {
	return k.mnemonic
}

func (k *keyProvider) RootPath() string {
	return fmt.Sprintf("m/%d'/%d'/0'", purpose, k.network.CoinType())
}

func (k *keyProvider) RootXpub() (string, error) {
	neutered, err := k.rootAccount.Neuter()
	if err != nil {
		return "", err
	}
	return neutered.String(), nil
}

// DeriveAccount derives the receive key m/44'/c'/0'/0/index.
func (k *keyProvider) DeriveAccount(index uint32) (*domain.Account, error) {
	if index >= hdkeychain.HardenedKeyStart {
		return nil, fmt.Errorf("account index %d out of range", index)
	}

	key, err := k.rootAccount.Derive(0)
	if err != nil {
		return nil, err
	}
	key, err = key.Derive(index)
	if err != nil {
		return nil, err
	}
	privateKey, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/0/%d", k.RootPath(), index)
	return domain.NewAccount(index, path, privateKey, k.network)
}
