package ports

import "github.com/noteprotocol/note-wallet/internal/core/domain"

type KeyProvider interface {
	Mnemonic() string
	// RootPath is the BIP44 account path accounts are derived from, ie. m/44'/0'/0'.
	RootPath() string
	RootXpub() (string, error)
	DeriveAccount(index uint32) (*domain.Account, error)
}
