package ports

import (
	"context"

	"github.com/noteprotocol/note-wallet/internal/core/domain"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
)

// Indexer serves utxos, token state and broadcast for the wallet scripts.
type Indexer interface {
	Health(ctx context.Context) error
	GetBalance(ctx context.Context, scriptHash string) (*domain.Balance, error)
	// GetUtxos returns the utxos of the script hashes, only those of at least minSatoshis when
	// it is positive.
	GetUtxos(ctx context.Context, scriptHashes []string, minSatoshis int64) ([]notelib.Utxo, error)
	// GetTokenUtxos returns the note utxos carrying tick, enough to cover amount when positive.
	GetTokenUtxos(
		ctx context.Context, scriptHashes []string, tick string, amount int64,
	) ([]notelib.TokenUtxo, error)
	Broadcast(ctx context.Context, rawHex string) (string, error)
	GetBestHeader(ctx context.Context) (*domain.BlockHeader, error)
	GetTokenInfo(ctx context.Context, tick string) (*domain.TokenInfo, error)
	GetTokenList(ctx context.Context, scriptHash string) ([]domain.TokenBalance, error)
	GetAllTokens(ctx context.Context) ([]domain.TokenInfo, error)
}
