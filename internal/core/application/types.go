package application

import (
	"time"

	"github.com/noteprotocol/note-wallet/internal/core/domain"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
)

type Config struct {
	Network      notelib.Network
	AccountIndex uint32
	FeeTier      notelib.FeeTier
	DustLimit    int64
	// CommitPollAttempts and CommitPollInterval bound the wait for a funded commit utxo.
	CommitPollAttempts int
	CommitPollInterval time.Duration
	OutpointLockExpiry time.Duration
	MaxLocktime        uint32
}

type WalletInfo struct {
	Coin     string          `json:"coin"`
	Network  string          `json:"network"`
	RootPath string          `json:"rootPath"`
	RootXpub string          `json:"rootXpub"`
	Account  *domain.Account `json:"currentAccount"`
}

type WalletBalance struct {
	MainAddress  domain.Balance `json:"mainAddress"`
	TokenAddress domain.Balance `json:"tokenAddress"`
}

type BroadcastResult struct {
	Txid    string `json:"txid"`
	Fee     int64  `json:"fee"`
	FeeRate int64  `json:"feeRate"`
	VSize   int64  `json:"vsize"`
}

type TokenTransferResult struct {
	BroadcastResult
	TransferData map[string]any `json:"transferData"`
}

type MintRequest struct {
	Tick string
	// Amount in token units, zero mints the limit.
	Amount float64
	// Bitwork overrides the one of the token, no bitwork means no search.
	Bitwork string
}

type MintResult struct {
	BroadcastResult
	Tick     string `json:"tick"`
	Amount   int64  `json:"amt"`
	Bitwork  string `json:"bitwork,omitempty"`
	Locktime uint32 `json:"locktime"`
	Attempts uint32 `json:"attempts"`
}

type DeployRequest struct {
	Tick    string
	Max     int64
	Lim     int64
	Dec     int
	Bitwork string
	Sch     string
	Start   *int64
	Desc    string
	Logo    string
	Web     string
}
