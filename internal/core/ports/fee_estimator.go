package ports

import (
	"context"

	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
)

type FeeEstimator interface {
	// GetFeeRates returns the fee schedule in sats/kB.
	GetFeeRates(ctx context.Context) (*notelib.FeeRates, error)
}
