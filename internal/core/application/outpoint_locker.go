package application

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
)

// outpointLocker keeps the outpoints spent by broadcast txs out of the following
// ones until the indexer catches up.
type outpointLocker struct {
	lockExpiry      time.Duration
	lockedOutpoints map[wire.OutPoint]time.Time
	locker          sync.Mutex
}

func newOutpointLocker(lockFor time.Duration) *outpointLocker {
	return &outpointLocker{
		lockExpiry:      lockFor,
		lockedOutpoints: make(map[wire.OutPoint]time.Time),
	}
}

func (l *outpointLocker) lock(_ context.Context, utxos ...notelib.Utxo) error {
	if len(utxos) == 0 {
		return nil
	}

	outpoints := make([]wire.OutPoint, 0, len(utxos))
	for _, utxo := range utxos {
		outpoint, err := utxo.Outpoint()
		if err != nil {
			return err
		}
		outpoints = append(outpoints, *outpoint)
	}

	l.locker.Lock()
	defer l.locker.Unlock()

	// locking again extends the expiry
	lockedUntil := time.Now().Add(l.lockExpiry)
	for _, outpoint := range outpoints {
		l.lockedOutpoints[outpoint] = lockedUntil
	}
	return nil
}

func (l *outpointLocker) get(_ context.Context) map[wire.OutPoint]struct{} {
	l.locker.Lock()
	defer l.locker.Unlock()

	now := time.Now()
	lockedOutpoints := make(map[wire.OutPoint]struct{})
	for outpoint, lockedUntil := range l.lockedOutpoints {
		if now.After(lockedUntil) {
			delete(l.lockedOutpoints, outpoint)
			continue
		}
		lockedOutpoints[outpoint] = struct{}{}
	}
	return lockedOutpoints
}

// filter drops the locked utxos.
func (l *outpointLocker) filter(ctx context.Context, utxos []notelib.Utxo) []notelib.Utxo {
	locked := l.get(ctx)
	if len(locked) == 0 {
		return utxos
	}

	filtered := make([]notelib.Utxo, 0, len(utxos))
	for _, utxo := range utxos {
		outpoint, err := utxo.Outpoint()
		if err == nil {
			if _, isLocked := locked[*outpoint]; isLocked {
				continue
			}
		}
		filtered = append(filtered, utxo)
	}
	return filtered
}
