package bitwork

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/noteprotocol/note-wallet/pkg/errors"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/txbuilder"
	log "github.com/sirupsen/logrus"
)

const defaultProgressInterval = 1000

type State int

const (
	StateBuilding State = iota
	StateChecking
	StateSuccess
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateChecking:
		return "checking"
	case StateSuccess:
		return "success"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("unknown (%d)", int(s))
	}
}

// Attempt builds the candidate transaction for locktime. prev is the candidate of the previous
// attempt, nil on the first one, so that its utxos and fee rate can be carried forward.
type Attempt func(locktime uint32, prev *txbuilder.FinalizedTx) (*txbuilder.FinalizedTx, error)

type Result struct {
	Tx       *txbuilder.FinalizedTx
	Locktime uint32
	Attempts uint32
}

// Miner searches the locktime that gives a txid starting with Bitwork.
type Miner struct {
	Bitwork string
	// MaxLocktime is exclusive, defaults to notelib.MaxLocktime.
	MaxLocktime      uint32
	ProgressInterval uint32

	state State
}

func NewMiner(bitwork string) (*Miner, error) {
	if err := Validate(bitwork); err != nil {
		return nil, err
	}
	return &Miner{
		Bitwork:          strings.ToLower(bitwork),
		MaxLocktime:      notelib.MaxLocktime,
		ProgressInterval: defaultProgressInterval,
	}, nil
}

func (m *Miner) State() State {
	return m.state
}

// Mine runs attempts with increasing locktimes until one matches or the bound is reached.
// A failed attempt aborts the search.
func (m *Miner) Mine(ctx context.Context, attempt Attempt) (*Result, error) {
	maxLocktime := m.MaxLocktime
	if maxLocktime == 0 {
		maxLocktime = notelib.MaxLocktime
	}
	interval := m.ProgressInterval
	if interval == 0 {
		interval = defaultProgressInterval
	}

	var (
		prev     *txbuilder.FinalizedTx
		locktime uint32
	)
	m.state = StateBuilding
	for {
		switch m.state {
		case StateBuilding:
			if locktime >= maxLocktime {
				m.state = StateExhausted
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			tx, err := attempt(locktime, prev)
			if err != nil {
				return nil, fmt.Errorf("failed to build candidate for locktime %d: %w", locktime, err)
			}
			prev = tx
			m.state = StateChecking

		case StateChecking:
			if Matches(prev.TxID, m.Bitwork) {
				m.state = StateSuccess
				continue
			}
			locktime++
			if locktime%interval == 0 {
				log.WithFields(log.Fields{
					"bitwork":  m.Bitwork,
					"attempts": locktime,
				}).Debug("searching bitwork")
			}
			m.state = StateBuilding

		case StateSuccess:
			log.WithFields(log.Fields{
				"bitwork":  m.Bitwork,
				"txid":     prev.TxID,
				"locktime": locktime,
			}).Info("bitwork found")
			return &Result{Tx: prev, Locktime: locktime, Attempts: locktime + 1}, nil

		case StateExhausted:
			return nil, errors.MINING_EXHAUSTED.New(
				"no txid starting with %s below locktime %d", m.Bitwork, maxLocktime,
			).WithMetadata(errors.MiningExhaustedMetadata{
				Bitwork: m.Bitwork, MaxLocktime: maxLocktime,
			})
		}
	}
}

// Matches tells whether the hex txid starts with bitwork.
func Matches(txid, bitwork string) bool {
	return strings.HasPrefix(strings.ToLower(txid), strings.ToLower(bitwork))
}

// Validate checks bitwork is a non empty hex prefix of a txid.
func Validate(bitwork string) error {
	if bitwork == "" {
		return fmt.Errorf("empty bitwork")
	}
	if len(bitwork) > 64 {
		return fmt.Errorf("bitwork longer than a txid")
	}
	// pad odd lengths, only the digits matter
	if _, err := hex.DecodeString(bitwork + strings.Repeat("0", len(bitwork)%2)); err != nil {
		return fmt.Errorf("invalid bitwork %q: not hex", bitwork)
	}
	return nil
}
