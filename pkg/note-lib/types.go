package notelib

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// NoteEnvelopeID is pushed by every note leaf so indexers can recognize the protocol.
	NoteEnvelopeID = "NOTE"

	// MaxDataSegments is the number of payload slots of a note.
	MaxDataSegments = 5
	// MaxStandardStackItemSize is the chunk size used by default.
	MaxStandardStackItemSize = 80
	// MaxScriptElementSize is the chunk size allowed when payloads may use script-sized pushes.
	MaxScriptElementSize = 520
	MaxStackFullSize     = MaxDataSegments * MaxStandardStackItemSize
	MaxScriptFullSize    = MaxDataSegments * MaxScriptElementSize

	// DustLimit is the default minimum output value.
	DustLimit int64 = 546
	// MaxSequence signals no relative timelock.
	MaxSequence uint32 = wire.MaxTxInSequenceNum
	// MaxLocktime bounds the bitwork search.
	MaxLocktime uint32 = 1_000_000
	// EstimateFee is the placeholder fee of the first pass of the two-pass fee protocol.
	EstimateFee int64 = 1000
	// TxVersion is the version of every transaction built.
	TxVersion int32 = 2
)

// AddressType names the output kinds the wallet can spend. Values match the indexer's wire strings.
type AddressType string

const (
	AddressP2WPKH         AddressType = "P2WPKH"
	AddressP2WSH          AddressType = "P2WSH"
	AddressP2TR           AddressType = "P2TR"
	AddressP2TRNote       AddressType = "P2TR-NOTE"
	AddressP2TRCommitNote AddressType = "P2TR-COMMIT-NOTE"
)

func (t AddressType) IsTaproot() bool {
	return t == AddressP2TR || t == AddressP2TRNote || t == AddressP2TRCommitNote
}

// Utxo describes a spendable output as returned by the indexer.
// PrivateKeyWIF, when set, overrides the account key for this input.
type Utxo struct {
	TxID          string      `json:"txId"`
	OutputIndex   uint32      `json:"outputIndex"`
	Satoshis      int64       `json:"satoshis"`
	Script        string      `json:"script"`
	ScriptHash    string      `json:"scriptHash"`
	Type          AddressType `json:"type"`
	PrivateKeyWIF string      `json:"privateKeyWif,omitempty"`
	WitnessScript string      `json:"witnessScript,omitempty"`
	Sequence      *uint32     `json:"sequence,omitempty"`
}

func (u Utxo) Outpoint() (*wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(u.TxID)
	if err != nil {
		return nil, fmt.Errorf("invalid txid %s: %w", u.TxID, err)
	}
	return wire.NewOutPoint(hash, u.OutputIndex), nil
}

func (u Utxo) PkScript() ([]byte, error) {
	script, err := hex.DecodeString(u.Script)
	if err != nil {
		return nil, fmt.Errorf("invalid script for utxo %s:%d: %w", u.TxID, u.OutputIndex, err)
	}
	return script, nil
}

func (u Utxo) InputSequence() uint32 {
	if u.Sequence != nil {
		return *u.Sequence
	}
	return MaxSequence
}

func (u Utxo) String() string {
	return fmt.Sprintf("%s:%d", u.TxID, u.OutputIndex)
}

func SumUtxos(utxos []Utxo) int64 {
	var total int64
	for _, u := range utxos {
		total += u.Satoshis
	}
	return total
}

// TokenUtxo is a note output carrying an N20 balance.
type TokenUtxo struct {
	Utxo
	Tick   string `json:"tick"`
	Amount int64  `json:"amount"`
}

type SendTarget struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// NotePayload holds the hex encoded data slots of a note and the locktime of the note tx.
type NotePayload struct {
	Data     [MaxDataSegments]string `json:"data"`
	Locktime uint32                  `json:"locktime"`
}

// Segments returns the decoded slots, empty ones included.
func (p NotePayload) Segments() ([MaxDataSegments][]byte, error) {
	var segments [MaxDataSegments][]byte
	for i, data := range p.Data {
		buf, err := hex.DecodeString(data)
		if err != nil {
			return segments, fmt.Errorf("invalid hex in data%d: %w", i, err)
		}
		segments[i] = buf
	}
	return segments, nil
}

// FeeRates is the three-tier fee schedule in satoshis per kilobyte.
type FeeRates struct {
	Slow    int64 `json:"slowFee"`
	Average int64 `json:"avgFee"`
	Fast    int64 `json:"fastFee"`
}

type FeeTier string

const (
	FeeTierSlow    FeeTier = "slow"
	FeeTierAverage FeeTier = "avg"
	FeeTierFast    FeeTier = "fast"
)

func (r FeeRates) Rate(tier FeeTier) int64 {
	switch tier {
	case FeeTierSlow:
		return r.Slow
	case FeeTierFast:
		return r.Fast
	default:
		return r.Average
	}
}
