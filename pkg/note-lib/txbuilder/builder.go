package txbuilder

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/wire"
	"github.com/noteprotocol/note-wallet/pkg/errors"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/script"
)

// Params are the inputs shared by every builder.
type Params struct {
	Key           *btcec.PrivateKey
	Network       notelib.Network
	PayUtxos      []notelib.Utxo
	Targets       []notelib.SendTarget
	ChangeAddress string
	// Fee in sats, FeeRate in sats/kB is only echoed in the result.
	Fee       int64
	FeeRate   int64
	DustLimit int64
}

// NoteParams spend note utxos: the first one reveals the payload through the note leaf, the
// others go through the key leaf.
type NoteParams struct {
	Params
	NoteUtxos []notelib.Utxo
	Payload   notelib.NotePayload
}

// CommitNoteParams spend a commit note utxo through the leaf committing the payload.
type CommitNoteParams struct {
	Params
	NoteUtxo notelib.Utxo
	Payload  notelib.NotePayload
}

// FinalizedTx is a signed transaction ready for broadcast, with the utxos it consumes.
type FinalizedTx struct {
	Tx        *wire.MsgTx
	TxID      string
	Hex       string
	VSize     int64
	Fee       int64
	FeeRate   int64
	NoteUtxos []notelib.Utxo
	PayUtxos  []notelib.Utxo
}

// BuildFunc builds a transaction paying the given fee.
type BuildFunc func(fee int64) (*FinalizedTx, error)

// RealFee is the fee for vsize vbytes at feeRate sats/kB, rounded up by one sat.
func RealFee(vsize, feeRate int64) int64 {
	return vsize*feeRate/1000 + 1
}

// EstimateFee is the first pass of the fee protocol: it builds with the placeholder fee and
// returns the fee the final build must pay.
func EstimateFee(build BuildFunc, feeRate int64) (int64, error) {
	if feeRate <= 0 {
		return 0, fmt.Errorf("invalid fee rate %d", feeRate)
	}
	estimated, err := build(notelib.EstimateFee)
	if err != nil {
		return 0, err
	}
	return RealFee(estimated.VSize, feeRate), nil
}

// BuildWithFeeRate runs both passes of the fee protocol.
func BuildWithFeeRate(build BuildFunc, feeRate int64) (*FinalizedTx, error) {
	fee, err := EstimateFee(build, feeRate)
	if err != nil {
		return nil, err
	}
	return build(fee)
}

// BuildCoinTx spends pay utxos only, with locktime 0.
func BuildCoinTx(p Params) (*FinalizedTx, error) {
	return build(p, nil, 0)
}

func BuildNoteTx(p NoteParams) (*FinalizedTx, error) {
	if len(p.NoteUtxos) == 0 {
		return nil, errors.NO_UTXO_FOUND.New("no note utxo to carry the payload")
	}
	segments, err := p.Payload.Segments()
	if err != nil {
		return nil, err
	}
	witnessData := make([][]byte, 0, notelib.MaxDataSegments)
	for _, segment := range segments {
		witnessData = append(witnessData, segment)
	}

	noteInputs := make([]NoteInput, 0, len(p.NoteUtxos))
	for i, utxo := range p.NoteUtxos {
		key, err := signingKey(utxo, p.Key)
		if err != nil {
			return nil, err
		}
		tree, err := script.TreeForUtxo(
			utxo, key.PubKey().SerializeCompressed(), nil, p.Network,
		)
		if err != nil {
			return nil, invalidUtxo(utxo, err)
		}

		in := NoteInput{Utxo: utxo, Key: key, Tree: tree, Leaf: tree.KeyLeaf}
		if i == 0 {
			in.Leaf = tree.NoteLeaf
			in.WitnessData = witnessData
		}
		noteInputs = append(noteInputs, in)
	}

	return build(p.Params, noteInputs, p.Payload.Locktime)
}

func BuildCommitNoteTx(p CommitNoteParams) (*FinalizedTx, error) {
	key, err := signingKey(p.NoteUtxo, p.Key)
	if err != nil {
		return nil, err
	}
	tree, err := script.TreeForUtxo(
		p.NoteUtxo, key.PubKey().SerializeCompressed(), &p.Payload, p.Network,
	)
	if err != nil {
		return nil, invalidUtxo(p.NoteUtxo, err)
	}
	if tree.Content != script.ContentCommitNote {
		return nil, invalidUtxo(p.NoteUtxo, fmt.Errorf("not a commit note"))
	}

	noteInputs := []NoteInput{{Utxo: p.NoteUtxo, Key: key, Tree: tree, Leaf: tree.NoteLeaf}}
	return build(p.Params, noteInputs, p.Payload.Locktime)
}

func build(p Params, noteInputs []NoteInput, locktime uint32) (*FinalizedTx, error) {
	assembly, err := Assemble(AssembleRequest{
		Key:           p.Key,
		Network:       p.Network,
		NoteInputs:    noteInputs,
		PayUtxos:      p.PayUtxos,
		Targets:       p.Targets,
		ChangeAddress: p.ChangeAddress,
		Fee:           p.Fee,
		DustLimit:     p.DustLimit,
		Locktime:      locktime,
	})
	if err != nil {
		return nil, err
	}

	if err := Sign(assembly); err != nil {
		return nil, err
	}

	tx, err := Finalize(assembly)
	if err != nil {
		return nil, err
	}

	return newFinalizedTx(tx, assembly, p.FeeRate)
}

func newFinalizedTx(tx *wire.MsgTx, a *Assembly, feeRate int64) (*FinalizedTx, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	return &FinalizedTx{
		Tx:        tx,
		TxID:      tx.TxHash().String(),
		Hex:       hex.EncodeToString(buf.Bytes()),
		VSize:     mempool.GetTxVirtualSize(btcutil.NewTx(tx)),
		Fee:       a.Fee,
		FeeRate:   feeRate,
		NoteUtxos: a.NoteUtxos,
		PayUtxos:  a.PayUtxos,
	}, nil
}
