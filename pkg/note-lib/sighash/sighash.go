package sighash

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SpendType selects the digest algorithm of an input.
type SpendType int

const (
	SpendWitnessV0 SpendType = iota
	SpendTaprootKeyPath
	SpendTaprootScriptPath
)

func (s SpendType) String() string {
	switch s {
	case SpendWitnessV0:
		return "witness-v0"
	case SpendTaprootKeyPath:
		return "taproot-key-path"
	case SpendTaprootScriptPath:
		return "taproot-script-path"
	default:
		return fmt.Sprintf("unknown (%d)", int(s))
	}
}

// Input is what the digest of a single input depends on besides the transaction.
type Input struct {
	SpendType SpendType
	HashType  txscript.SigHashType
	// ScriptCode is the witness program script (p2wpkh) or witness script (p2wsh).
	ScriptCode []byte
	// Leaf is the spent tapscript leaf of script path inputs.
	Leaf *txscript.TapLeaf
}

// Compute returns the digest to sign for input idx of tx.
func Compute(tx *wire.MsgTx, idx int, prevOuts []*wire.TxOut, in Input) ([]byte, error) {
	switch in.SpendType {
	case SpendWitnessV0:
		return WitnessV0(tx, idx, prevOuts, in.ScriptCode, in.HashType)
	case SpendTaprootKeyPath:
		return TaprootKeyPath(tx, idx, prevOuts, in.HashType)
	case SpendTaprootScriptPath:
		if in.Leaf == nil {
			return nil, fmt.Errorf("missing tapscript leaf for input %d", idx)
		}
		return TaprootScriptPath(tx, idx, prevOuts, in.HashType, *in.Leaf)
	default:
		return nil, fmt.Errorf("unknown spend type %s", in.SpendType)
	}
}

// WitnessV0 computes the BIP143 digest of a segwit v0 input. A p2wpkh program as script code is
// expanded to its p2pkh equivalent.
func WitnessV0(
	tx *wire.MsgTx, idx int, prevOuts []*wire.TxOut, scriptCode []byte,
	hashType txscript.SigHashType,
) ([]byte, error) {
	if idx < 0 || idx >= len(tx.TxIn) || len(prevOuts) != len(tx.TxIn) {
		return nil, fmt.Errorf("input index %d out of range", idx)
	}
	if len(scriptCode) == 0 {
		return nil, fmt.Errorf("missing script code for input %d", idx)
	}

	fetcher, err := PrevOutFetcher(tx, prevOuts)
	if err != nil {
		return nil, err
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	return txscript.CalcWitnessSigHash(
		scriptCode, sigHashes, hashType, tx, idx, prevOuts[idx].Value,
	)
}

// PrevOutFetcher indexes prevOuts by the outpoints spent by tx.
func PrevOutFetcher(
	tx *wire.MsgTx, prevOuts []*wire.TxOut,
) (*txscript.MultiPrevOutFetcher, error) {
	if len(prevOuts) != len(tx.TxIn) {
		return nil, fmt.Errorf("got %d prevouts for %d inputs", len(prevOuts), len(tx.TxIn))
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, txIn := range tx.TxIn {
		if prevOuts[i] == nil {
			return nil, fmt.Errorf("missing prevout for input %d", i)
		}
		fetcher.AddPrevOut(txIn.PreviousOutPoint, prevOuts[i])
	}
	return fetcher, nil
}
