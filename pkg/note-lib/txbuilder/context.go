package txbuilder

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/script"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/sighash"
)

// InputSignature is the signing state of an input. It is one of Unsigned, LegacySig, KeyPathSig
// or ScriptPathSig.
type InputSignature interface {
	isInputSignature()
}

type Unsigned struct{}

// LegacySig is a DER ecdsa signature with its sighash byte, by the compressed PubKey.
type LegacySig struct {
	Signature []byte
	PubKey    []byte
}

// KeyPathSig is a 64 bytes schnorr signature by the tweaked output key.
type KeyPathSig struct {
	Signature []byte
}

// ScriptPathSig is a schnorr signature by the x-only PubKey of the spent leaf. WitnessData are
// the items the leaf consumes before the signature check.
type ScriptPathSig struct {
	Signature   []byte
	PubKey      []byte
	Leaf        script.Leaf
	WitnessData [][]byte
}

func (Unsigned) isInputSignature()      {}
func (LegacySig) isInputSignature()     {}
func (KeyPathSig) isInputSignature()    {}
func (ScriptPathSig) isInputSignature() {}

// SigningContext carries what the signer needs for one input. It is filled by the assembler,
// signed once and consumed by the finalizer.
type SigningContext struct {
	Utxo      notelib.Utxo
	PrevOut   *wire.TxOut
	SpendType sighash.SpendType
	HashType  txscript.SigHashType
	Key       *btcec.PrivateKey

	// ScriptCode of witness v0 inputs, the witness script for p2wsh.
	ScriptCode    []byte
	WitnessScript []byte

	// Leaf of script path inputs and the witness items pushed below the leaf script.
	Leaf        *script.Leaf
	WitnessData [][]byte

	Signature InputSignature
}

func (c *SigningContext) sighashInput() sighash.Input {
	in := sighash.Input{
		SpendType:  c.SpendType,
		HashType:   c.HashType,
		ScriptCode: c.ScriptCode,
	}
	if c.Leaf != nil {
		leaf := c.Leaf.TapLeaf()
		in.Leaf = &leaf
	}
	return in
}

func (c *SigningContext) clear() {
	c.Key = nil
	c.ScriptCode = nil
	c.WitnessScript = nil
	c.Leaf = nil
	c.WitnessData = nil
	c.Signature = nil
}
