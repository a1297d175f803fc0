package txbuilder

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// Finalize turns the signature of every input into its witness, clears the signing state of the
// packet and of the contexts, and extracts the network transaction.
func Finalize(a *Assembly) (*wire.MsgTx, error) {
	if len(a.Contexts) == 0 {
		return nil, fmt.Errorf("nothing to finalize")
	}

	for i, ctx := range a.Contexts {
		witness, err := buildWitness(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to finalize input %d: %w", i, err)
		}

		var buf bytes.Buffer
		if err := psbt.WriteTxWitness(&buf, witness); err != nil {
			return nil, fmt.Errorf("failed to serialize witness of input %d: %w", i, err)
		}

		in := &a.Packet.Inputs[i]
		in.FinalScriptWitness = buf.Bytes()
		clearSigningFields(in)
	}

	tx, err := psbt.Extract(a.Packet)
	if err != nil {
		return nil, fmt.Errorf("failed to extract transaction: %w", err)
	}

	for _, ctx := range a.Contexts {
		ctx.clear()
	}
	a.Contexts = nil
	return tx, nil
}

func buildWitness(ctx *SigningContext) (wire.TxWitness, error) {
	switch sig := ctx.Signature.(type) {
	case LegacySig:
		witness := wire.TxWitness{sig.Signature, sig.PubKey}
		if len(ctx.WitnessScript) > 0 {
			witness = append(witness, ctx.WitnessScript)
		}
		return witness, nil
	case KeyPathSig:
		return wire.TxWitness{sig.Signature}, nil
	case ScriptPathSig:
		witness := make(wire.TxWitness, 0, len(sig.WitnessData)+3)
		witness = append(witness, sig.Signature)
		witness = append(witness, sig.WitnessData...)
		return append(witness, sig.Leaf.Script, sig.Leaf.ControlBlock), nil
	default:
		return nil, fmt.Errorf("input is not signed")
	}
}

func clearSigningFields(in *psbt.PInput) {
	in.PartialSigs = nil
	in.SighashType = 0
	in.RedeemScript = nil
	in.WitnessScript = nil
	in.Bip32Derivation = nil
	in.TaprootKeySpendSig = nil
	in.TaprootScriptSpendSig = nil
	in.TaprootLeafScript = nil
	in.TaprootInternalKey = nil
	in.TaprootMerkleRoot = nil
	in.TaprootBip32Derivation = nil
}
