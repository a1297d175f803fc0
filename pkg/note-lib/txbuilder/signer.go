package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/noteprotocol/note-wallet/pkg/errors"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/keys"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/sighash"
)

// Sign signs every input of the assembly. Any failure aborts the whole signing, the assembly
// must not be finalized then.
func Sign(a *Assembly) error {
	tx := a.Packet.UnsignedTx
	prevOuts := a.PrevOuts()

	for i, ctx := range a.Contexts {
		if _, ok := ctx.Signature.(Unsigned); !ok {
			return signingFailed(i, fmt.Errorf("input already signed"))
		}

		digest, err := sighash.Compute(tx, i, prevOuts, ctx.sighashInput())
		if err != nil {
			return signingFailed(i, err)
		}

		in := &a.Packet.Inputs[i]
		switch ctx.SpendType {
		case sighash.SpendWitnessV0:
			sig := ecdsa.Sign(ctx.Key, digest)
			sigBytes := append(sig.Serialize(), byte(ctx.HashType))
			pubkey := ctx.Key.PubKey().SerializeCompressed()

			ctx.Signature = LegacySig{Signature: sigBytes, PubKey: pubkey}
			in.PartialSigs = append(in.PartialSigs, &psbt.PartialSig{
				PubKey:    pubkey,
				Signature: sigBytes,
			})

		case sighash.SpendTaprootKeyPath:
			tweaked, err := keys.TweakPrivateKey(ctx.Key, nil)
			if err != nil {
				return signingFailed(i, err)
			}
			sig, err := schnorr.Sign(tweaked, digest)
			if err != nil {
				return signingFailed(i, err)
			}
			sigBytes := withHashType(sig.Serialize(), ctx.HashType)

			ctx.Signature = KeyPathSig{Signature: sigBytes}
			in.TaprootKeySpendSig = sigBytes

		case sighash.SpendTaprootScriptPath:
			sig, err := schnorr.Sign(ctx.Key, digest)
			if err != nil {
				return signingFailed(i, err)
			}
			sigBytes := withHashType(sig.Serialize(), ctx.HashType)
			xonly := schnorr.SerializePubKey(ctx.Key.PubKey())
			leafHash := ctx.Leaf.TapHash()

			ctx.Signature = ScriptPathSig{
				Signature:   sigBytes,
				PubKey:      xonly,
				Leaf:        *ctx.Leaf,
				WitnessData: ctx.WitnessData,
			}
			in.TaprootScriptSpendSig = append(in.TaprootScriptSpendSig, &psbt.TaprootScriptSpendSig{
				XOnlyPubKey: xonly,
				LeafHash:    leafHash[:],
				Signature:   sig.Serialize(),
				SigHash:     ctx.HashType,
			})

		default:
			return signingFailed(i, fmt.Errorf("unknown spend type %s", ctx.SpendType))
		}
	}
	return nil
}

// withHashType appends the sighash byte to a schnorr signature unless it is the default one.
func withHashType(sig []byte, hashType txscript.SigHashType) []byte {
	if hashType == txscript.SigHashDefault {
		return sig
	}
	return append(sig, byte(hashType))
}

func signingFailed(idx int, cause error) error {
	return errors.SIGNING_FAILED.Wrap(fmt.Errorf("input %d: %w", idx, cause)).
		WithMetadata(errors.InputMetadata{InputIndex: idx})
}
