package txbuilder

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/noteprotocol/note-wallet/pkg/errors"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/keys"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/script"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/sighash"
)

// NoteInput is a note utxo spent through one leaf of its tree.
type NoteInput struct {
	Utxo notelib.Utxo
	// Key signs the leaf, defaults to the request key.
	Key         *btcec.PrivateKey
	Tree        *script.ScriptTreeInfo
	Leaf        script.Leaf
	WitnessData [][]byte
}

type AssembleRequest struct {
	Key           *btcec.PrivateKey
	Network       notelib.Network
	NoteInputs    []NoteInput
	PayUtxos      []notelib.Utxo
	Targets       []notelib.SendTarget
	ChangeAddress string
	Fee           int64
	DustLimit     int64
	Locktime      uint32
}

// Assembly is an unsigned packet with one signing context per input, note inputs first.
type Assembly struct {
	Packet      *psbt.Packet
	Contexts    []*SigningContext
	NoteUtxos   []notelib.Utxo
	PayUtxos    []notelib.Utxo
	TotalInput  int64
	TotalOutput int64
	// Fee is what the transaction actually pays, dust absorbed from the change included.
	Fee    int64
	Change int64
}

func (a *Assembly) PrevOuts() []*wire.TxOut {
	prevOuts := make([]*wire.TxOut, 0, len(a.Contexts))
	for _, ctx := range a.Contexts {
		prevOuts = append(prevOuts, ctx.PrevOut)
	}
	return prevOuts
}

// Assemble builds the unsigned transaction. It fails before anything is signed when the inputs
// can't pay for the targets and the fee.
func Assemble(req AssembleRequest) (*Assembly, error) {
	if req.Fee < 0 {
		return nil, fmt.Errorf("invalid fee %d", req.Fee)
	}
	if len(req.NoteInputs)+len(req.PayUtxos) == 0 {
		return nil, errors.NO_UTXO_FOUND.New("no utxos to spend")
	}
	dustLimit := req.DustLimit
	if dustLimit <= 0 {
		dustLimit = notelib.DustLimit
	}

	contexts := make([]*SigningContext, 0, len(req.NoteInputs)+len(req.PayUtxos))
	noteUtxos := make([]notelib.Utxo, 0, len(req.NoteInputs))
	for _, in := range req.NoteInputs {
		ctx, err := noteContext(in, req.Key)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, ctx)
		noteUtxos = append(noteUtxos, in.Utxo)
	}
	for _, utxo := range req.PayUtxos {
		ctx, err := payContext(utxo, req.Key, req.Network)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, ctx)
	}

	var totalInput int64
	outpoints := make([]*wire.OutPoint, 0, len(contexts))
	sequences := make([]uint32, 0, len(contexts))
	for _, ctx := range contexts {
		outpoint, err := ctx.Utxo.Outpoint()
		if err != nil {
			return nil, invalidUtxo(ctx.Utxo, err)
		}
		outpoints = append(outpoints, outpoint)
		sequences = append(sequences, ctx.Utxo.InputSequence())
		totalInput += ctx.PrevOut.Value
	}

	outputs, change, err := allocateOutputs(
		totalInput, req.Targets, req.ChangeAddress, req.Fee, dustLimit, req.Network,
	)
	if err != nil {
		return nil, err
	}
	var totalOutput int64
	for _, out := range outputs {
		totalOutput += out.Value
	}

	ptx, err := psbt.New(outpoints, outputs, notelib.TxVersion, req.Locktime, sequences)
	if err != nil {
		return nil, fmt.Errorf("failed to create packet: %w", err)
	}
	updater, err := psbt.NewUpdater(ptx)
	if err != nil {
		return nil, err
	}
	for i, ctx := range contexts {
		if err := annotateInput(updater, i, ctx); err != nil {
			return nil, fmt.Errorf("failed to update input %d: %w", i, err)
		}
	}

	return &Assembly{
		Packet:      ptx,
		Contexts:    contexts,
		NoteUtxos:   noteUtxos,
		PayUtxos:    append([]notelib.Utxo{}, req.PayUtxos...),
		TotalInput:  totalInput,
		TotalOutput: totalOutput,
		Fee:         totalInput - totalOutput,
		Change:      change,
	}, nil
}

// allocateOutputs returns one output per target plus the change output, if any. A single target
// asking for the whole input total receives it minus the fee.
func allocateOutputs(
	totalInput int64, targets []notelib.SendTarget, changeAddress string,
	fee, dustLimit int64, network notelib.Network,
) ([]*wire.TxOut, int64, error) {
	if len(targets) == 1 && targets[0].Amount == totalInput {
		value := totalInput - fee
		if value < dustLimit {
			return nil, 0, errors.INSUFFICIENT_FUNDS.New(
				"sending %d sats leaves %d after fee, below dust limit %d",
				totalInput, value, dustLimit,
			).WithMetadata(errors.InsufficientFundsMetadata{
				TotalInput: totalInput, TotalOutput: totalInput, Fee: fee,
			})
		}
		pkScript, err := script.AddressScript(targets[0].Address, network)
		if err != nil {
			return nil, 0, err
		}
		return []*wire.TxOut{wire.NewTxOut(value, pkScript)}, 0, nil
	}

	outputs := make([]*wire.TxOut, 0, len(targets)+1)
	var totalOutput int64
	for _, target := range targets {
		if target.Amount <= 0 {
			return nil, 0, fmt.Errorf("invalid amount %d for %s", target.Amount, target.Address)
		}
		pkScript, err := script.AddressScript(target.Address, network)
		if err != nil {
			return nil, 0, err
		}
		outputs = append(outputs, wire.NewTxOut(target.Amount, pkScript))
		totalOutput += target.Amount
	}

	remainder := totalInput - totalOutput - fee
	if remainder < 0 {
		return nil, 0, errors.INSUFFICIENT_FUNDS.New("need %d more sats", -remainder).
			WithMetadata(errors.InsufficientFundsMetadata{
				TotalInput: totalInput, TotalOutput: totalOutput, Fee: fee,
			})
	}

	var change int64
	if remainder > dustLimit {
		if changeAddress == "" {
			return nil, 0, fmt.Errorf("missing change address for %d sats of change", remainder)
		}
		pkScript, err := script.AddressScript(changeAddress, network)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid change address: %w", err)
		}
		outputs = append(outputs, wire.NewTxOut(remainder, pkScript))
		change = remainder
	}

	if len(outputs) == 0 {
		return nil, 0, fmt.Errorf("transaction has no outputs")
	}
	return outputs, change, nil
}

func noteContext(in NoteInput, defaultKey *btcec.PrivateKey) (*SigningContext, error) {
	key := in.Key
	if key == nil {
		var err error
		if key, err = signingKey(in.Utxo, defaultKey); err != nil {
			return nil, err
		}
	}
	if in.Tree == nil {
		return nil, invalidUtxo(in.Utxo, fmt.Errorf("missing script tree"))
	}
	if in.Utxo.Satoshis <= 0 {
		return nil, invalidUtxo(in.Utxo, fmt.Errorf("invalid value %d", in.Utxo.Satoshis))
	}

	leaf := in.Leaf
	return &SigningContext{
		Utxo:        in.Utxo,
		PrevOut:     wire.NewTxOut(in.Utxo.Satoshis, in.Tree.OutputScript),
		SpendType:   sighash.SpendTaprootScriptPath,
		HashType:    txscript.SigHashDefault,
		Key:         key,
		Leaf:        &leaf,
		WitnessData: in.WitnessData,
		Signature:   Unsigned{},
	}, nil
}

// payContext prepares a pay utxo for signing according to its type.
func payContext(
	utxo notelib.Utxo, defaultKey *btcec.PrivateKey, network notelib.Network,
) (*SigningContext, error) {
	key, err := signingKey(utxo, defaultKey)
	if err != nil {
		return nil, err
	}
	if utxo.Satoshis <= 0 {
		return nil, invalidUtxo(utxo, fmt.Errorf("invalid value %d", utxo.Satoshis))
	}

	ctx := &SigningContext{
		Utxo:      utxo,
		Key:       key,
		Signature: Unsigned{},
	}

	switch utxo.Type {
	case notelib.AddressP2WPKH:
		pkScript, err := utxo.PkScript()
		if err != nil {
			return nil, invalidUtxo(utxo, err)
		}
		ctx.PrevOut = wire.NewTxOut(utxo.Satoshis, pkScript)
		ctx.SpendType = sighash.SpendWitnessV0
		ctx.HashType = txscript.SigHashAll
		ctx.ScriptCode = pkScript

	case notelib.AddressP2WSH:
		pkScript, err := utxo.PkScript()
		if err != nil {
			return nil, invalidUtxo(utxo, err)
		}
		witnessScript, err := hex.DecodeString(utxo.WitnessScript)
		if err != nil || len(witnessScript) == 0 {
			return nil, invalidUtxo(utxo, fmt.Errorf("missing witness script"))
		}
		ctx.PrevOut = wire.NewTxOut(utxo.Satoshis, pkScript)
		ctx.SpendType = sighash.SpendWitnessV0
		ctx.HashType = txscript.SigHashAll
		ctx.ScriptCode = witnessScript
		ctx.WitnessScript = witnessScript

	case notelib.AddressP2TR:
		pkScript, err := utxo.PkScript()
		if err != nil {
			return nil, invalidUtxo(utxo, err)
		}
		expected, err := txscript.PayToTaprootScript(
			txscript.ComputeTaprootKeyNoScript(key.PubKey()),
		)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(expected, pkScript) {
			return nil, invalidUtxo(utxo, fmt.Errorf("output key is not the key path of the signer"))
		}
		ctx.PrevOut = wire.NewTxOut(utxo.Satoshis, pkScript)
		ctx.SpendType = sighash.SpendTaprootKeyPath
		ctx.HashType = txscript.SigHashDefault

	case notelib.AddressP2TRNote:
		tree, err := script.TreeForUtxo(
			utxo, key.PubKey().SerializeCompressed(), nil, network,
		)
		if err != nil {
			return nil, invalidUtxo(utxo, err)
		}
		leaf := tree.KeyLeaf
		ctx.PrevOut = wire.NewTxOut(utxo.Satoshis, tree.OutputScript)
		ctx.SpendType = sighash.SpendTaprootScriptPath
		ctx.HashType = txscript.SigHashDefault
		ctx.Leaf = &leaf

	default:
		return nil, invalidUtxo(utxo, fmt.Errorf("can't pay with %s utxos", utxo.Type))
	}

	return ctx, nil
}

func annotateInput(updater *psbt.Updater, idx int, ctx *SigningContext) error {
	if err := updater.AddInWitnessUtxo(ctx.PrevOut, idx); err != nil {
		return err
	}

	in := &updater.Upsbt.Inputs[idx]
	switch ctx.SpendType {
	case sighash.SpendWitnessV0:
		if err := updater.AddInSighashType(ctx.HashType, idx); err != nil {
			return err
		}
		if len(ctx.WitnessScript) > 0 {
			return updater.AddInWitnessScript(ctx.WitnessScript, idx)
		}
	case sighash.SpendTaprootKeyPath:
		in.TaprootInternalKey = schnorr.SerializePubKey(ctx.Key.PubKey())
	case sighash.SpendTaprootScriptPath:
		in.TaprootInternalKey = schnorr.SerializePubKey(ctx.Key.PubKey())
		in.TaprootLeafScript = []*psbt.TaprootTapLeafScript{{
			ControlBlock: ctx.Leaf.ControlBlock,
			Script:       ctx.Leaf.Script,
			LeafVersion:  ctx.Leaf.LeafVersion,
		}}
	}
	return nil
}

// signingKey returns the override key of the utxo if any, the default key otherwise.
func signingKey(utxo notelib.Utxo, defaultKey *btcec.PrivateKey) (*btcec.PrivateKey, error) {
	if utxo.PrivateKeyWIF != "" {
		key, err := keys.ParseWIF(utxo.PrivateKeyWIF)
		if err != nil {
			return nil, invalidUtxo(utxo, err)
		}
		return key, nil
	}
	if defaultKey == nil {
		return nil, invalidUtxo(utxo, fmt.Errorf("missing signing key"))
	}
	return defaultKey, nil
}

func invalidUtxo(utxo notelib.Utxo, cause error) error {
	return errors.INVALID_UTXO.Wrap(fmt.Errorf("utxo %s: %w", utxo, cause)).
		WithMetadata(errors.InvalidUtxoMetadata{
			Txid: utxo.TxID, Vout: utxo.OutputIndex, Type: string(utxo.Type),
		})
}
