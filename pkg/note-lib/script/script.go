package script

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
)

// NoteLeafScript returns the leaf of a plain note:
// <"NOTE"> OP_2DROP OP_2DROP OP_2DROP <xonly> OP_CHECKSIG.
// The spender provides the payload slots in the witness, the three drops clear them together
// with the envelope.
func NoteLeafScript(xonly []byte) ([]byte, error) {
	if len(xonly) != schnorr.PubKeyBytesLen {
		return nil, fmt.Errorf("invalid x-only key length %d", len(xonly))
	}

	return txscript.NewScriptBuilder().
		AddData([]byte(notelib.NoteEnvelopeID)).
		AddOp(txscript.OP_2DROP).
		AddOp(txscript.OP_2DROP).
		AddOp(txscript.OP_2DROP).
		AddData(xonly).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// CommitNoteLeafScript returns the leaf of a commit note, which embeds the payload slots in the
// script itself. Empty slots are pushed as OP_FALSE, the others always as length prefixed data so
// that single byte slots do not turn into small integer opcodes.
func CommitNoteLeafScript(xonly []byte, payload notelib.NotePayload) ([]byte, error) {
	if len(xonly) != schnorr.PubKeyBytesLen {
		return nil, fmt.Errorf("invalid x-only key length %d", len(xonly))
	}

	segments, err := payload.Segments()
	if err != nil {
		return nil, err
	}

	builder := txscript.NewScriptBuilder()
	for _, segment := range segments {
		if len(segment) == 0 {
			builder.AddOp(txscript.OP_FALSE)
			continue
		}
		builder.AddOps(pushData(segment))
	}

	return builder.
		AddData([]byte(notelib.NoteEnvelopeID)).
		AddOp(txscript.OP_2DROP).
		AddOp(txscript.OP_2DROP).
		AddOp(txscript.OP_2DROP).
		AddData(xonly).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// KeyLeafScript returns <xonly> OP_CHECKSIG.
func KeyLeafScript(xonly []byte) ([]byte, error) {
	if len(xonly) != schnorr.PubKeyBytesLen {
		return nil, fmt.Errorf("invalid x-only key length %d", len(xonly))
	}

	return txscript.NewScriptBuilder().
		AddData(xonly).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// pushData encodes data as a length prefixed push, never as a small integer opcode.
func pushData(data []byte) []byte {
	var prefix []byte
	switch n := len(data); {
	case n < txscript.OP_PUSHDATA1:
		prefix = []byte{byte(n)}
	case n <= 0xff:
		prefix = []byte{txscript.OP_PUSHDATA1, byte(n)}
	default:
		prefix = []byte{txscript.OP_PUSHDATA2, byte(n), byte(n >> 8)}
	}
	return append(prefix, data...)
}
