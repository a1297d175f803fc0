package sighash

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	sighashEpoch byte = 0x00
	// keyVersion of BIP342 tapscript.
	keyVersion byte = 0x00
	// codeSepNone is the code separator position when no OP_CODESEPARATOR was executed.
	codeSepNone uint32 = 0xffffffff

	outputTypeMask         = 0x03
	anyoneCanPayFlag       = 0x80
	extFlagScriptPath byte = 1
	annexPresentFlag  byte = 1
)

func isValidTaprootHashType(hashType txscript.SigHashType) bool {
	switch hashType {
	case txscript.SigHashDefault, txscript.SigHashAll, txscript.SigHashNone,
		txscript.SigHashSingle, txscript.SigHashAll | txscript.SigHashAnyOneCanPay,
		txscript.SigHashNone | txscript.SigHashAnyOneCanPay,
		txscript.SigHashSingle | txscript.SigHashAnyOneCanPay:
		return true
	default:
		return false
	}
}

// TapLeafHash is the tagged hash TapLeaf(leaf_version || compact_size(script) || script).
func TapLeafHash(leafVersion txscript.TapscriptLeafVersion, script []byte) chainhash.Hash {
	var buf bytes.Buffer
	buf.WriteByte(byte(leafVersion))
	// bytes.Buffer never fails
	_ = wire.WriteVarBytes(&buf, 0, script)
	return *chainhash.TaggedHash(chainhash.TagTapLeaf, buf.Bytes())
}

// TaprootKeyPath computes the BIP341 digest signed by a key path spend of input idx.
func TaprootKeyPath(
	tx *wire.MsgTx, idx int, prevOuts []*wire.TxOut, hashType txscript.SigHashType,
) ([]byte, error) {
	return taprootSigHash(tx, idx, prevOuts, hashType, nil, nil)
}

// TaprootScriptPath computes the BIP341 digest, extended as in BIP342, signed by a script path
// spend of input idx through the given leaf.
func TaprootScriptPath(
	tx *wire.MsgTx, idx int, prevOuts []*wire.TxOut, hashType txscript.SigHashType,
	leaf txscript.TapLeaf,
) ([]byte, error) {
	leafHash := TapLeafHash(leaf.LeafVersion, leaf.Script)
	return taprootSigHash(tx, idx, prevOuts, hashType, &leafHash, nil)
}

func taprootSigHash(
	tx *wire.MsgTx, idx int, prevOuts []*wire.TxOut, hashType txscript.SigHashType,
	leafHash *chainhash.Hash, annex []byte,
) ([]byte, error) {
	if tx == nil {
		return nil, fmt.Errorf("missing transaction")
	}
	if !isValidTaprootHashType(hashType) {
		return nil, fmt.Errorf("invalid taproot sighash type 0x%02x", byte(hashType))
	}
	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, fmt.Errorf("input index %d out of range", idx)
	}
	if len(prevOuts) != len(tx.TxIn) {
		return nil, fmt.Errorf(
			"got %d prevouts for %d inputs", len(prevOuts), len(tx.TxIn),
		)
	}
	for i, prevOut := range prevOuts {
		if prevOut == nil {
			return nil, fmt.Errorf("missing prevout for input %d", i)
		}
	}

	outputType := hashType & outputTypeMask
	anyoneCanPay := hashType&anyoneCanPayFlag != 0
	if outputType == txscript.SigHashSingle && idx >= len(tx.TxOut) {
		return nil, fmt.Errorf("no output matching input %d for SIGHASH_SINGLE", idx)
	}

	var msg bytes.Buffer
	msg.WriteByte(byte(hashType))
	writeUint32(&msg, uint32(tx.Version))
	writeUint32(&msg, tx.LockTime)

	if !anyoneCanPay {
		msg.Write(hashPrevOuts(tx))
		msg.Write(hashAmounts(prevOuts))
		msg.Write(hashScriptPubKeys(prevOuts))
		msg.Write(hashSequences(tx))
	}
	if outputType != txscript.SigHashNone && outputType != txscript.SigHashSingle {
		msg.Write(hashOutputs(tx.TxOut))
	}

	var spendType byte
	if leafHash != nil {
		spendType |= extFlagScriptPath << 1
	}
	if len(annex) > 0 {
		spendType |= annexPresentFlag
	}
	msg.WriteByte(spendType)

	if anyoneCanPay {
		txIn := tx.TxIn[idx]
		msg.Write(txIn.PreviousOutPoint.Hash[:])
		writeUint32(&msg, txIn.PreviousOutPoint.Index)
		writeUint64(&msg, uint64(prevOuts[idx].Value))
		_ = wire.WriteVarBytes(&msg, 0, prevOuts[idx].PkScript)
		writeUint32(&msg, txIn.Sequence)
	} else {
		writeUint32(&msg, uint32(idx))
	}

	if len(annex) > 0 {
		var annexBuf bytes.Buffer
		_ = wire.WriteVarBytes(&annexBuf, 0, annex)
		msg.Write(sha256Sum(annexBuf.Bytes()))
	}

	if outputType == txscript.SigHashSingle {
		msg.Write(hashOutputs(tx.TxOut[idx : idx+1]))
	}

	if leafHash != nil {
		msg.Write(leafHash[:])
		msg.WriteByte(keyVersion)
		writeUint32(&msg, codeSepNone)
	}

	preimage := append([]byte{sighashEpoch}, msg.Bytes()...)
	digest := chainhash.TaggedHash(chainhash.TagTapSighash, preimage)
	return digest[:], nil
}

func hashPrevOuts(tx *wire.MsgTx) []byte {
	var buf bytes.Buffer
	for _, txIn := range tx.TxIn {
		buf.Write(txIn.PreviousOutPoint.Hash[:])
		writeUint32(&buf, txIn.PreviousOutPoint.Index)
	}
	return sha256Sum(buf.Bytes())
}

func hashAmounts(prevOuts []*wire.TxOut) []byte {
	var buf bytes.Buffer
	for _, prevOut := range prevOuts {
		writeUint64(&buf, uint64(prevOut.Value))
	}
	return sha256Sum(buf.Bytes())
}

func hashScriptPubKeys(prevOuts []*wire.TxOut) []byte {
	var buf bytes.Buffer
	for _, prevOut := range prevOuts {
		_ = wire.WriteVarBytes(&buf, 0, prevOut.PkScript)
	}
	return sha256Sum(buf.Bytes())
}

func hashSequences(tx *wire.MsgTx) []byte {
	var buf bytes.Buffer
	for _, txIn := range tx.TxIn {
		writeUint32(&buf, txIn.Sequence)
	}
	return sha256Sum(buf.Bytes())
}

func hashOutputs(outputs []*wire.TxOut) []byte {
	var buf bytes.Buffer
	for _, output := range outputs {
		writeUint64(&buf, uint64(output.Value))
		_ = wire.WriteVarBytes(&buf, 0, output.PkScript)
	}
	return sha256Sum(buf.Bytes())
}

func sha256Sum(buf []byte) []byte {
	hash := sha256.Sum256(buf)
	return hash[:]
}

func writeUint32(w io.Writer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = w.Write(buf[:])
}

func writeUint64(w io.Writer, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = w.Write(buf[:])
}
