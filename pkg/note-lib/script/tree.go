package script

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/keys"
)

// LeafContent selects what the data leaf of a note tree carries.
type LeafContent int

const (
	// ContentNote is a data leaf expecting the payload in the witness.
	ContentNote LeafContent = iota
	// ContentCommitNote is a data leaf with the payload committed in the script.
	ContentCommitNote
)

func (c LeafContent) String() string {
	switch c {
	case ContentNote:
		return "note"
	case ContentCommitNote:
		return "commit-note"
	default:
		return fmt.Sprintf("unknown (%d)", int(c))
	}
}

// AddressType is the indexer type of outputs locked to a tree of this content.
func (c LeafContent) AddressType() notelib.AddressType {
	if c == ContentCommitNote {
		return notelib.AddressP2TRCommitNote
	}
	return notelib.AddressP2TRNote
}

// Leaf is a tapscript leaf together with the control block proving it in its tree.
type Leaf struct {
	Script       []byte
	LeafVersion  txscript.TapscriptLeafVersion
	ControlBlock []byte
}

func (l Leaf) TapLeaf() txscript.TapLeaf {
	return txscript.NewTapLeaf(l.LeafVersion, l.Script)
}

func (l Leaf) TapHash() chainhash.Hash {
	return l.TapLeaf().TapHash()
}

// ScriptTreeInfo is the two leaves tree (data leaf + key leaf) committed by a note output.
type ScriptTreeInfo struct {
	Content      LeafContent
	Address      string
	OutputScript []byte
	InternalKey  *btcec.PublicKey
	OutputKey    *btcec.PublicKey
	MerkleRoot   chainhash.Hash
	NoteLeaf     Leaf
	KeyLeaf      Leaf
}

func (t *ScriptTreeInfo) ScriptHash() string {
	return ScriptHash(t.OutputScript)
}

func (t *ScriptTreeInfo) AddressInfo() *AddressInfo {
	return &AddressInfo{
		Address:    t.Address,
		Script:     t.OutputScript,
		ScriptHash: t.ScriptHash(),
		Type:       t.Content.AddressType(),
	}
}

// NewScriptTree derives the note tree of pubkey. The payload is required for commit notes and
// ignored otherwise. The result only depends on its arguments.
func NewScriptTree(
	content LeafContent, pubkey []byte, payload *notelib.NotePayload, network notelib.Network,
) (*ScriptTreeInfo, error) {
	internalKey, err := keys.XOnlyKey(pubkey)
	if err != nil {
		return nil, err
	}
	xonly := schnorr.SerializePubKey(internalKey)

	var noteScript []byte
	switch content {
	case ContentNote:
		noteScript, err = NoteLeafScript(xonly)
	case ContentCommitNote:
		if payload == nil {
			return nil, fmt.Errorf("missing payload for commit note tree")
		}
		noteScript, err = CommitNoteLeafScript(xonly, *payload)
	default:
		return nil, fmt.Errorf("unknown leaf content %s", content)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build note leaf: %w", err)
	}

	keyScript, err := KeyLeafScript(xonly)
	if err != nil {
		return nil, fmt.Errorf("failed to build key leaf: %w", err)
	}

	tree := txscript.AssembleTaprootScriptTree(
		txscript.NewBaseTapLeaf(noteScript), txscript.NewBaseTapLeaf(keyScript),
	)
	root := tree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(internalKey, root[:])

	leaves := make([]Leaf, 0, 2)
	for _, proof := range tree.LeafMerkleProofs {
		controlBlock := proof.ToControlBlock(internalKey)
		cbBytes, err := controlBlock.ToBytes()
		if err != nil {
			return nil, fmt.Errorf("failed to serialize control block: %w", err)
		}
		leaves = append(leaves, Leaf{
			Script:       proof.TapLeaf.Script,
			LeafVersion:  proof.TapLeaf.LeafVersion,
			ControlBlock: cbBytes,
		})
	}

	address, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), network.Params())
	if err != nil {
		return nil, fmt.Errorf("failed to encode taproot address: %w", err)
	}
	outputScript, err := txscript.PayToAddrScript(address)
	if err != nil {
		return nil, err
	}

	return &ScriptTreeInfo{
		Content:      content,
		Address:      address.EncodeAddress(),
		OutputScript: outputScript,
		InternalKey:  internalKey,
		OutputKey:    outputKey,
		MerkleRoot:   root,
		NoteLeaf:     leaves[0],
		KeyLeaf:      leaves[1],
	}, nil
}

func NoteTree(pubkey []byte, network notelib.Network) (*ScriptTreeInfo, error) {
	return NewScriptTree(ContentNote, pubkey, nil, network)
}

func CommitNoteTree(
	pubkey []byte, payload notelib.NotePayload, network notelib.Network,
) (*ScriptTreeInfo, error) {
	return NewScriptTree(ContentCommitNote, pubkey, &payload, network)
}

// TreeForUtxo rebuilds the tree locking a note utxo and checks it matches the utxo script.
func TreeForUtxo(
	utxo notelib.Utxo, pubkey []byte, payload *notelib.NotePayload, network notelib.Network,
) (*ScriptTreeInfo, error) {
	content := ContentNote
	if utxo.Type == notelib.AddressP2TRCommitNote {
		content = ContentCommitNote
	}

	tree, err := NewScriptTree(content, pubkey, payload, network)
	if err != nil {
		return nil, err
	}
	if utxo.Script != "" && utxo.Script != hex.EncodeToString(tree.OutputScript) {
		return nil, fmt.Errorf(
			"utxo %s is not locked by the %s tree of the signing key", utxo, content,
		)
	}
	return tree, nil
}
