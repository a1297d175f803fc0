package keys

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
)

// uncompressedPubKeyLen is the length of a 0x04 prefixed SEC public key.
const uncompressedPubKeyLen = 65

// ParseWIF decodes a WIF encoded private key.
func ParseWIF(wif string) (*btcec.PrivateKey, error) {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return nil, fmt.Errorf("invalid wif: %w", err)
	}
	return decoded.PrivKey, nil
}

// EncodeWIF encodes the key as compressed WIF for the given network.
func EncodeWIF(key *btcec.PrivateKey, network notelib.Network) (string, error) {
	wif, err := btcutil.NewWIF(key, network.Params(), true)
	if err != nil {
		return "", err
	}
	return wif.String(), nil
}

// XOnly reduces a compressed (33 bytes) or uncompressed (65 bytes) public key to its 32 bytes
// x coordinate. A 32 bytes key is returned as is.
func XOnly(pubkey []byte) ([]byte, error) {
	switch len(pubkey) {
	case schnorr.PubKeyBytesLen:
		return append([]byte{}, pubkey...), nil
	case btcec.PubKeyBytesLenCompressed, uncompressedPubKeyLen:
		if _, err := btcec.ParsePubKey(pubkey); err != nil {
			return nil, fmt.Errorf("invalid public key: %w", err)
		}
		return append([]byte{}, pubkey[1:33]...), nil
	default:
		return nil, fmt.Errorf("invalid public key length %d", len(pubkey))
	}
}

// XOnlyKey parses the x-only form of pubkey into an even-y key.
func XOnlyKey(pubkey []byte) (*btcec.PublicKey, error) {
	xonly, err := XOnly(pubkey)
	if err != nil {
		return nil, err
	}
	return schnorr.ParsePubKey(xonly)
}

// hasOddY tells whether the point encoded by pubkey has an odd y coordinate.
func hasOddY(pubkey []byte) (bool, error) {
	switch len(pubkey) {
	case btcec.PubKeyBytesLenCompressed:
		switch pubkey[0] {
		case 0x02:
			return false, nil
		case 0x03:
			return true, nil
		}
	case uncompressedPubKeyLen:
		if pubkey[0] == 0x04 {
			return pubkey[64]&1 == 1, nil
		}
	}
	return false, fmt.Errorf("unsupported public key encoding")
}

// TapTweakHash is the BIP341 tweak of a key path only output.
func TapTweakHash(xonly []byte) *chainhash.Hash {
	return chainhash.TaggedHash(chainhash.TagTapTweak, xonly)
}

// TweakPrivateKey returns the private key of the BIP86 output key committed to pubkey.
// The scalar is negated when pubkey has an odd y, then the TapTweak hash is added modulo n.
func TweakPrivateKey(key *btcec.PrivateKey, pubkey []byte) (*btcec.PrivateKey, error) {
	if key == nil {
		return nil, fmt.Errorf("missing private key")
	}
	if len(pubkey) == 0 {
		pubkey = key.PubKey().SerializeCompressed()
	}

	xonly, err := XOnly(pubkey)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(xonly, schnorr.SerializePubKey(key.PubKey())) {
		return nil, fmt.Errorf("public key does not match private key")
	}

	var negate bool
	if len(pubkey) == schnorr.PubKeyBytesLen {
		negate = key.PubKey().SerializeCompressed()[0] == 0x03
	} else if negate, err = hasOddY(pubkey); err != nil {
		return nil, err
	}

	scalar := key.Key
	if negate {
		scalar.Negate()
	}

	var tweak btcec.ModNScalar
	if overflow := tweak.SetByteSlice(TapTweakHash(xonly)[:]); overflow {
		return nil, fmt.Errorf("tweak exceeds curve order")
	}
	scalar.Add(&tweak)
	if scalar.IsZero() {
		return nil, fmt.Errorf("tweaked key is zero")
	}

	return btcec.PrivKeyFromScalar(&scalar), nil
}

// TweakWIF tweaks a WIF private key for key path spending and returns the tweaked key as WIF
// together with the hex x-only public key of the untweaked key.
func TweakWIF(wif, pubkeyHex string, network notelib.Network) (string, string, error) {
	key, err := ParseWIF(wif)
	if err != nil {
		return "", "", err
	}

	var pubkey []byte
	if pubkeyHex != "" {
		if pubkey, err = hex.DecodeString(pubkeyHex); err != nil {
			return "", "", fmt.Errorf("invalid public key hex: %w", err)
		}
	}

	tweaked, err := TweakPrivateKey(key, pubkey)
	if err != nil {
		return "", "", err
	}
	tweakedWIF, err := EncodeWIF(tweaked, network)
	if err != nil {
		return "", "", err
	}

	return tweakedWIF, hex.EncodeToString(schnorr.SerializePubKey(key.PubKey())), nil
}
