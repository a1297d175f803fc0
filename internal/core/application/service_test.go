package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/noteprotocol/note-wallet/internal/core/domain"
	"github.com/noteprotocol/note-wallet/pkg/errors"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/payload"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/script"
	"github.com/stretchr/testify/require"
)

const testNetwork = notelib.NetworkTest

var testFeeRates = notelib.FeeRates{Slow: 1_000, Average: 2_000, Fast: 5_000}

func TestSend(t *testing.T) {
	svc, indexer, repo := newTestService(t)
	acc := svc.account
	funding := indexer.fund(t, acc.MainAddress, 100_000)

	recipient := otherAddress(t)
	res, err := svc.Send(context.Background(), []notelib.SendTarget{
		{Address: recipient.Address, Amount: 10_000},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Txid)
	require.Equal(t, testFeeRates.Average, res.FeeRate)
	require.Positive(t, res.Fee)

	tx := indexer.tx(t, res.Txid)
	indexer.execute(t, tx)
	require.Len(t, tx.TxOut, 2)
	require.Equal(t, int64(10_000), tx.TxOut[0].Value)
	require.Equal(t, recipient.Script, tx.TxOut[0].PkScript)
	require.Equal(t, 100_000-10_000-res.Fee, tx.TxOut[1].Value)
	require.Equal(t, acc.MainAddress.Script, tx.TxOut[1].PkScript)

	// the indexer still serves the spent utxo, the lock hides it
	utxos, err := svc.ListUtxos(context.Background())
	require.NoError(t, err)
	for _, utxo := range utxos {
		require.NotEqual(t, funding.String(), utxo.String())
	}

	records, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, domain.TxKindSend, records[0].Kind)
	require.Equal(t, []string{funding.String()}, records[0].Inputs)

	// a second send spends the change
	res2, err := svc.Send(context.Background(), []notelib.SendTarget{
		{Address: recipient.Address, Amount: 10_000},
	})
	require.NoError(t, err)
	tx2 := indexer.tx(t, res2.Txid)
	require.Len(t, tx2.TxIn, 1)
	require.Equal(t, res.Txid, tx2.TxIn[0].PreviousOutPoint.Hash.String())
	indexer.execute(t, tx2)
}

func TestSendErrors(t *testing.T) {
	t.Run("no utxos", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.Send(context.Background(), []notelib.SendTarget{
			{Address: otherAddress(t).Address, Amount: 1_000},
		})
		require.True(t, errors.NO_UTXO_FOUND.Is(err))
	})

	t.Run("fee service unavailable", func(t *testing.T) {
		svc, indexer, _ := newTestService(t)
		svc.feeEstimator = &fakeFeeEstimator{}
		indexer.fund(t, svc.account.MainAddress, 100_000)

		_, err := svc.Send(context.Background(), []notelib.SendTarget{
			{Address: otherAddress(t).Address, Amount: 1_000},
		})
		require.True(t, errors.FEE_SERVICE_UNAVAILABLE.Is(err))
	})

	t.Run("insufficient funds", func(t *testing.T) {
		svc, indexer, _ := newTestService(t)
		indexer.fund(t, svc.account.MainAddress, 5_000)

		_, err := svc.Send(context.Background(), []notelib.SendTarget{
			{Address: otherAddress(t).Address, Amount: 5_001},
		})
		require.True(t, errors.INSUFFICIENT_FUNDS.Is(err))
	})

	t.Run("whole balance below dust after fee", func(t *testing.T) {
		svc, indexer, _ := newTestService(t)
		indexer.fund(t, svc.account.MainAddress, 600)

		_, err := svc.Send(context.Background(), []notelib.SendTarget{
			{Address: otherAddress(t).Address, Amount: 600},
		})
		require.True(t, errors.INSUFFICIENT_FUNDS.Is(err))
	})
}

func TestSendWholeBalance(t *testing.T) {
	svc, indexer, _ := newTestService(t)
	indexer.fund(t, svc.account.MainAddress, 5_000)

	recipient := otherAddress(t)
	res, err := svc.Send(context.Background(), []notelib.SendTarget{
		{Address: recipient.Address, Amount: 5_000},
	})
	require.NoError(t, err)

	tx := indexer.tx(t, res.Txid)
	indexer.execute(t, tx)
	require.Len(t, tx.TxOut, 1)
	require.Equal(t, recipient.Script, tx.TxOut[0].PkScript)
	require.Equal(t, 5_000-res.Fee, tx.TxOut[0].Value)
}

func TestBuildCommitPayloadTransaction(t *testing.T) {
	svc, indexer, repo := newTestService(t)
	acc := svc.account
	indexer.fund(t, acc.MainAddress, 100_000)

	p, err := payload.Encode(map[string]any{"p": "n20", "op": "deploy", "tick": "TEST"}, false)
	require.NoError(t, err)
	commitAddress, err := acc.CommitAddress(p)
	require.NoError(t, err)

	tx, err := svc.BuildCommitPayloadTransaction(context.Background(), p, "", nil, nil, 0)
	require.NoError(t, err)

	// the commit address was funded first
	records, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, domain.TxKindFundCommit, records[0].Kind)

	require.Len(t, tx.NoteUtxos, 1)
	require.Equal(t, records[0].Txid, tx.NoteUtxos[0].TxID)
	require.Equal(t, commitAddress.ScriptHash, tx.NoteUtxos[0].ScriptHash)
	require.Equal(t, notelib.AddressP2TRCommitNote, tx.NoteUtxos[0].Type)

	tree, err := script.CommitNoteTree(acc.PrivateKey.PubKey().SerializeCompressed(), p, testNetwork)
	require.NoError(t, err)
	witness := tx.Tx.TxIn[0].Witness
	require.Len(t, witness, 3)
	require.Equal(t, tree.NoteLeaf.Script, []byte(witness[1]))
	require.Equal(t, acc.TokenAddress.Script, tx.Tx.TxOut[0].PkScript)
	require.Equal(t, notelib.DustLimit, tx.Tx.TxOut[0].Value)

	indexer.broadcastTx(t, tx.Tx)
	indexer.execute(t, tx.Tx)
}

func TestCommitUtxoTimeout(t *testing.T) {
	svc, indexer, _ := newTestService(t)
	indexer.fund(t, svc.account.MainAddress, 100_000)
	indexer.hideOutputs = true

	p, err := payload.Encode(map[string]any{"p": "n20", "op": "deploy", "tick": "LATE"}, false)
	require.NoError(t, err)

	_, err = svc.BuildCommitPayloadTransaction(context.Background(), p, "", nil, nil, 0)
	require.Error(t, err)
	require.True(t, errors.COMMIT_UTXO_TIMEOUT.Is(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.waitForUtxo(ctx, svc.account.TokenAddress)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMint(t *testing.T) {
	testCases := []struct {
		name    string
		req     MintRequest
		token   domain.TokenInfo
		amount  int64
		bitwork string
	}{
		{
			name:   "limit by default",
			req:    MintRequest{Tick: "NOTE"},
			token:  domain.TokenInfo{Tick: "NOTE", Max: "2100000000000000", Lim: "500000000", Dec: "8"},
			amount: 500_000_000,
		},
		{
			name:   "amount in token units",
			req:    MintRequest{Tick: "NOTE", Amount: 1.5},
			token:  domain.TokenInfo{Tick: "NOTE", Max: "2100000000000000", Lim: "500000000", Dec: "8"},
			amount: 150_000_000,
		},
		{
			name:    "bitwork of the token",
			req:     MintRequest{Tick: "POW"},
			token:   domain.TokenInfo{Tick: "POW", Max: "21000000", Lim: "1000", Dec: "0", Bitwork: "2"},
			amount:  1_000,
			bitwork: "2",
		},
		{
			name:    "bitwork of the request",
			req:     MintRequest{Tick: "NOTE", Amount: 1, Bitwork: "a"},
			token:   domain.TokenInfo{Tick: "NOTE", Max: "2100000000000000", Lim: "500000000", Dec: "8"},
			amount:  100_000_000,
			bitwork: "a",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, indexer, repo := newTestService(t)
			acc := svc.account
			indexer.fund(t, acc.MainAddress, 100_000)
			note := indexer.fund(t, acc.TokenAddress, 546)
			indexer.tokens[tc.token.Tick] = tc.token

			res, err := svc.Mint(context.Background(), tc.req)
			require.NoError(t, err)
			require.Equal(t, tc.amount, res.Amount)
			require.Equal(t, tc.bitwork, res.Bitwork)
			require.True(t, strings.HasPrefix(res.Txid, tc.bitwork))

			tx := indexer.tx(t, res.Txid)
			require.Equal(t, res.Locktime, tx.LockTime)
			require.Equal(t, note.String(), tx.TxIn[0].PreviousOutPoint.String())
			require.Equal(t, acc.TokenAddress.Script, tx.TxOut[0].PkScript)
			indexer.execute(t, tx)

			data := witnessPayload(t, tx.TxIn[0].Witness)
			require.Equal(t, "mint", data["op"])
			require.Equal(t, tc.token.Tick, data["tick"])
			require.EqualValues(t, tc.amount, data["amt"])

			records, err := repo.List(context.Background(), 1)
			require.NoError(t, err)
			require.Equal(t, domain.TxKindMint, records[0].Kind)
		})
	}

	t.Run("invalid", func(t *testing.T) {
		svc, indexer, _ := newTestService(t)
		indexer.tokens["NOTE"] = domain.TokenInfo{Tick: "NOTE", Lim: "1000", Dec: "0"}

		_, err := svc.Mint(context.Background(), MintRequest{Tick: "NOTE", Amount: 1001})
		require.ErrorContains(t, err, "exceeds the mint limit")

		_, err = svc.Mint(context.Background(), MintRequest{Tick: "MISSING"})
		require.True(t, errors.TOKEN_NOT_FOUND.Is(err))
	})
}

func TestDeploy(t *testing.T) {
	svc, indexer, repo := newTestService(t)
	acc := svc.account
	indexer.fund(t, acc.MainAddress, 100_000)
	indexer.height = 840_000

	res, err := svc.Deploy(context.Background(), DeployRequest{
		Tick: "TEST", Max: 21_000_000, Lim: 1_000, Dec: 2, Bitwork: "00", Web: "https://example.org",
	})
	require.NoError(t, err)

	tx := indexer.tx(t, res.Txid)
	require.Equal(t, acc.MainAddress.Script, tx.TxOut[0].PkScript)
	indexer.execute(t, tx)

	records, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, domain.TxKindDeploy, records[0].Kind)
	require.Equal(t, domain.TxKindFundCommit, records[1].Kind)

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(records[0].Payload), &data))
	require.EqualValues(t, 2_100_000_000, data["max"])
	require.EqualValues(t, 100_000, data["lim"])
	require.EqualValues(t, 840_000, data["start"])
	require.Equal(t, "00", data["bitwork"])
	require.Equal(t, "https://example.org", data["web"])
	require.NotContains(t, data, "sch")

	_, err = svc.Deploy(context.Background(), DeployRequest{Tick: "BAD", Max: 10, Lim: 20})
	require.Error(t, err)
}

func TestPublish(t *testing.T) {
	svc, indexer, repo := newTestService(t)
	indexer.fund(t, svc.account.MainAddress, 200_000)

	res, err := svc.Publish(context.Background(), map[string]any{
		"contract":      "NotePow",
		"md5":           "2ea5b4c2e8a7a4a6a0a3c52b8e4c8c7b",
		"file":          "/tmp/NotePow.ts",
		"sourceMapFile": "/tmp/NotePow.map",
		"hex":           strings.Repeat("51", 300),
	})
	require.NoError(t, err)

	tx := indexer.tx(t, res.Txid)
	indexer.execute(t, tx)

	// the commit leaf holds the contract without the source files
	witness := tx.TxIn[0].Witness
	leafScript := witness[len(witness)-2]
	require.NotContains(t, string(leafScript), "/tmp/NotePow")

	records, err := repo.List(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, domain.TxKindPublish, records[0].Kind)
}

func TestSendToken(t *testing.T) {
	svc, indexer, repo := newTestService(t)
	acc := svc.account
	indexer.fund(t, acc.MainAddress, 100_000)
	noteA := indexer.fundToken(t, acc.TokenAddress, "NOTE", 300)
	noteB := indexer.fundToken(t, acc.TokenAddress, "NOTE", 100)
	indexer.fundToken(t, acc.TokenAddress, "OTHER", 1_000)
	missed := indexer.fundToken(t, acc.MainAddress, "NOTE", 50)

	recipient := otherAddress(t)

	_, err := svc.SendToken(context.Background(), recipient.Address, "NOTE", 451)
	require.True(t, errors.INSUFFICIENT_FUNDS.Is(err))

	res, err := svc.SendToken(context.Background(), recipient.Address, "NOTE", 200)
	require.NoError(t, err)
	require.Equal(t, "transfer", res.TransferData["op"])

	tx := indexer.tx(t, res.Txid)
	indexer.execute(t, tx)

	inputs := make([]string, 0, len(tx.TxIn))
	for _, in := range tx.TxIn {
		inputs = append(inputs, in.PreviousOutPoint.String())
	}
	require.Equal(t, noteA.String(), inputs[0])
	require.Equal(t, noteB.String(), inputs[1])
	require.Contains(t, inputs, missed.String())

	require.Equal(t, recipient.Script, tx.TxOut[0].PkScript)
	require.Equal(t, notelib.DustLimit, tx.TxOut[0].Value)
	require.Equal(t, acc.TokenAddress.Script, tx.TxOut[1].PkScript)
	require.Equal(t, acc.MainAddress.Script, tx.TxOut[2].PkScript)

	data := witnessPayload(t, tx.TxIn[0].Witness)
	require.EqualValues(t, 200, data["amt"])

	records, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, domain.TxKindSendToken, records[0].Kind)

	_, err = svc.SendToken(context.Background(), recipient.Address, "NONE", 1)
	require.True(t, errors.NO_UTXO_FOUND.Is(err))
}

func TestAddressScript(t *testing.T) {
	svc, _, _ := newTestService(t)

	info, err := svc.AddressScript(svc.account.TokenAddress.Address)
	require.NoError(t, err)
	require.Equal(t, notelib.AddressP2TRNote, info.Type)

	other := otherAddress(t)
	info, err = svc.AddressScript(other.Address)
	require.NoError(t, err)
	require.Equal(t, other.ScriptHash, info.ScriptHash)
	require.Equal(t, notelib.AddressP2TR, info.Type)

	_, err = svc.AddressScript("bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq")
	require.Error(t, err)
}

func TestWalletQueries(t *testing.T) {
	svc, indexer, _ := newTestService(t)
	acc := svc.account
	indexer.fund(t, acc.MainAddress, 100_000)
	indexer.fund(t, acc.MainAddress, 20_000)
	indexer.fund(t, acc.TokenAddress, notelib.DustLimit)

	info, err := svc.GetInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "BTC", info.Coin)
	require.Equal(t, testNetwork.String(), info.Network)
	require.Equal(t, "m/44'/1'/0'", info.RootPath)
	require.Equal(t, acc, info.Account)

	balance, err := svc.GetBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(120_000), balance.MainAddress.Confirmed)
	require.Equal(t, int64(notelib.DustLimit), balance.TokenAddress.Confirmed)

	utxos, err := svc.ListUtxos(context.Background())
	require.NoError(t, err)
	require.Len(t, utxos, 3)
	for _, utxo := range utxos {
		if utxo.ScriptHash == acc.TokenAddress.ScriptHash {
			require.Equal(t, notelib.AddressP2TRNote, utxo.Type)
			continue
		}
		require.Equal(t, notelib.AddressP2WPKH, utxo.Type)
	}

	recipient := otherAddress(t)
	for i := 0; i < 2; i++ {
		_, err := svc.Send(context.Background(), []notelib.SendTarget{
			{Address: recipient.Address, Amount: 1_000},
		})
		require.NoError(t, err)
	}

	history, err := svc.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, history, 2)

	history, err = svc.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func newTestService(t *testing.T) (*service, *fakeIndexer, *fakeTxRepository) {
	seed := sha256.Sum256([]byte("application test key"))
	key, _ := btcec.PrivKeyFromBytes(seed[:])

	indexer := newFakeIndexer()
	repo := &fakeTxRepository{}
	svc, err := NewService(
		Config{
			Network:            testNetwork,
			CommitPollAttempts: 3,
			CommitPollInterval: time.Millisecond,
			MaxLocktime:        5_000,
		},
		&fakeKeyProvider{key: key},
		indexer,
		&fakeFeeEstimator{rates: testFeeRates},
		repo,
	)
	require.NoError(t, err)
	return svc.(*service), indexer, repo
}

func otherAddress(t *testing.T) *script.AddressInfo {
	seed := sha256.Sum256([]byte("recipient key"))
	key, _ := btcec.PrivKeyFromBytes(seed[:])
	address, err := script.P2TRAddress(key.PubKey().SerializeCompressed(), testNetwork)
	require.NoError(t, err)
	return address
}

// witnessPayload decodes the data slots of a note leaf witness.
func witnessPayload(t *testing.T, witness wire.TxWitness) map[string]any {
	require.Len(t, witness, 3+notelib.MaxDataSegments)
	var p notelib.NotePayload
	for i := range p.Data {
		p.Data[i] = hex.EncodeToString(witness[1+i])
	}
	data, err := payload.Unmarshal(p)
	require.NoError(t, err)
	return data
}

type fakeKeyProvider struct {
	key *btcec.PrivateKey
}

func (p *fakeKeyProvider) Mnemonic() string { return "" }
func (p *fakeKeyProvider) RootPath() string { return "m/44'/1'/0'" }
func (p *fakeKeyProvider) RootXpub() (string, error) {
	return "tpubfake", nil
}
func (p *fakeKeyProvider) DeriveAccount(index uint32) (*domain.Account, error) {
	return domain.NewAccount(index, fmt.Sprintf("m/44'/1'/0'/0/%d", index), p.key, testNetwork)
}

type fakeFeeEstimator struct {
	rates notelib.FeeRates
}

func (f *fakeFeeEstimator) GetFeeRates(context.Context) (*notelib.FeeRates, error) {
	rates := f.rates
	return &rates, nil
}

// fakeIndexer serves the outputs it was funded with and the ones of broadcast txs. It never
// removes spent outputs, like an indexer lagging behind the mempool.
type fakeIndexer struct {
	lock        sync.Mutex
	utxos       map[string][]notelib.TokenUtxo
	prevOuts    map[wire.OutPoint]*wire.TxOut
	txs         map[string]*wire.MsgTx
	tokens      map[string]domain.TokenInfo
	height      int64
	hideOutputs bool
	counter     int
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{
		utxos:    make(map[string][]notelib.TokenUtxo),
		prevOuts: make(map[wire.OutPoint]*wire.TxOut),
		txs:      make(map[string]*wire.MsgTx),
		tokens:   make(map[string]domain.TokenInfo),
	}
}

func (f *fakeIndexer) fund(t *testing.T, address *script.AddressInfo, value int64) notelib.Utxo {
	return f.fundToken(t, address, "", value).Utxo
}

func (f *fakeIndexer) fundToken(
	t *testing.T, address *script.AddressInfo, tick string, amount int64,
) notelib.TokenUtxo {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.counter++
	hash := chainhash.Hash(sha256.Sum256([]byte(fmt.Sprintf("funding %d", f.counter))))
	value := amount
	if tick != "" {
		value = notelib.DustLimit
	}
	utxo := notelib.TokenUtxo{
		Utxo: notelib.Utxo{
			TxID:       hash.String(),
			Satoshis:   value,
			Script:     address.ScriptHex(),
			ScriptHash: address.ScriptHash,
		},
		Tick:   tick,
		Amount: amount,
	}
	if tick == "" {
		utxo.Amount = 0
	}
	f.utxos[address.ScriptHash] = append(f.utxos[address.ScriptHash], utxo)
	f.prevOuts[*wire.NewOutPoint(&hash, 0)] = wire.NewTxOut(value, address.Script)
	return utxo
}

func (f *fakeIndexer) tx(t *testing.T, txid string) *wire.MsgTx {
	f.lock.Lock()
	defer f.lock.Unlock()
	tx, ok := f.txs[txid]
	require.True(t, ok, "tx %s not broadcast", txid)
	return tx
}

func (f *fakeIndexer) broadcastTx(t *testing.T, tx *wire.MsgTx) {
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	_, err := f.Broadcast(context.Background(), hex.EncodeToString(buf.Bytes()))
	require.NoError(t, err)
}

// execute runs every input of tx through the script engine.
func (f *fakeIndexer) execute(t *testing.T, tx *wire.MsgTx) {
	f.lock.Lock()
	defer f.lock.Unlock()

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for _, in := range tx.TxIn {
		prevOut, ok := f.prevOuts[in.PreviousOutPoint]
		require.True(t, ok, "unknown prevout %s", in.PreviousOutPoint)
		fetcher.AddPrevOut(in.PreviousOutPoint, prevOut)
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, in := range tx.TxIn {
		prevOut := f.prevOuts[in.PreviousOutPoint]
		engine, err := txscript.NewEngine(
			prevOut.PkScript, tx, i, txscript.StandardVerifyFlags, nil,
			sigHashes, prevOut.Value, fetcher,
		)
		require.NoError(t, err)
		require.NoError(t, engine.Execute(), "input %d", i)
	}
}

func (f *fakeIndexer) Health(context.Context) error { return nil }

func (f *fakeIndexer) GetBalance(_ context.Context, scriptHash string) (*domain.Balance, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	var balance domain.Balance
	for _, utxo := range f.utxos[scriptHash] {
		balance.Confirmed += utxo.Satoshis
	}
	return &balance, nil
}

func (f *fakeIndexer) GetUtxos(
	_ context.Context, scriptHashes []string, minSatoshis int64,
) ([]notelib.Utxo, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	utxos := make([]notelib.Utxo, 0)
	for _, scriptHash := range scriptHashes {
		for _, utxo := range f.utxos[scriptHash] {
			if utxo.Tick != "" || (minSatoshis > 0 && utxo.Satoshis < minSatoshis) {
				continue
			}
			utxos = append(utxos, utxo.Utxo)
		}
	}
	return utxos, nil
}

func (f *fakeIndexer) GetTokenUtxos(
	_ context.Context, scriptHashes []string, tick string, _ int64,
) ([]notelib.TokenUtxo, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	utxos := make([]notelib.TokenUtxo, 0)
	for _, scriptHash := range scriptHashes {
		for _, utxo := range f.utxos[scriptHash] {
			if utxo.Tick == tick {
				utxos = append(utxos, utxo)
			}
		}
	}
	return utxos, nil
}

func (f *fakeIndexer) Broadcast(_ context.Context, rawHex string) (string, error) {
	buf, err := hex.DecodeString(rawHex)
	if err != nil {
		return "", err
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(buf)); err != nil {
		return "", err
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	hash := tx.TxHash()
	txid := hash.String()
	f.txs[txid] = &tx
	for i, out := range tx.TxOut {
		f.prevOuts[*wire.NewOutPoint(&hash, uint32(i))] = out
		if f.hideOutputs {
			continue
		}
		scriptHash := script.ScriptHash(out.PkScript)
		f.utxos[scriptHash] = append(f.utxos[scriptHash], notelib.TokenUtxo{
			Utxo: notelib.Utxo{
				TxID:        txid,
				OutputIndex: uint32(i),
				Satoshis:    out.Value,
				Script:      hex.EncodeToString(out.PkScript),
				ScriptHash:  scriptHash,
			},
		})
	}
	return txid, nil
}

func (f *fakeIndexer) GetBestHeader(context.Context) (*domain.BlockHeader, error) {
	return &domain.BlockHeader{Height: f.height}, nil
}

func (f *fakeIndexer) GetTokenInfo(_ context.Context, tick string) (*domain.TokenInfo, error) {
	info, ok := f.tokens[tick]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (f *fakeIndexer) GetTokenList(context.Context, string) ([]domain.TokenBalance, error) {
	return nil, nil
}

func (f *fakeIndexer) GetAllTokens(context.Context) ([]domain.TokenInfo, error) {
	tokens := make([]domain.TokenInfo, 0, len(f.tokens))
	for _, token := range f.tokens {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Tick < tokens[j].Tick })
	return tokens, nil
}

type fakeTxRepository struct {
	lock    sync.Mutex
	records []domain.TxRecord
}

func (r *fakeTxRepository) Add(_ context.Context, record domain.TxRecord) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *fakeTxRepository) Get(_ context.Context, txid string) (*domain.TxRecord, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, record := range r.records {
		if record.Txid == txid {
			return &record, nil
		}
	}
	return nil, fmt.Errorf("tx %s not found", txid)
}

func (r *fakeTxRepository) List(_ context.Context, limit int) ([]domain.TxRecord, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	records := make([]domain.TxRecord, 0, len(r.records))
	for i := len(r.records) - 1; i >= 0; i-- {
		records = append(records, r.records[i])
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (r *fakeTxRepository) Close() {}
