package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noteprotocol/note-wallet/internal/core/domain"
	"github.com/noteprotocol/note-wallet/internal/core/ports"
	"github.com/noteprotocol/note-wallet/pkg/errors"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/script"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/txbuilder"
	log "github.com/sirupsen/logrus"
)

const (
	defaultCommitPollAttempts = 10
	defaultCommitPollInterval = time.Second
	defaultOutpointLockExpiry = 10 * time.Minute
)

type Service interface {
	GetInfo(ctx context.Context) (*WalletInfo, error)
	GetBalance(ctx context.Context) (*WalletBalance, error)
	ListUtxos(ctx context.Context) ([]notelib.Utxo, error)
	ListTokenUtxos(ctx context.Context, tick string) ([]notelib.TokenUtxo, error)
	Send(ctx context.Context, targets []notelib.SendTarget) (*BroadcastResult, error)
	SendToken(ctx context.Context, to, tick string, amount int64) (*TokenTransferResult, error)
	Mint(ctx context.Context, req MintRequest) (*MintResult, error)
	Deploy(ctx context.Context, req DeployRequest) (*BroadcastResult, error)
	Publish(ctx context.Context, contract map[string]any) (*BroadcastResult, error)
	BuildN20PayloadTransaction(
		ctx context.Context, p notelib.NotePayload, toAddress string,
		noteUtxo *notelib.Utxo, payUtxos []notelib.Utxo, feeRate int64,
	) (*txbuilder.FinalizedTx, error)
	BuildCommitPayloadTransaction(
		ctx context.Context, p notelib.NotePayload, toAddress string,
		noteUtxo *notelib.Utxo, payUtxos []notelib.Utxo, feeRate int64,
	) (*txbuilder.FinalizedTx, error)
	GetTokenInfo(ctx context.Context, tick string) (*domain.TokenInfo, error)
	GetTokenList(ctx context.Context, address string) ([]domain.TokenBalance, error)
	GetAllTokens(ctx context.Context) ([]domain.TokenInfo, error)
	GetBestBlock(ctx context.Context) (*domain.BlockHeader, error)
	AddressScript(address string) (*script.AddressInfo, error)
	History(ctx context.Context, limit int) ([]domain.TxRecord, error)
	Close()
}

type service struct {
	cfg          Config
	keyProvider  ports.KeyProvider
	indexer      ports.Indexer
	feeEstimator ports.FeeEstimator
	txRepo       domain.TxRepository
	locker       *outpointLocker

	account *domain.Account
}

func NewService(
	cfg Config,
	keyProvider ports.KeyProvider,
	indexer ports.Indexer,
	feeEstimator ports.FeeEstimator,
	txRepo domain.TxRepository,
) (Service, error) {
	if cfg.DustLimit <= 0 {
		cfg.DustLimit = notelib.DustLimit
	}
	if cfg.CommitPollAttempts <= 0 {
		cfg.CommitPollAttempts = defaultCommitPollAttempts
	}
	if cfg.CommitPollInterval <= 0 {
		cfg.CommitPollInterval = defaultCommitPollInterval
	}
	if cfg.OutpointLockExpiry <= 0 {
		cfg.OutpointLockExpiry = defaultOutpointLockExpiry
	}
	if cfg.MaxLocktime == 0 {
		cfg.MaxLocktime = notelib.MaxLocktime
	}
	if cfg.FeeTier == "" {
		cfg.FeeTier = notelib.FeeTierAverage
	}

	account, err := keyProvider.DeriveAccount(cfg.AccountIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to derive account %d: %w", cfg.AccountIndex, err)
	}

	log.WithFields(log.Fields{
		"network":       cfg.Network,
		"account":       account.Path,
		"main_address":  account.MainAddress.Address,
		"token_address": account.TokenAddress.Address,
	}).Debug("wallet loaded")

	return &service{
		cfg:          cfg,
		keyProvider:  keyProvider,
		indexer:      indexer,
		feeEstimator: feeEstimator,
		txRepo:       txRepo,
		locker:       newOutpointLocker(cfg.OutpointLockExpiry),
		account:      account,
	}, nil
}

func (s *service) GetInfo(_ context.Context) (*WalletInfo, error) {
	xpub, err := s.keyProvider.RootXpub()
	if err != nil {
		return nil, fmt.Errorf("failed to get root xpub: %w", err)
	}
	return &WalletInfo{
		Coin:     "BTC",
		Network:  s.cfg.Network.String(),
		RootPath: s.keyProvider.RootPath(),
		RootXpub: xpub,
		Account:  s.account,
	}, nil
}

func (s *service) GetBalance(ctx context.Context) (*WalletBalance, error) {
	main, err := s.indexer.GetBalance(ctx, s.account.MainAddress.ScriptHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get main address balance: %w", err)
	}
	token, err := s.indexer.GetBalance(ctx, s.account.TokenAddress.ScriptHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get token address balance: %w", err)
	}
	return &WalletBalance{MainAddress: *main, TokenAddress: *token}, nil
}

func (s *service) ListUtxos(ctx context.Context) ([]notelib.Utxo, error) {
	return s.fetchUtxos(ctx, s.account.MainAddress, s.account.TokenAddress)
}

func (s *service) ListTokenUtxos(ctx context.Context, tick string) ([]notelib.TokenUtxo, error) {
	return s.fetchTokenUtxos(ctx, s.account.TokenAddress, tick, 0)
}

// Send pays the targets with the utxos of the main address.
func (s *service) Send(
	ctx context.Context, targets []notelib.SendTarget,
) (*BroadcastResult, error) {
	tx, err := s.buildCoinTx(ctx, targets)
	if err != nil {
		return nil, err
	}
	return s.broadcast(ctx, tx, domain.TxKindSend, nil)
}

func (s *service) buildCoinTx(
	ctx context.Context, targets []notelib.SendTarget,
) (*txbuilder.FinalizedTx, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("missing send targets")
	}

	payUtxos, err := s.fetchUtxos(ctx, s.account.MainAddress)
	if err != nil {
		return nil, err
	}
	if len(payUtxos) == 0 {
		return nil, errors.NO_UTXO_FOUND.New("no utxos on %s", s.account.MainAddress.Address).
			WithMetadata(errors.NoUtxoFoundMetadata{ScriptHash: s.account.MainAddress.ScriptHash})
	}
	feeRate, err := s.feeRate(ctx)
	if err != nil {
		return nil, err
	}

	return txbuilder.BuildWithFeeRate(func(fee int64) (*txbuilder.FinalizedTx, error) {
		return txbuilder.BuildCoinTx(s.params(payUtxos, targets, fee, feeRate))
	}, feeRate)
}

func (s *service) GetTokenInfo(ctx context.Context, tick string) (*domain.TokenInfo, error) {
	info, err := s.indexer.GetTokenInfo(ctx, tick)
	if err != nil {
		return nil, fmt.Errorf("failed to get token info: %w", err)
	}
	if info == nil || info.Tick == "" {
		return nil, errors.TOKEN_NOT_FOUND.New("token %s not found", tick).
			WithMetadata(errors.TokenMetadata{Tick: tick})
	}
	return info, nil
}

// GetTokenList lists the token balances of address, of the token address when empty.
func (s *service) GetTokenList(
	ctx context.Context, address string,
) ([]domain.TokenBalance, error) {
	scriptHash := s.account.TokenAddress.ScriptHash
	if address != "" {
		info, err := s.AddressScript(address)
		if err != nil {
			return nil, err
		}
		scriptHash = info.ScriptHash
	}
	return s.indexer.GetTokenList(ctx, scriptHash)
}

func (s *service) GetAllTokens(ctx context.Context) ([]domain.TokenInfo, error) {
	return s.indexer.GetAllTokens(ctx)
}

func (s *service) GetBestBlock(ctx context.Context) (*domain.BlockHeader, error) {
	return s.indexer.GetBestHeader(ctx)
}

func (s *service) AddressScript(address string) (*script.AddressInfo, error) {
	switch address {
	case s.account.MainAddress.Address:
		return s.account.MainAddress, nil
	case s.account.TokenAddress.Address:
		return s.account.TokenAddress, nil
	}
	return script.DecodeAddress(address, s.cfg.Network)
}

func (s *service) History(ctx context.Context, limit int) ([]domain.TxRecord, error) {
	return s.txRepo.List(ctx, limit)
}

func (s *service) Close() {
	s.txRepo.Close()
}

func (s *service) params(
	payUtxos []notelib.Utxo, targets []notelib.SendTarget, fee, feeRate int64,
) txbuilder.Params {
	return txbuilder.Params{
		Key:           s.account.PrivateKey,
		Network:       s.cfg.Network,
		PayUtxos:      payUtxos,
		Targets:       targets,
		ChangeAddress: s.account.MainAddress.Address,
		Fee:           fee,
		FeeRate:       feeRate,
		DustLimit:     s.cfg.DustLimit,
	}
}

func (s *service) feeRate(ctx context.Context) (int64, error) {
	rates, err := s.feeEstimator.GetFeeRates(ctx)
	if err != nil {
		return 0, err
	}
	rate := rates.Rate(s.cfg.FeeTier)
	if rate <= 0 {
		return 0, errors.FEE_SERVICE_UNAVAILABLE.New("invalid %s fee rate %d", s.cfg.FeeTier, rate)
	}
	return rate, nil
}

// broadcast publishes tx, locks the outpoints it spends and records it.
func (s *service) broadcast(
	ctx context.Context, tx *txbuilder.FinalizedTx, kind domain.TxKind, data map[string]any,
) (*BroadcastResult, error) {
	txid, err := s.indexer.Broadcast(ctx, tx.Hex)
	if err != nil {
		return nil, err
	}
	if txid == "" {
		txid = tx.TxID
	}

	inputs := make([]string, 0, len(tx.Tx.TxIn))
	outpoints := make([]notelib.Utxo, 0, len(tx.Tx.TxIn))
	outpoints = append(outpoints, tx.NoteUtxos...)
	outpoints = append(outpoints, tx.PayUtxos...)
	for _, in := range tx.Tx.TxIn {
		inputs = append(inputs, in.PreviousOutPoint.String())
	}
	if err := s.locker.lock(ctx, outpoints...); err != nil {
		log.WithError(err).Warn("failed to lock spent outpoints")
	}

	record := domain.NewTxRecord(txid, kind)
	record.Hex = tx.Hex
	record.Fee = tx.Fee
	record.FeeRate = tx.FeeRate
	record.VSize = tx.VSize
	record.Inputs = inputs
	if data != nil {
		buf, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload data: %w", err)
		}
		record.Payload = string(buf)
	}
	if err := s.txRepo.Add(ctx, record); err != nil {
		log.WithError(err).Warnf("failed to record tx %s", txid)
	}

	log.WithFields(log.Fields{
		"txid":     txid,
		"kind":     kind,
		"fee":      tx.Fee,
		"fee_rate": tx.FeeRate,
		"vsize":    tx.VSize,
	}).Info("transaction broadcast")

	return &BroadcastResult{Txid: txid, Fee: tx.Fee, FeeRate: tx.FeeRate, VSize: tx.VSize}, nil
}
