package application

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/noteprotocol/note-wallet/internal/core/domain"
	"github.com/noteprotocol/note-wallet/pkg/errors"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/bitwork"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/payload"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/txbuilder"
	log "github.com/sirupsen/logrus"
)

const n20Protocol = "n20"

// Mint mints req.Amount of the token to the token address, searching the bitwork of the token
// (or of the request) over the locktime when there is one.
func (s *service) Mint(ctx context.Context, req MintRequest) (*MintResult, error) {
	info, err := s.GetTokenInfo(ctx, req.Tick)
	if err != nil {
		return nil, err
	}
	dec, err := info.Decimals()
	if err != nil {
		return nil, err
	}
	lim, err := info.Limit()
	if err != nil {
		return nil, err
	}

	amount := int64(math.Round(req.Amount * math.Pow10(dec)))
	if amount < 0 {
		return nil, fmt.Errorf("invalid mint amount %v", req.Amount)
	}
	if amount > lim {
		return nil, fmt.Errorf("amount %d exceeds the mint limit %d of %s", amount, lim, info.Tick)
	}
	if amount == 0 {
		amount = lim
	}

	data := map[string]any{
		"p":    n20Protocol,
		"op":   "mint",
		"tick": info.Tick,
		"amt":  amount,
	}
	p, err := payload.Encode(data, false)
	if err != nil {
		return nil, err
	}

	target := req.Bitwork
	if target == "" {
		target = info.Bitwork
	}

	result := &MintResult{Tick: info.Tick, Amount: amount, Bitwork: target}
	var tx *txbuilder.FinalizedTx
	if target == "" {
		tx, err = s.BuildN20PayloadTransaction(ctx, p, "", nil, nil, 0)
		if err != nil {
			return nil, err
		}
		result.Attempts = 1
	} else {
		miner, err := bitwork.NewMiner(target)
		if err != nil {
			return nil, err
		}
		miner.MaxLocktime = s.cfg.MaxLocktime

		mined, err := miner.Mine(ctx, func(
			locktime uint32, prev *txbuilder.FinalizedTx,
		) (*txbuilder.FinalizedTx, error) {
			candidate := p
			candidate.Locktime = locktime
			if prev == nil {
				return s.BuildN20PayloadTransaction(ctx, candidate, "", nil, nil, 0)
			}
			noteUtxo := prev.NoteUtxos[0]
			return s.BuildN20PayloadTransaction(
				ctx, candidate, "", &noteUtxo, prev.PayUtxos, prev.FeeRate,
			)
		})
		if err != nil {
			return nil, err
		}
		tx = mined.Tx
		result.Locktime = mined.Locktime
		result.Attempts = mined.Attempts
	}

	broadcast, err := s.broadcast(ctx, tx, domain.TxKindMint, data)
	if err != nil {
		return nil, err
	}
	result.BroadcastResult = *broadcast
	return result, nil
}

// Deploy publishes the deploy record of a token through a commit/reveal pair paid back to the
// main address. Max and limit are given in token units.
func (s *service) Deploy(ctx context.Context, req DeployRequest) (*BroadcastResult, error) {
	if req.Tick == "" {
		return nil, fmt.Errorf("missing tick")
	}
	if req.Dec < 0 || req.Dec > 18 {
		return nil, fmt.Errorf("invalid decimals %d", req.Dec)
	}
	if req.Max <= 0 || req.Lim <= 0 || req.Lim > req.Max {
		return nil, fmt.Errorf("invalid supply: max %d, lim %d", req.Max, req.Lim)
	}
	unit := int64(math.Pow10(req.Dec))
	if req.Max > math.MaxInt64/unit {
		return nil, fmt.Errorf("max supply %d overflows with %d decimals", req.Max, req.Dec)
	}

	var start int64
	if req.Start != nil {
		start = *req.Start
	} else {
		header, err := s.indexer.GetBestHeader(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get best block: %w", err)
		}
		start = header.Height
	}

	data := map[string]any{
		"p":     n20Protocol,
		"op":    "deploy",
		"tick":  req.Tick,
		"max":   req.Max * unit,
		"lim":   req.Lim * unit,
		"dec":   req.Dec,
		"start": start,
	}
	if req.Bitwork != "" {
		if err := bitwork.Validate(req.Bitwork); err != nil {
			return nil, err
		}
		data["bitwork"] = strings.ToLower(req.Bitwork)
	}
	optional := map[string]string{
		"sch": req.Sch, "desc": req.Desc, "logo": req.Logo, "web": req.Web,
	}
	for key, value := range optional {
		if value != "" {
			data[key] = value
		}
	}

	p, err := payload.Encode(data, false)
	if err != nil {
		return nil, err
	}
	tx, err := s.BuildCommitPayloadTransaction(ctx, p, s.account.MainAddress.Address, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	return s.broadcast(ctx, tx, domain.TxKindDeploy, data)
}

// Publish stores a contract through a commit/reveal pair. Source files are stripped and the
// payload may use script element sized segments.
func (s *service) Publish(ctx context.Context, contract map[string]any) (*BroadcastResult, error) {
	if len(contract) == 0 {
		return nil, fmt.Errorf("empty contract")
	}
	data := make(map[string]any, len(contract))
	for key, value := range contract {
		if key == "file" || key == "sourceMapFile" {
			continue
		}
		data[key] = value
	}

	p, err := payload.Encode(data, true)
	if err != nil {
		return nil, err
	}
	tx, err := s.BuildCommitPayloadTransaction(ctx, p, s.account.MainAddress.Address, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	return s.broadcast(ctx, tx, domain.TxKindPublish, nil)
}

// SendToken transfers amount of tick to the recipient. Token utxos of the tick found on the
// main address are spent along as pay inputs so their balance is not lost.
func (s *service) SendToken(
	ctx context.Context, to, tick string, amount int64,
) (*TokenTransferResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("invalid token amount %d", amount)
	}
	if _, err := s.AddressScript(to); err != nil {
		return nil, err
	}

	tokenUtxos, err := s.fetchTokenUtxos(ctx, s.account.TokenAddress, tick, amount)
	if err != nil {
		return nil, err
	}
	if len(tokenUtxos) == 0 {
		return nil, errors.NO_UTXO_FOUND.New("no %s utxos on %s", tick, s.account.TokenAddress.Address).
			WithMetadata(errors.NoUtxoFoundMetadata{ScriptHash: s.account.TokenAddress.ScriptHash})
	}
	missedUtxos, err := s.fetchTokenUtxos(ctx, s.account.MainAddress, tick, 0)
	if err != nil {
		return nil, err
	}

	var balance int64
	noteUtxos := make([]notelib.Utxo, 0, len(tokenUtxos))
	for _, utxo := range tokenUtxos {
		balance += utxo.Amount
		noteUtxos = append(noteUtxos, utxo.Utxo)
	}
	for _, utxo := range missedUtxos {
		balance += utxo.Amount
	}
	if balance < amount {
		return nil, errors.INSUFFICIENT_FUNDS.New(
			"%s balance %d is lower than %d", tick, balance, amount,
		)
	}

	targets := []notelib.SendTarget{{Address: to, Amount: s.cfg.DustLimit}}
	if balance > amount {
		targets = append(targets, notelib.SendTarget{
			Address: s.account.TokenAddress.Address, Amount: s.cfg.DustLimit,
		})
	}

	data := map[string]any{
		"p":    n20Protocol,
		"op":   "transfer",
		"tick": tick,
		"amt":  amount,
	}
	p, err := payload.Encode(data, false)
	if err != nil {
		return nil, err
	}
	p.Locktime = 0

	payUtxos, err := s.fetchUtxos(ctx, s.account.MainAddress)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(payUtxos))
	for _, utxo := range payUtxos {
		seen[utxo.String()] = struct{}{}
	}
	for _, utxo := range missedUtxos {
		if _, ok := seen[utxo.String()]; ok {
			continue
		}
		payUtxos = append(payUtxos, utxo.Utxo)
	}

	feeRate, err := s.feeRate(ctx)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"tick":        tick,
		"amount":      amount,
		"balance":     balance,
		"note_inputs": len(noteUtxos),
	}).Debug("building token transfer")

	tx, err := txbuilder.BuildWithFeeRate(func(fee int64) (*txbuilder.FinalizedTx, error) {
		return txbuilder.BuildNoteTx(txbuilder.NoteParams{
			Params:    s.params(payUtxos, targets, fee, feeRate),
			NoteUtxos: noteUtxos,
			Payload:   p,
		})
	}, feeRate)
	if err != nil {
		return nil, err
	}

	broadcast, err := s.broadcast(ctx, tx, domain.TxKindSendToken, data)
	if err != nil {
		return nil, err
	}
	return &TokenTransferResult{BroadcastResult: *broadcast, TransferData: data}, nil
}
