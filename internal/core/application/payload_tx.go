package application

import (
	"context"
	"time"

	"github.com/noteprotocol/note-wallet/internal/core/domain"
	"github.com/noteprotocol/note-wallet/pkg/errors"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/script"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/txbuilder"
	log "github.com/sirupsen/logrus"
)

// BuildN20PayloadTransaction reveals p through the note leaf of the token address. The note
// utxo is the first utxo of the token address when not given, funded first if there is none.
// Pay utxos default to the main address ones and the fee rate to the configured tier.
func (s *service) BuildN20PayloadTransaction(
	ctx context.Context, p notelib.NotePayload, toAddress string,
	noteUtxo *notelib.Utxo, payUtxos []notelib.Utxo, feeRate int64,
) (*txbuilder.FinalizedTx, error) {
	if toAddress == "" {
		toAddress = s.account.TokenAddress.Address
	}

	if noteUtxo == nil {
		utxo, err := s.noteUtxo(ctx, s.account.TokenAddress)
		if err != nil {
			return nil, err
		}
		noteUtxo = utxo
	}
	utxo := *noteUtxo
	utxo.Type = notelib.AddressP2TRNote
	noteUtxo = &utxo

	payUtxos, feeRate, err := s.payInputs(ctx, noteUtxo, payUtxos, feeRate)
	if err != nil {
		return nil, err
	}

	targets := []notelib.SendTarget{{Address: toAddress, Amount: s.cfg.DustLimit}}
	return txbuilder.BuildWithFeeRate(func(fee int64) (*txbuilder.FinalizedTx, error) {
		return txbuilder.BuildNoteTx(txbuilder.NoteParams{
			Params:    s.params(payUtxos, targets, fee, feeRate),
			NoteUtxos: []notelib.Utxo{*noteUtxo},
			Payload:   p,
		})
	}, feeRate)
}

// BuildCommitPayloadTransaction spends the commit note address of p through the leaf committing
// to it. The commit address is funded with dust first when it holds no utxo.
func (s *service) BuildCommitPayloadTransaction(
	ctx context.Context, p notelib.NotePayload, toAddress string,
	noteUtxo *notelib.Utxo, payUtxos []notelib.Utxo, feeRate int64,
) (*txbuilder.FinalizedTx, error) {
	commitAddress, err := s.account.CommitAddress(p)
	if err != nil {
		return nil, err
	}
	if toAddress == "" {
		toAddress = s.account.TokenAddress.Address
	}

	if noteUtxo == nil {
		utxo, err := s.noteUtxo(ctx, commitAddress)
		if err != nil {
			return nil, err
		}
		noteUtxo = utxo
	}
	utxo := *noteUtxo
	utxo.Type = notelib.AddressP2TRCommitNote
	noteUtxo = &utxo

	payUtxos, feeRate, err = s.payInputs(ctx, noteUtxo, payUtxos, feeRate)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"commit_address": commitAddress.Address,
		"note_utxo":      noteUtxo.String(),
	}).Debug("building commit payload tx")

	targets := []notelib.SendTarget{{Address: toAddress, Amount: s.cfg.DustLimit}}
	return txbuilder.BuildWithFeeRate(func(fee int64) (*txbuilder.FinalizedTx, error) {
		return txbuilder.BuildCommitNoteTx(txbuilder.CommitNoteParams{
			Params:   s.params(payUtxos, targets, fee, feeRate),
			NoteUtxo: *noteUtxo,
			Payload:  p,
		})
	}, feeRate)
}

func (s *service) payInputs(
	ctx context.Context, noteUtxo *notelib.Utxo, payUtxos []notelib.Utxo, feeRate int64,
) ([]notelib.Utxo, int64, error) {
	if payUtxos == nil {
		utxos, err := s.fetchUtxos(ctx, s.account.MainAddress)
		if err != nil {
			return nil, 0, err
		}
		payUtxos = make([]notelib.Utxo, 0, len(utxos))
		for _, utxo := range utxos {
			if utxo.ScriptHash == noteUtxo.ScriptHash || utxo.String() == noteUtxo.String() {
				continue
			}
			payUtxos = append(payUtxos, utxo)
		}
	}
	if feeRate <= 0 {
		rate, err := s.feeRate(ctx)
		if err != nil {
			return nil, 0, err
		}
		feeRate = rate
	}
	return payUtxos, feeRate, nil
}

// noteUtxo returns the first utxo of address, funding it with dust and waiting for the indexer
// to see it when there is none.
func (s *service) noteUtxo(
	ctx context.Context, address *script.AddressInfo,
) (*notelib.Utxo, error) {
	utxos, err := s.fetchUtxos(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(utxos) > 0 {
		return &utxos[0], nil
	}

	fundTx, err := s.buildCoinTx(ctx, []notelib.SendTarget{
		{Address: address.Address, Amount: s.cfg.DustLimit},
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.broadcast(ctx, fundTx, domain.TxKindFundCommit, map[string]any{
		"address": address.Address,
	}); err != nil {
		return nil, err
	}

	return s.waitForUtxo(ctx, address)
}

func (s *service) waitForUtxo(
	ctx context.Context, address *script.AddressInfo,
) (*notelib.Utxo, error) {
	for i := 0; i < s.cfg.CommitPollAttempts; i++ {
		utxos, err := s.fetchUtxos(ctx, address)
		if err != nil {
			return nil, err
		}
		if len(utxos) > 0 {
			return &utxos[0], nil
		}

		log.WithFields(log.Fields{
			"address": address.Address,
			"attempt": i + 1,
		}).Debug("waiting for note utxo")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.CommitPollInterval):
		}
	}

	return nil, errors.COMMIT_UTXO_TIMEOUT.New(
		"no utxo on %s after %d attempts", address.Address, s.cfg.CommitPollAttempts,
	).WithMetadata(errors.CommitUtxoTimeoutMetadata{
		Address: address.Address, Attempts: s.cfg.CommitPollAttempts,
	})
}
