package application

import (
	"context"
	"fmt"

	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	"github.com/noteprotocol/note-wallet/pkg/note-lib/script"
)

// fetchUtxos returns the unlocked utxos of the addresses, typed after the address they pay.
func (s *service) fetchUtxos(
	ctx context.Context, addresses ...*script.AddressInfo,
) ([]notelib.Utxo, error) {
	scriptHashes := make([]string, 0, len(addresses))
	byScriptHash := make(map[string]*script.AddressInfo, len(addresses))
	for _, address := range addresses {
		scriptHashes = append(scriptHashes, address.ScriptHash)
		byScriptHash[address.ScriptHash] = address
	}

	utxos, err := s.indexer.GetUtxos(ctx, scriptHashes, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch utxos: %w", err)
	}

	for i, utxo := range utxos {
		if utxo.ScriptHash == "" && len(addresses) == 1 {
			utxos[i].ScriptHash = addresses[0].ScriptHash
		}
		address, ok := byScriptHash[utxos[i].ScriptHash]
		if !ok {
			continue
		}
		utxos[i].Type = address.Type
		if utxos[i].Script == "" {
			utxos[i].Script = address.ScriptHex()
		}
	}
	return s.locker.filter(ctx, utxos), nil
}

func (s *service) fetchTokenUtxos(
	ctx context.Context, address *script.AddressInfo, tick string, amount int64,
) ([]notelib.TokenUtxo, error) {
	tokenUtxos, err := s.indexer.GetTokenUtxos(ctx, []string{address.ScriptHash}, tick, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s utxos: %w", tick, err)
	}

	utxos := make([]notelib.Utxo, 0, len(tokenUtxos))
	for i := range tokenUtxos {
		tokenUtxos[i].Type = address.Type
		tokenUtxos[i].ScriptHash = address.ScriptHash
		if tokenUtxos[i].Script == "" {
			tokenUtxos[i].Script = address.ScriptHex()
		}
		utxos = append(utxos, tokenUtxos[i].Utxo)
	}

	unlocked := s.locker.filter(ctx, utxos)
	if len(unlocked) == len(utxos) {
		return tokenUtxos, nil
	}
	keep := make(map[string]struct{}, len(unlocked))
	for _, utxo := range unlocked {
		keep[utxo.String()] = struct{}{}
	}
	filtered := make([]notelib.TokenUtxo, 0, len(unlocked))
	for _, tokenUtxo := range tokenUtxos {
		if _, ok := keep[tokenUtxo.String()]; ok {
			filtered = append(filtered, tokenUtxo)
		}
	}
	return filtered, nil
}
