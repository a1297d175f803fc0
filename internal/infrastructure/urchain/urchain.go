package urchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/noteprotocol/note-wallet/internal/core/domain"
	"github.com/noteprotocol/note-wallet/internal/core/ports"
	"github.com/noteprotocol/note-wallet/pkg/errors"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	log "github.com/sirupsen/logrus"
)

const defaultTimeout = 30 * time.Second

type urchain struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// New creates a client of the urchain indexer at url authenticated with apiKey.
func New(url, apiKey string) ports.Indexer {
	return &urchain{
		url:        strings.TrimSuffix(url, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

func (u *urchain) Health(ctx context.Context) error {
	if _, err := u.makeRequest(ctx, http.MethodGet, "/health", nil); err != nil {
		return fmt.Errorf("indexer is not healthy: %w", err)
	}
	return nil
}

func (u *urchain) GetBalance(ctx context.Context, scriptHash string) (*domain.Balance, error) {
	var balance domain.Balance
	if err := u.post(ctx, "/balance", map[string]any{"scriptHash": scriptHash}, &balance); err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &balance, nil
}

func (u *urchain) GetUtxos(
	ctx context.Context, scriptHashes []string, minSatoshis int64,
) ([]notelib.Utxo, error) {
	body := map[string]any{"scriptHashs": scriptHashes}
	if minSatoshis > 0 {
		body["satoshis"] = minSatoshis
	}

	var utxos []notelib.Utxo
	if err := u.post(ctx, "/utxos", body, &utxos); err != nil {
		return nil, fmt.Errorf("failed to get utxos: %w", err)
	}
	return utxos, nil
}

func (u *urchain) GetTokenUtxos(
	ctx context.Context, scriptHashes []string, tick string, amount int64,
) ([]notelib.TokenUtxo, error) {
	body := map[string]any{"scriptHashs": scriptHashes, "tick": tick}
	if amount > 0 {
		body["amount"] = amount
	}

	var resp []tokenUtxoResponse
	if err := u.post(ctx, "/token-utxos", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to get token utxos: %w", err)
	}

	utxos := make([]notelib.TokenUtxo, 0, len(resp))
	for _, r := range resp {
		amount, err := r.Amount.Int64()
		if err != nil {
			return nil, fmt.Errorf("invalid token amount %q for %s:%d", r.Amount, r.TxID, r.OutputIndex)
		}
		utxos = append(utxos, notelib.TokenUtxo{
			Utxo: notelib.Utxo{
				TxID:        r.TxID,
				OutputIndex: r.OutputIndex,
				Satoshis:    r.Satoshis,
				Script:      r.Script,
				ScriptHash:  r.ScriptHash,
				Type:        notelib.AddressP2TRNote,
			},
			Tick:   tick,
			Amount: amount,
		})
	}
	return utxos, nil
}

// Broadcast publishes the raw tx and returns its txid. A rejection by the node is reported as
// BROADCAST_FAILED.
func (u *urchain) Broadcast(ctx context.Context, rawHex string) (string, error) {
	var resp broadcastResponse
	if err := u.post(ctx, "/broadcast", map[string]any{"rawHex": rawHex}, &resp); err != nil {
		return "", errors.BROADCAST_FAILED.Wrap(err)
	}
	if !resp.Success {
		return "", errors.BROADCAST_FAILED.New("%s", resp.errorMessage()).
			WithMetadata(errors.BroadcastMetadata{Txid: resp.txid()})
	}

	txid := resp.txid()
	log.WithField("txid", txid).Debug("transaction accepted by indexer")
	return txid, nil
}

func (u *urchain) GetBestHeader(ctx context.Context) (*domain.BlockHeader, error) {
	var header domain.BlockHeader
	if err := u.post(ctx, "/best-header", nil, &header); err != nil {
		return nil, fmt.Errorf("failed to get best header: %w", err)
	}
	return &header, nil
}

func (u *urchain) GetTokenInfo(ctx context.Context, tick string) (*domain.TokenInfo, error) {
	data, err := u.makeRequest(ctx, http.MethodPost, "/token-info", jsonBody(map[string]any{"tick": tick}))
	if err != nil {
		return nil, fmt.Errorf("failed to get token info: %w", err)
	}
	if isNull(data) {
		return nil, nil
	}

	var info domain.TokenInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse token info: %w", err)
	}
	return &info, nil
}

func (u *urchain) GetTokenList(ctx context.Context, scriptHash string) ([]domain.TokenBalance, error) {
	var list []domain.TokenBalance
	if err := u.post(ctx, "/token-list", map[string]any{"scriptHash": scriptHash}, &list); err != nil {
		return nil, fmt.Errorf("failed to get token list: %w", err)
	}
	return list, nil
}

func (u *urchain) GetAllTokens(ctx context.Context) ([]domain.TokenInfo, error) {
	var tokens []domain.TokenInfo
	if err := u.post(ctx, "/all-n20-tokens", nil, &tokens); err != nil {
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}
	return tokens, nil
}

func (u *urchain) post(ctx context.Context, endpoint string, body map[string]any, out any) error {
	if body == nil {
		body = map[string]any{}
	}
	data, err := u.makeRequest(ctx, http.MethodPost, endpoint, jsonBody(body))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response of %s: %w", endpoint, err)
	}
	return nil
}

// makeRequest handles HTTP requests to the indexer API with auth headers and error handling.
func (u *urchain) makeRequest(
	ctx context.Context, method, endpoint string, body io.Reader,
) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.url+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}
	if len(bodyBytes) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	return bodyBytes, nil
}

func jsonBody(body map[string]any) io.Reader {
	// maps of plain values always encode
	buf, _ := json.Marshal(body)
	return bytes.NewReader(buf)
}

func isNull(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}"))
}
