package urchain

import (
	"encoding/json"
	"strings"
)

type tokenUtxoResponse struct {
	TxID        string      `json:"txId"`
	OutputIndex uint32      `json:"outputIndex"`
	Satoshis    int64       `json:"satoshis"`
	Script      string      `json:"script"`
	ScriptHash  string      `json:"scriptHash"`
	Amount      json.Number `json:"amount"`
}

// broadcastResponse carries the txid either in result or in txId depending on the indexer
// version.
type broadcastResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	TxID    string          `json:"txId,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

func (r broadcastResponse) txid() string {
	if r.TxID != "" {
		return r.TxID
	}
	var txid string
	if err := json.Unmarshal(r.Result, &txid); err == nil {
		return txid
	}
	return ""
}

func (r broadcastResponse) errorMessage() string {
	if len(r.Error) == 0 {
		return "transaction rejected"
	}
	var msg string
	if err := json.Unmarshal(r.Error, &msg); err == nil {
		return msg
	}
	var detailed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Error, &detailed); err == nil && detailed.Message != "" {
		return detailed.Message
	}
	return strings.TrimSpace(string(r.Error))
}
