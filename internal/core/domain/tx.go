package domain

import (
	"context"
	"time"
)

type TxKind string

const (
	TxKindSend       TxKind = "send"
	TxKindSendToken  TxKind = "send-token"
	TxKindFundCommit TxKind = "fund-commit"
	TxKindMint       TxKind = "mint"
	TxKindDeploy     TxKind = "deploy"
	TxKindPublish    TxKind = "publish"
)

// TxRecord is a broadcast transaction kept in the wallet history.
type TxRecord struct {
	Txid      string   `json:"txid"`
	Kind      TxKind   `json:"kind"`
	Hex       string   `json:"hex"`
	Fee       int64    `json:"fee"`
	FeeRate   int64    `json:"feeRate"`
	VSize     int64    `json:"vsize"`
	Payload   string   `json:"payload,omitempty"`
	Inputs    []string `json:"inputs"`
	CreatedAt int64    `json:"createdAt" badgerhold:"index"`
}

func NewTxRecord(txid string, kind TxKind) TxRecord {
	return TxRecord{Txid: txid, Kind: kind, CreatedAt: time.Now().Unix()}
}

type TxRepository interface {
	Add(ctx context.Context, record TxRecord) error
	Get(ctx context.Context, txid string) (*TxRecord, error)
	// List returns the most recent records first, all of them when limit is not positive.
	List(ctx context.Context, limit int) ([]TxRecord, error)
	Close()
}
