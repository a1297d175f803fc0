package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/noteprotocol/note-wallet/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const txStoreDir = "txs"

type txRepository struct {
	store *badgerhold.Store
}

// NewTxRepository expects the base directory (empty for an in-memory store) and an optional
// badger logger.
func NewTxRepository(config ...interface{}) (domain.TxRepository, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, txStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open tx store: %s", err)
	}

	return &txRepository{store}, nil
}

func (r *txRepository) Add(_ context.Context, record domain.TxRecord) error {
	if record.Txid == "" {
		return fmt.Errorf("missing txid")
	}
	if err := r.store.Upsert(record.Txid, record); err != nil {
		return fmt.Errorf("failed to store tx %s: %w", record.Txid, err)
	}
	return nil
}

func (r *txRepository) Get(_ context.Context, txid string) (*domain.TxRecord, error) {
	var record domain.TxRecord
	if err := r.store.Get(txid, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("tx %s not found", txid)
		}
		return nil, fmt.Errorf("failed to get tx %s: %w", txid, err)
	}
	return &record, nil
}

func (r *txRepository) List(_ context.Context, limit int) ([]domain.TxRecord, error) {
	query := (&badgerhold.Query{}).SortBy("CreatedAt", "Txid").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []domain.TxRecord
	if err := r.store.Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list txs: %w", err)
	}
	return records, nil
}

func (r *txRepository) Close() {
	// nolint:all
	r.store.Close()
}
