package db

import (
	"fmt"

	"github.com/noteprotocol/note-wallet/internal/core/domain"
	badgerdb "github.com/noteprotocol/note-wallet/internal/infrastructure/db/badger"
	log "github.com/sirupsen/logrus"
)

var txStoreTypes = map[string]func(...interface{}) (domain.TxRepository, error){
	"badger": badgerdb.NewTxRepository,
}

type ServiceConfig struct {
	// DataStoreType is badger or inmemory.
	DataStoreType string
	BaseDir       string
}

// NewTxRepository opens the history store. The inmemory type is a badger store without
// directory.
func NewTxRepository(config ServiceConfig) (domain.TxRepository, error) {
	storeType := config.DataStoreType
	baseDir := config.BaseDir
	if storeType == "inmemory" {
		storeType, baseDir = "badger", ""
	}

	factory, ok := txStoreTypes[storeType]
	if !ok {
		return nil, fmt.Errorf("tx store type %s not supported", config.DataStoreType)
	}

	repo, err := factory(baseDir, log.StandardLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to open tx store: %w", err)
	}
	return repo, nil
}
