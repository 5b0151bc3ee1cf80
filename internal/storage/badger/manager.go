package badger

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/interfaces"
)

// Manager owns the database connection and its typed stores
type Manager struct {
	db       *BadgerDB
	articles interfaces.ArticleStorage
	logger   arbor.ILogger
}

// NewManager opens the database and wires the stores
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:       db,
		articles: NewArticleStorage(db, logger),
		logger:   logger,
	}, nil
}

// ArticleStorage returns the article store
func (m *Manager) ArticleStorage() interfaces.ArticleStorage {
	return m.articles
}

// Ping verifies the store is reachable with a no-op read transaction
func (m *Manager) Ping(ctx context.Context) error {
	if m.db == nil || m.db.Store() == nil {
		return fmt.Errorf("badger store is not initialized")
	}
	if err := m.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		return nil
	}); err != nil {
		return fmt.Errorf("badger ping failed: %w", err)
	}
	return nil
}

// RunGC reclaims value-log space. Badger rewrites at most one log file per
// call, so loop until it reports nothing left to rewrite.
func (m *Manager) RunGC() error {
	db := m.db.Store().Badger()
	rewritten := 0
	for {
		err := db.RunValueLogGC(0.5)
		if err == badgerdb.ErrNoRewrite {
			break
		}
		if err != nil {
			return fmt.Errorf("value log GC failed: %w", err)
		}
		rewritten++
	}

	m.logger.Debug().Int("files_rewritten", rewritten).Msg("Value log GC finished")
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}

var _ interfaces.StorageManager = (*Manager)(nil)
