package persistence

import (
	"context"

	appinv "github.com/meatco/stockledger/internal/application/inventory"
	"github.com/meatco/stockledger/internal/domain/inventory"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// A lot update, the movement it implies and the projection change commit or
// roll back together.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepositories{db: tx})
	})
}

// Repositories returns repositories bound to the pool, for reads outside a transaction.
func (s *GormTransactionScope) Repositories() appinv.TransactionalRepositories {
	return &gormRepositories{db: s.db}
}

type gormRepositories struct {
	db *gorm.DB
}

func (r *gormRepositories) LotRepo() inventory.StockLotRepository {
	return NewGormStockLotRepository(r.db)
}

func (r *gormRepositories) MovementRepo() inventory.StockMovementRepository {
	return NewGormStockMovementRepository(r.db)
}

func (r *gormRepositories) InventoryRepo() inventory.ProductInventoryRepository {
	return NewGormProductInventoryRepository(r.db)
}

var (
	_ appinv.TransactionScope          = (*GormTransactionScope)(nil)
	_ appinv.TransactionalRepositories = (*gormRepositories)(nil)
)
