package inventory

import (
	"context"

	"github.com/meatco/stockledger/internal/domain/inventory"
)

// TransactionScope provides transactional access to inventory repositories.
// When a function is executed within a transaction scope, all repository operations
// will be part of the same database transaction and will be committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error

	// Repositories returns repositories that run outside any transaction, for reads.
	Repositories() TransactionalRepositories
}

// TransactionalRepositories provides access to all inventory repositories within a transaction.
// All repositories returned share the same underlying database transaction.
//
// A movement append, the lot it consumes and the projection update it implies
// are always written through the same TransactionalRepositories so that no
// reader can observe one without the others.
type TransactionalRepositories interface {
	// LotRepo returns the stock lot repository scoped to the current transaction
	LotRepo() inventory.StockLotRepository
	// MovementRepo returns the append-only ledger scoped to the current transaction
	MovementRepo() inventory.StockMovementRepository
	// InventoryRepo returns the projection repository scoped to the current transaction
	InventoryRepo() inventory.ProductInventoryRepository
}
