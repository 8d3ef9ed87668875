package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockLotRepository defines the interface for stock lot persistence.
// Lots are never deleted, so there is no Delete method.
type StockLotRepository interface {
	// Create inserts a new lot. Returns shared.ErrAlreadyExists on a duplicate lot number.
	Create(ctx context.Context, lot *StockLot) error

	// Save persists remaining quantity and status changes of an existing lot
	Save(ctx context.Context, lot *StockLot) error

	// FindByID finds a lot by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*StockLot, error)

	// FindByIDForUpdate finds a lot and holds its row until the transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*StockLot, error)

	// FindByLotNumber finds a lot by its unique lot number
	FindByLotNumber(ctx context.Context, lotNumber string) (*StockLot, error)

	// FindActiveByProduct returns active lots of a product in receipt order
	FindActiveByProduct(ctx context.Context, productID string) ([]StockLot, error)

	// FindActivePastExpiry returns active lots whose expiry date is before today
	FindActivePastExpiry(ctx context.Context, today time.Time) ([]StockLot, error)

	// FindActiveExpiringBetween returns active lots with stock expiring in [from, to], earliest first
	FindActiveExpiringBetween(ctx context.Context, from, to time.Time) ([]StockLot, error)

	// NextSequence returns the next receipt sequence for a product.
	// Callers must hold the product lock.
	NextSequence(ctx context.Context, productID string) (int64, error)
}

// MovementQuery filters a product's movement history
type MovementQuery struct {
	// Since keeps movements created at or after this instant
	Since *time.Time
	// Limit keeps only the most recent N movements; 0 means all
	Limit int
}

// StockMovementRepository defines the interface for the append-only ledger.
// There is deliberately no update or delete.
type StockMovementRepository interface {
	// Append inserts a movement
	Append(ctx context.Context, movement *StockMovement) error

	// FindByProduct returns a product's movements in append order (oldest first)
	FindByProduct(ctx context.Context, productID string, query MovementQuery) ([]StockMovement, error)

	// FindByReference returns the movements of a product recorded for a reference
	FindByReference(ctx context.Context, productID string, ref Reference) ([]StockMovement, error)

	// NextSequence returns the next append sequence for a product.
	// Callers must hold the product lock.
	NextSequence(ctx context.Context, productID string) (int64, error)

	// SumDeltas returns the signed sum of a product's movement deltas and the movement count
	SumDeltas(ctx context.Context, productID string) (decimal.Decimal, int64, error)
}

// ProductInventoryRepository defines the interface for the aggregate projection
type ProductInventoryRepository interface {
	// FindByProduct finds the projection row of a product
	FindByProduct(ctx context.Context, productID string) (*ProductInventory, error)

	// FindByProductForUpdate finds the projection row and locks it for the
	// rest of the transaction where the database supports row locks
	FindByProductForUpdate(ctx context.Context, productID string) (*ProductInventory, error)

	// Save creates or updates the projection row
	Save(ctx context.Context, inventory *ProductInventory) error

	// FindAll returns every tracked product ordered by product ID
	FindAll(ctx context.Context) ([]ProductInventory, error)
}
