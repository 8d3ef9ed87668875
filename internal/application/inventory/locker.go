package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ProductLocker serializes every read-modify-write against one product.
// Different products never block each other.
type ProductLocker interface {
	// Lock blocks until the product is held or ctx is done.
	// The returned function releases the lock and must be called exactly once.
	Lock(ctx context.Context, productID string) (unlock func(), err error)
}

// LedgerMetrics receives measurements from the ledger services
type LedgerMetrics interface {
	RecordMovement(ctx context.Context, movementType string)
	RecordAllocation(ctx context.Context, productID string, requested, shortage decimal.Decimal, lots int, elapsed time.Duration)
	RecordLotsExpired(ctx context.Context, expired, failed int)
}

type noopMetrics struct{}

func (noopMetrics) RecordMovement(context.Context, string) {}

func (noopMetrics) RecordAllocation(context.Context, string, decimal.Decimal, decimal.Decimal, int, time.Duration) {
}

func (noopMetrics) RecordLotsExpired(context.Context, int, int) {}
