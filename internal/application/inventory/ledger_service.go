package inventory

import (
	"context"

	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"go.uber.org/zap"
)

// LedgerService is the append-only movement ledger
type LedgerService struct {
	serviceCore
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(txScope TransactionScope, locker ProductLocker, logger *zap.Logger) *LedgerService {
	return &LedgerService{serviceCore: newServiceCore(txScope, locker, logger)}
}

// Append records one movement and updates the projection in the same
// transaction. An out or discard naming a lot also consumes that lot.
func (s *LedgerService) Append(ctx context.Context, cmd AppendMovementCommand) (*inventory.StockMovement, error) {
	if err := inventory.ValidateProductID(cmd.ProductID); err != nil {
		return nil, err
	}
	builder := newBuilderFromAppend(cmd)

	var (
		movement *inventory.StockMovement
		inv      *inventory.ProductInventory
	)
	err := s.withProductLock(ctx, cmd.ProductID, func() error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			var err error
			movement, inv, err = s.recordMovement(ctx, repos, cmd.ProductID, movementEntry{
				builder:    builder,
				consumeLot: true,
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("movement appended",
		zap.String("product_id", movement.ProductID),
		zap.String("movement_type", movement.MovementType.String()),
		zap.Stringer("quantity", movement.Quantity),
		zap.Stringer("delta", movement.Delta),
		zap.Stringer("balance_after", movement.BalanceAfter),
	)
	s.metrics.RecordMovement(ctx, movement.MovementType.String())
	s.publish(ctx, drainEvents(inv)...)
	return movement, nil
}

func newBuilderFromAppend(cmd AppendMovementCommand) *inventory.MovementBuilder {
	return inventory.NewMovementBuilder(cmd.ProductID, cmd.MovementType, cmd.Quantity).
		WithProduct(cmd.ProductName, cmd.Unit).
		WithUnitPrice(cmd.UnitPrice).
		WithLotNumber(cmd.LotNumber).
		WithExpiryDate(cmd.ExpiryDate).
		WithTraceability(cmd.TraceabilityNumber).
		WithReference(cmd.Reference).
		WithNotes(cmd.Notes)
}

// QueryByProduct returns a product's movements oldest first
func (s *LedgerService) QueryByProduct(ctx context.Context, productID string, query inventory.MovementQuery) ([]inventory.StockMovement, error) {
	if err := inventory.ValidateProductID(productID); err != nil {
		return nil, err
	}
	if query.Limit < 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Limit cannot be negative")
	}
	return s.txScope.Repositories().MovementRepo().FindByProduct(ctx, productID, query)
}
