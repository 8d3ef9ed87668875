package inventory

import (
	"context"

	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"go.uber.org/zap"
)

// ReceiptService books purchase receipts: it opens the lot, appends the in
// movement and updates the projection in one transaction
type ReceiptService struct {
	serviceCore
	policy   inventory.ShelfLifePolicy
	suffix   inventory.LotSuffixFunc
	defaults inventory.TrackingSettings
}

// NewReceiptService creates a new ReceiptService with the default shelf-life policy
func NewReceiptService(txScope TransactionScope, locker ProductLocker, logger *zap.Logger) *ReceiptService {
	return &ReceiptService{
		serviceCore: newServiceCore(txScope, locker, logger),
		policy:      inventory.DefaultShelfLifePolicy(),
		defaults:    inventory.DefaultTrackingSettings(),
	}
}

// SetShelfLifePolicy replaces the category shelf-life table
func (s *ReceiptService) SetShelfLifePolicy(policy inventory.ShelfLifePolicy) {
	if policy != nil {
		s.policy = policy
	}
}

// SetLotSuffix overrides the random suffix used for generated lot numbers
func (s *ReceiptService) SetLotSuffix(fn inventory.LotSuffixFunc) {
	s.suffix = fn
}

// SetDefaults overrides the settings applied when a product starts being tracked
func (s *ReceiptService) SetDefaults(settings inventory.TrackingSettings) {
	s.defaults = settings
}

// ReceivePurchase records goods received from a supplier
func (s *ReceiptService) ReceivePurchase(ctx context.Context, cmd ReceivePurchaseCommand) (*ReceiptResult, error) {
	if !cmd.Quantity.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Received quantity must be positive")
	}
	if err := inventory.ValidateProductID(cmd.ProductID); err != nil {
		return nil, err
	}
	settings := resolveSettings(s.defaults, cmd.SafetyStock, cmd.Location)
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	receiptDate := cmd.ReceiptDate
	if receiptDate.IsZero() {
		receiptDate = now
	}
	expiry := s.policy.ExpiryFor(cmd.Category, receiptDate)
	if cmd.ExpiryDate != nil && !cmd.ExpiryDate.IsZero() {
		expiry = inventory.NormalizeDate(*cmd.ExpiryDate)
	}

	var (
		result ReceiptResult
		inv    *inventory.ProductInventory
	)
	err := s.withProductLock(ctx, cmd.ProductID, func() error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			lot, err := openLotInTx(ctx, repos, OpenLotCommand{
				ProductID:          cmd.ProductID,
				Quantity:           cmd.Quantity,
				ExpiryDate:         expiry,
				TraceabilityNumber: cmd.TraceabilityNumber,
				SupplierID:         cmd.SupplierID,
				SupplierName:       cmd.SupplierName,
				ReceivedAt:         receiptDate,
			}, now, s.suffix)
			if err != nil {
				return err
			}

			builder := inventory.NewMovementBuilder(cmd.ProductID, inventory.MovementTypeIn, cmd.Quantity).
				WithProduct(cmd.ProductName, cmd.Unit).
				WithUnitPrice(cmd.UnitPrice).
				WithLot(lot.LotNumber, lot.ExpiryDate).
				WithTraceability(cmd.TraceabilityNumber).
				WithReference(cmd.Reference)

			movement, updated, err := s.recordMovement(ctx, repos, cmd.ProductID, movementEntry{
				builder:  builder,
				settings: &settings,
			})
			if err != nil {
				return err
			}
			result = ReceiptResult{Lot: lot, Movement: movement}
			inv = updated
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("purchase received",
		zap.String("product_id", cmd.ProductID),
		zap.String("lot_number", result.Lot.LotNumber),
		zap.Stringer("quantity", cmd.Quantity),
		zap.Time("expiry_date", result.Lot.ExpiryDate),
		zap.String("reference", cmd.Reference.Key()),
	)
	s.metrics.RecordMovement(ctx, result.Movement.MovementType.String())
	events := append([]shared.DomainEvent{inventory.NewLotOpenedEvent(result.Lot)}, drainEvents(inv)...)
	s.publish(ctx, events...)
	return &result, nil
}
