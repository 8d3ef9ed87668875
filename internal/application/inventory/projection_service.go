package inventory

import (
	"context"
	"errors"
	"strings"

	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProjectionService maintains the per-product current stock figure
type ProjectionService struct {
	serviceCore
	defaults inventory.TrackingSettings
}

// NewProjectionService creates a new ProjectionService
func NewProjectionService(txScope TransactionScope, locker ProductLocker, logger *zap.Logger) *ProjectionService {
	return &ProjectionService{
		serviceCore: newServiceCore(txScope, locker, logger),
		defaults:    inventory.DefaultTrackingSettings(),
	}
}

// SetDefaults overrides the settings applied when a product starts being tracked
func (s *ProjectionService) SetDefaults(settings inventory.TrackingSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.defaults = settings
	return nil
}

// Defaults returns the settings applied to newly tracked products
func (s *ProjectionService) Defaults() inventory.TrackingSettings {
	return s.defaults
}

// resolveSettings merges optional overrides onto base
func resolveSettings(base inventory.TrackingSettings, safety *decimal.Decimal, location *inventory.StorageLocation) inventory.TrackingSettings {
	if safety != nil {
		base.SafetyStock = *safety
	}
	if location != nil && *location != "" {
		base.Location = *location
	}
	return base
}

// Receive appends an in movement and increments current stock, creating the
// projection row with the supplied or default settings when absent
func (s *ProjectionService) Receive(ctx context.Context, cmd ReceiveCommand) (*inventory.StockMovement, error) {
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

	builder := inventory.NewMovementBuilder(cmd.ProductID, inventory.MovementTypeIn, cmd.Quantity).
		WithProduct(cmd.ProductName, cmd.Unit).
		WithUnitPrice(cmd.UnitPrice).
		WithLotNumber(cmd.LotNumber).
		WithExpiryDate(cmd.ExpiryDate).
		WithTraceability(cmd.TraceabilityNumber).
		WithReference(cmd.Reference).
		WithNotes(cmd.Notes)

	var (
		movement *inventory.StockMovement
		inv      *inventory.ProductInventory
	)
	err := s.withProductLock(ctx, cmd.ProductID, func() error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			var err error
			movement, inv, err = s.recordMovement(ctx, repos, cmd.ProductID, movementEntry{
				builder:  builder,
				settings: &settings,
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock received",
		zap.String("product_id", cmd.ProductID),
		zap.Stringer("quantity", cmd.Quantity),
		zap.Stringer("current_stock", inv.CurrentStock),
	)
	s.metrics.RecordMovement(ctx, movement.MovementType.String())
	s.publish(ctx, drainEvents(inv)...)
	return movement, nil
}

// AdjustTo sets current stock to newQuantity by recording a compensating
// adjust movement carrying the signed difference
func (s *ProjectionService) AdjustTo(ctx context.Context, productID string, newQuantity decimal.Decimal, reason string) (*inventory.StockMovement, error) {
	if newQuantity.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Adjusted quantity cannot be negative")
	}
	if err := inventory.ValidateProductID(productID); err != nil {
		return nil, err
	}

	notes := strings.TrimSpace(reason)
	if notes == "" {
		notes = "manual stock correction"
	}
	builder := inventory.NewMovementBuilder(productID, inventory.MovementTypeAdjust, newQuantity).
		WithReference(inventory.Reference{Type: inventory.ReferenceTypeStockCount}).
		WithNotes(notes)

	var (
		movement *inventory.StockMovement
		inv      *inventory.ProductInventory
	)
	err := s.withProductLock(ctx, productID, func() error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			if _, err := repos.InventoryRepo().FindByProductForUpdate(ctx, productID); err != nil {
				return err
			}
			var err error
			movement, inv, err = s.recordMovement(ctx, repos, productID, movementEntry{builder: builder})
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock adjusted",
		zap.String("product_id", productID),
		zap.Stringer("target", newQuantity),
		zap.Stringer("delta", movement.Delta),
		zap.String("reason", notes),
	)
	s.metrics.RecordMovement(ctx, movement.MovementType.String())
	s.publish(ctx, drainEvents(inv)...)
	return movement, nil
}

// CurrentStock returns the projected stock of a product
func (s *ProjectionService) CurrentStock(ctx context.Context, productID string) (decimal.Decimal, error) {
	inv, err := s.GetInventory(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return inv.CurrentStock, nil
}

// GetInventory returns the projection row of a product
func (s *ProjectionService) GetInventory(ctx context.Context, productID string) (*inventory.ProductInventory, error) {
	if err := inventory.ValidateProductID(productID); err != nil {
		return nil, err
	}
	return s.txScope.Repositories().InventoryRepo().FindByProduct(ctx, productID)
}

// EnableTracking starts tracking a product with zero stock, or updates the
// settings of a product already tracked
func (s *ProjectionService) EnableTracking(ctx context.Context, productID string, cmd SettingsCommand) (*inventory.ProductInventory, error) {
	return s.saveSettings(ctx, productID, cmd, true)
}

// UpdateSettings changes safety stock or location of a tracked product
func (s *ProjectionService) UpdateSettings(ctx context.Context, productID string, cmd SettingsCommand) (*inventory.ProductInventory, error) {
	return s.saveSettings(ctx, productID, cmd, false)
}

func (s *ProjectionService) saveSettings(ctx context.Context, productID string, cmd SettingsCommand, createIfMissing bool) (*inventory.ProductInventory, error) {
	if err := inventory.ValidateProductID(productID); err != nil {
		return nil, err
	}

	var inv *inventory.ProductInventory
	err := s.withProductLock(ctx, productID, func() error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			now := s.now()
			existing, err := repos.InventoryRepo().FindByProductForUpdate(ctx, productID)
			switch {
			case err == nil:
				if err := existing.UpdateSettings(resolveSettings(existing.Settings(), cmd.SafetyStock, cmd.Location), now); err != nil {
					return err
				}
				inv = existing
			case errors.Is(err, shared.ErrNotFound) && createIfMissing:
				created, err := inventory.NewProductInventory(productID, resolveSettings(s.defaults, cmd.SafetyStock, cmd.Location), now)
				if err != nil {
					return err
				}
				inv = created
			default:
				return err
			}
			return repos.InventoryRepo().Save(ctx, inv)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("inventory settings saved",
		zap.String("product_id", productID),
		zap.Stringer("safety_stock", inv.SafetyStock),
		zap.String("location", inv.Location.String()),
	)
	s.publish(ctx, drainEvents(inv)...)
	return inv, nil
}

// Reconcile compares the projected stock with the signed sum of the ledger
func (s *ProjectionService) Reconcile(ctx context.Context, productID string) (*ReconcileReport, error) {
	inv, err := s.GetInventory(ctx, productID)
	if err != nil {
		return nil, err
	}
	sum, count, err := s.txScope.Repositories().MovementRepo().SumDeltas(ctx, productID)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		ProductID:      productID,
		ProjectedStock: inv.CurrentStock,
		LedgerStock:    sum,
		Drift:          inv.CurrentStock.Sub(sum),
		MovementCount:  count,
	}
	if !report.Consistent() {
		s.logger.Error("projection drifted from ledger",
			zap.String("product_id", productID),
			zap.Stringer("projected", report.ProjectedStock),
			zap.Stringer("ledger", report.LedgerStock),
			zap.Stringer("drift", report.Drift),
		)
	}
	return report, nil
}
