package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"go.uber.org/zap"
)

// serviceCore carries the collaborators every ledger service needs
type serviceCore struct {
	txScope        TransactionScope
	locker         ProductLocker
	eventPublisher shared.EventPublisher
	metrics        LedgerMetrics
	logger         *zap.Logger
	now            func() time.Time
}

func newServiceCore(txScope TransactionScope, locker ProductLocker, logger *zap.Logger) serviceCore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return serviceCore{
		txScope: txScope,
		locker:  locker,
		metrics: noopMetrics{},
		logger:  logger,
		now:     time.Now,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (c *serviceCore) SetEventPublisher(publisher shared.EventPublisher) {
	c.eventPublisher = publisher
}

// SetMetrics sets the metrics recorder
func (c *serviceCore) SetMetrics(metrics LedgerMetrics) {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	c.metrics = metrics
}

// SetClock overrides the time source
func (c *serviceCore) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// withProductLock runs fn while holding the product lock
func (c *serviceCore) withProductLock(ctx context.Context, productID string, fn func() error) error {
	unlock, err := c.locker.Lock(ctx, productID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// publish hands events to the bus after commit. Failures are logged, never propagated.
func (c *serviceCore) publish(ctx context.Context, events ...shared.DomainEvent) {
	if c.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := c.eventPublisher.Publish(ctx, events...); err != nil {
		c.logger.Warn("failed to publish domain events",
			zap.Int("count", len(events)),
			zap.Error(err),
		)
	}
}

// movementEntry describes one ledger append executed by recordMovement
type movementEntry struct {
	builder *inventory.MovementBuilder
	// consumeLot also deducts an out/discard movement from the lot it names
	consumeLot bool
	// settings are used when the projection row has to be created
	settings *inventory.TrackingSettings
}

// recordMovement appends a movement and folds it into the projection inside
// an open transaction. The caller must hold the product lock.
func (c *serviceCore) recordMovement(ctx context.Context, repos TransactionalRepositories, productID string, entry movementEntry) (*inventory.StockMovement, *inventory.ProductInventory, error) {
	now := c.now()

	inv, err := c.loadOrCreateInventory(ctx, repos, productID, entry.settings, now)
	if err != nil {
		return nil, nil, err
	}

	seq, err := repos.MovementRepo().NextSequence(ctx, productID)
	if err != nil {
		return nil, nil, err
	}

	movement, err := entry.builder.Build(inv.CurrentStock, seq, now)
	if err != nil {
		return nil, nil, err
	}

	if entry.consumeLot && movement.MovementType.IsDecrease() && movement.HasLot() {
		if err := c.consumeNamedLot(ctx, repos, movement, now); err != nil {
			return nil, nil, err
		}
	}

	if err := repos.MovementRepo().Append(ctx, movement); err != nil {
		return nil, nil, err
	}
	if err := inv.ApplyMovement(movement, now); err != nil {
		return nil, nil, err
	}
	if err := repos.InventoryRepo().Save(ctx, inv); err != nil {
		return nil, nil, err
	}
	return movement, inv, nil
}

func (c *serviceCore) loadOrCreateInventory(ctx context.Context, repos TransactionalRepositories, productID string, settings *inventory.TrackingSettings, now time.Time) (*inventory.ProductInventory, error) {
	inv, err := repos.InventoryRepo().FindByProductForUpdate(ctx, productID)
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	s := inventory.DefaultTrackingSettings()
	if settings != nil {
		s = *settings
	}
	return inventory.NewProductInventory(productID, s, now)
}

func (c *serviceCore) consumeNamedLot(ctx context.Context, repos TransactionalRepositories, movement *inventory.StockMovement, now time.Time) error {
	named, err := repos.LotRepo().FindByLotNumber(ctx, *movement.LotNumber)
	if err != nil {
		return err
	}
	lot, err := repos.LotRepo().FindByIDForUpdate(ctx, named.ID)
	if err != nil {
		return err
	}
	if lot.ProductID != movement.ProductID {
		return shared.NewDomainError(shared.CodeInvalidInput,
			fmt.Sprintf("Lot %s belongs to product %s", lot.LotNumber, lot.ProductID))
	}
	if err := lot.Consume(movement.Quantity, now); err != nil {
		return err
	}
	if movement.ExpiryDate == nil {
		expiry := lot.ExpiryDate
		movement.ExpiryDate = &expiry
	}
	if movement.TraceabilityNumber == "" {
		movement.TraceabilityNumber = lot.TraceabilityNumber
	}
	return repos.LotRepo().Save(ctx, lot)
}

// drainEvents collects and clears pending events of the projection
func drainEvents(inv *inventory.ProductInventory) []shared.DomainEvent {
	if inv == nil {
		return nil
	}
	events := inv.GetDomainEvents()
	inv.ClearDomainEvents()
	return events
}
