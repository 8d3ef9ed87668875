package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/meatco/stockledger/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultAllocationReplayTTL is how long a processed reference is remembered by the fast path
const DefaultAllocationReplayTTL = 24 * time.Hour

// AllocationService is the FIFO allocation engine
type AllocationService struct {
	serviceCore
	idempotency shared.IdempotencyStore
	replayTTL   time.Duration
}

// NewAllocationService creates a new AllocationService
func NewAllocationService(txScope TransactionScope, locker ProductLocker, logger *zap.Logger) *AllocationService {
	return &AllocationService{
		serviceCore: newServiceCore(txScope, locker, logger),
		replayTTL:   DefaultAllocationReplayTTL,
	}
}

// SetIdempotencyStore enables the replay fast path for referenced allocations
func (s *AllocationService) SetIdempotencyStore(store shared.IdempotencyStore, ttl time.Duration) {
	s.idempotency = store
	if ttl > 0 {
		s.replayTTL = ttl
	}
}

// AllocateOutbound consumes the requested quantity from active lots, oldest
// receipt first. Each lot take commits on its own together with its out
// movement and projection update. Whatever the lots cannot cover is recorded as
// one lot-unknown out movement and returned as Shortage; insufficient lots never
// fail the call.
//
// A repeated reference (type, id) for the same product returns the movements
// already recorded with Replayed set. When an earlier attempt stopped part way,
// the repeat allocates only the quantity not yet accounted for and sets Resumed.
// A failed step returns the steps committed before it together with the error.
func (s *AllocationService) AllocateOutbound(ctx context.Context, cmd AllocateCommand) (*AllocationResult, error) {
	if !cmd.Quantity.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Requested quantity must be positive")
	}
	if err := inventory.ValidateProductID(cmd.ProductID); err != nil {
		return nil, err
	}
	if !cmd.Reference.Type.IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Invalid reference type %q", cmd.Reference.Type))
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "allocate_outbound",
		telemetry.WithAttribute("product_id", cmd.ProductID),
		telemetry.WithAttribute("quantity", cmd.Quantity.String()),
	)
	defer span.End()

	replayKey := s.replayKey(cmd)
	if replayed, err := s.replayFromFastPath(ctx, cmd, replayKey); err != nil || replayed != nil {
		return replayed, err
	}

	started := s.now()
	var result *AllocationResult
	err := s.withProductLock(ctx, cmd.ProductID, func() error {
		// Deadlines are honored up to here. Once the walk begins it runs to
		// completion so no partially applied allocation is abandoned mid-way.
		if err := ctx.Err(); err != nil {
			return err
		}
		walkCtx := context.WithoutCancel(ctx)

		var prior *AllocationResult
		if replayKey != "" {
			existing, err := s.findRecorded(walkCtx, cmd)
			if err != nil {
				return err
			}
			if existing != nil && existing.Accounted().GreaterThanOrEqual(cmd.Quantity) {
				s.logger.Info("allocation replayed",
					zap.String("product_id", cmd.ProductID),
					zap.String("reference", cmd.Reference.Key()),
					zap.Int("movements", len(existing.Movements)),
				)
				result = existing
				return nil
			}
			if existing != nil {
				s.logger.Warn("resuming incomplete allocation",
					zap.String("product_id", cmd.ProductID),
					zap.String("reference", cmd.Reference.Key()),
					zap.Stringer("requested", cmd.Quantity),
					zap.Stringer("accounted", existing.Accounted()),
				)
				prior = existing
			}
		}

		var err error
		result, err = s.walk(walkCtx, cmd, prior)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return result, err
	}

	if result.Replayed {
		telemetry.SetAttribute(span, "replayed", true)
		return result, nil
	}

	if replayKey != "" && s.idempotency != nil {
		if _, err := s.idempotency.MarkProcessed(ctx, replayKey, s.replayTTL); err != nil {
			s.logger.Warn("failed to mark allocation as processed",
				zap.String("key", replayKey),
				zap.Error(err),
			)
		}
	}

	telemetry.SetAttributes(span,
		"allocated", result.Allocated.String(),
		"shortage", result.Shortage.String(),
		"movements", len(result.Movements),
	)
	telemetry.SetOK(span)
	s.metrics.RecordAllocation(ctx, cmd.ProductID, cmd.Quantity, result.Shortage, len(result.Movements), s.now().Sub(started))
	return result, nil
}

// walk executes the FIFO plan for whatever prior has not accounted for. The
// caller must hold the product lock. On a failed step the returned result holds
// every movement committed so far.
func (s *AllocationService) walk(ctx context.Context, cmd AllocateCommand, prior *AllocationResult) (*AllocationResult, error) {
	result := &AllocationResult{
		Movements: make([]inventory.StockMovement, 0, 4),
		Allocated: decimal.Zero,
		Shortage:  decimal.Zero,
	}
	if prior != nil {
		result.Movements = append(result.Movements, prior.Movements...)
		result.Allocated = prior.Allocated
		result.Shortage = prior.Shortage
		result.Resumed = true
	}
	remaining := cmd.Quantity.Sub(result.Accounted())

	lots, err := s.txScope.Repositories().LotRepo().FindActiveByProduct(ctx, cmd.ProductID)
	if err != nil {
		return partial(result), err
	}
	plan, err := inventory.PlanFIFO(remaining, lots)
	if err != nil {
		return partial(result), err
	}

	for _, take := range plan.Takes {
		movement, err := s.executeTake(ctx, cmd, take)
		if err != nil {
			s.logger.Error("allocation step failed",
				zap.String("product_id", cmd.ProductID),
				zap.String("lot_number", take.LotNumber),
				zap.Int("committed_steps", len(result.Movements)),
				zap.Error(err),
			)
			return partial(result), fmt.Errorf("allocate from lot %s: %w", take.LotNumber, err)
		}
		result.Movements = append(result.Movements, *movement)
		result.Allocated = result.Allocated.Add(take.Amount)
	}

	if plan.Shortage.IsPositive() {
		movement, err := s.executeShortage(ctx, cmd, plan.Shortage)
		if err != nil {
			s.logger.Error("recording allocation shortage failed",
				zap.String("product_id", cmd.ProductID),
				zap.Stringer("shortage", plan.Shortage),
				zap.Int("committed_steps", len(result.Movements)),
				zap.Error(err),
			)
			return partial(result), fmt.Errorf("record shortage: %w", err)
		}
		result.Movements = append(result.Movements, *movement)
		result.Shortage = result.Shortage.Add(plan.Shortage)

		s.logger.Warn("outbound allocation short of lot stock",
			zap.String("product_id", cmd.ProductID),
			zap.Stringer("requested", cmd.Quantity),
			zap.Stringer("allocated", result.Allocated),
			zap.Stringer("shortage", result.Shortage),
			zap.String("reference", cmd.Reference.Key()),
		)
		s.publish(ctx, inventory.NewStockShortageDetectedEvent(cmd.ProductID, cmd.Quantity, result.Allocated, result.Shortage, cmd.Reference))
	}

	s.logger.Info("outbound allocated",
		zap.String("product_id", cmd.ProductID),
		zap.Stringer("requested", cmd.Quantity),
		zap.Stringer("remaining", remaining),
		zap.Int("lots", len(plan.Takes)),
	)
	return result, nil
}

// partial hides a result that recorded nothing
func partial(result *AllocationResult) *AllocationResult {
	if len(result.Movements) == 0 {
		return nil
	}
	return result
}

// executeTake consumes one lot and records its out movement atomically
func (s *AllocationService) executeTake(ctx context.Context, cmd AllocateCommand, take inventory.LotTake) (*inventory.StockMovement, error) {
	var (
		movement *inventory.StockMovement
		inv      *inventory.ProductInventory
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		lot, err := repos.LotRepo().FindByIDForUpdate(ctx, take.LotID)
		if err != nil {
			return err
		}
		if err := lot.Consume(take.Amount, s.now()); err != nil {
			return err
		}
		if err := repos.LotRepo().Save(ctx, lot); err != nil {
			return err
		}

		traceability := cmd.TraceabilityNumber
		if traceability == "" {
			traceability = lot.TraceabilityNumber
		}
		builder := inventory.NewMovementBuilder(cmd.ProductID, inventory.MovementTypeOut, take.Amount).
			WithProduct(cmd.ProductName, cmd.Unit).
			WithUnitPrice(cmd.UnitPrice).
			WithLot(lot.LotNumber, lot.ExpiryDate).
			WithTraceability(traceability).
			WithReference(cmd.Reference).
			WithOrigin(inventory.MovementOriginAllocation).
			WithNotes(cmd.Notes)

		movement, inv, err = s.recordMovement(ctx, repos, cmd.ProductID, movementEntry{builder: builder})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMovement(ctx, movement.MovementType.String())
	s.publish(ctx, drainEvents(inv)...)
	return movement, nil
}

// executeShortage records the uncovered remainder as a lot-unknown out movement
func (s *AllocationService) executeShortage(ctx context.Context, cmd AllocateCommand, shortage decimal.Decimal) (*inventory.StockMovement, error) {
	notes := inventory.NoteLotUnknown
	if cmd.Notes != "" {
		notes = cmd.Notes + "; " + notes
	}
	builder := inventory.NewMovementBuilder(cmd.ProductID, inventory.MovementTypeOut, shortage).
		WithProduct(cmd.ProductName, cmd.Unit).
		WithUnitPrice(cmd.UnitPrice).
		WithTraceability(cmd.TraceabilityNumber).
		WithReference(cmd.Reference).
		WithOrigin(inventory.MovementOriginAllocation).
		WithNotes(notes)

	var (
		movement *inventory.StockMovement
		inv      *inventory.ProductInventory
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		movement, inv, err = s.recordMovement(ctx, repos, cmd.ProductID, movementEntry{builder: builder})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMovement(ctx, movement.MovementType.String())
	s.publish(ctx, drainEvents(inv)...)
	return movement, nil
}

func (s *AllocationService) replayKey(cmd AllocateCommand) string {
	if cmd.Reference.Key() == "" {
		return ""
	}
	return "allocation:" + cmd.ProductID + ":" + cmd.Reference.Key()
}

// replayFromFastPath answers a repeated reference without taking the product lock
func (s *AllocationService) replayFromFastPath(ctx context.Context, cmd AllocateCommand, key string) (*AllocationResult, error) {
	if key == "" || s.idempotency == nil {
		return nil, nil
	}
	processed, err := s.idempotency.IsProcessed(ctx, key)
	if err != nil {
		s.logger.Warn("idempotency lookup failed, falling back to ledger",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, nil
	}
	if !processed {
		return nil, nil
	}
	recorded, err := s.findRecorded(ctx, cmd)
	if err != nil || recorded == nil || recorded.Accounted().LessThan(cmd.Quantity) {
		// Incomplete or unreadable records go through the locked path
		return nil, nil
	}
	return recorded, nil
}

// findRecorded rebuilds the result of an allocation already in the ledger.
// Only movements written by allocation count; a direct ledger entry that reuses
// the reference does not.
func (s *AllocationService) findRecorded(ctx context.Context, cmd AllocateCommand) (*AllocationResult, error) {
	movements, err := s.txScope.Repositories().MovementRepo().FindByReference(ctx, cmd.ProductID, cmd.Reference)
	if err != nil {
		return nil, err
	}

	result := &AllocationResult{
		Movements: make([]inventory.StockMovement, 0, len(movements)),
		Allocated: decimal.Zero,
		Shortage:  decimal.Zero,
		Replayed:  true,
	}
	for _, m := range movements {
		if m.MovementType != inventory.MovementTypeOut || !m.IsAllocation() {
			continue
		}
		result.Movements = append(result.Movements, m)
		if m.HasLot() {
			result.Allocated = result.Allocated.Add(m.Quantity)
		} else {
			result.Shortage = result.Shortage.Add(m.Quantity)
		}
	}
	if len(result.Movements) == 0 {
		return nil, nil
	}
	return result, nil
}
