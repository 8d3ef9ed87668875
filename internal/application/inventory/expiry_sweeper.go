package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"go.uber.org/zap"
)

// ExpirySweeper retires lots past their expiry date. It never writes to the
// ledger or the projection; discarding expired goods stays a manual movement.
type ExpirySweeper struct {
	serviceCore
}

// NewExpirySweeper creates a new ExpirySweeper
func NewExpirySweeper(txScope TransactionScope, locker ProductLocker, logger *zap.Logger) *ExpirySweeper {
	return &ExpirySweeper{serviceCore: newServiceCore(txScope, locker, logger)}
}

// Sweep marks every active lot whose expiry date is before today as expired.
// A failure on one lot is logged and counted; the sweep continues.
func (s *ExpirySweeper) Sweep(ctx context.Context, today time.Time) (*SweepResult, error) {
	if today.IsZero() {
		today = s.now()
	}
	today = inventory.NormalizeDate(today)

	result := &SweepResult{ProcessedAt: s.now()}

	candidates, err := s.txScope.Repositories().LotRepo().FindActivePastExpiry(ctx, today)
	if err != nil {
		s.logger.Error("failed to find lots past expiry", zap.Error(err))
		return nil, err
	}

	result.Candidates = len(candidates)
	if result.Candidates == 0 {
		s.logger.Debug("no lots past expiry")
		return result, nil
	}

	for i := range candidates {
		candidate := &candidates[i]
		expired, err := s.expireLot(ctx, candidate, today)
		if err != nil {
			s.logger.Error("failed to expire lot",
				zap.String("product_id", candidate.ProductID),
				zap.String("lot_number", candidate.LotNumber),
				zap.Error(err),
			)
			result.Failed++
			continue
		}
		if expired != nil {
			result.Expired++
			s.publish(ctx, inventory.NewLotExpiredEvent(expired))
		}
	}

	s.logger.Info("expiry sweep completed",
		zap.Time("today", today),
		zap.Int("candidates", result.Candidates),
		zap.Int("expired", result.Expired),
		zap.Int("failed", result.Failed),
	)
	s.metrics.RecordLotsExpired(ctx, result.Expired, result.Failed)
	return result, nil
}

// expireLot re-reads the lot under its product lock and marks it expired.
// It returns nil when the lot changed state since the scan.
func (s *ExpirySweeper) expireLot(ctx context.Context, candidate *inventory.StockLot, today time.Time) (*inventory.StockLot, error) {
	var expired *inventory.StockLot
	err := s.withProductLock(ctx, candidate.ProductID, func() error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			lot, err := repos.LotRepo().FindByIDForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if !lot.IsPastExpiry(today) || !lot.MarkExpired(s.now()) {
				return nil
			}
			if err := repos.LotRepo().Save(ctx, lot); err != nil {
				return err
			}
			expired = lot
			return nil
		})
	})
	return expired, err
}

// ListExpiringWithin returns active lots with stock that expire within the
// next days days, soonest first. Lots already past expiry are excluded.
func (s *ExpirySweeper) ListExpiringWithin(ctx context.Context, days int) ([]ExpiringLot, error) {
	if days < 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Days cannot be negative")
	}
	today := inventory.NormalizeDate(s.now())
	lots, err := s.txScope.Repositories().LotRepo().FindActiveExpiringBetween(ctx, today, today.AddDate(0, 0, days))
	if err != nil {
		return nil, err
	}

	expiring := make([]ExpiringLot, 0, len(lots))
	for _, lot := range lots {
		if !lot.IsActive() || !lot.HasStock() {
			continue
		}
		remaining := lot.DaysUntilExpiry(today)
		if remaining < 0 || remaining > days {
			continue
		}
		expiring = append(expiring, ExpiringLot{Lot: lot, DaysRemaining: remaining})
	}
	sort.SliceStable(expiring, func(i, j int) bool {
		if expiring[i].DaysRemaining != expiring[j].DaysRemaining {
			return expiring[i].DaysRemaining < expiring[j].DaysRemaining
		}
		return expiring[i].Lot.Sequence < expiring[j].Lot.Sequence
	})
	return expiring, nil
}
