package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxLotNumberAttempts bounds retries when a generated lot number collides
const maxLotNumberAttempts = 5

// LotService is the lot store: it opens, consumes and retires lots
type LotService struct {
	serviceCore
	suffix inventory.LotSuffixFunc
}

// NewLotService creates a new LotService
func NewLotService(txScope TransactionScope, locker ProductLocker, logger *zap.Logger) *LotService {
	return &LotService{
		serviceCore: newServiceCore(txScope, locker, logger),
	}
}

// SetLotSuffix overrides the random suffix used for generated lot numbers
func (s *LotService) SetLotSuffix(fn inventory.LotSuffixFunc) {
	s.suffix = fn
}

// OpenLot opens a new active lot. It records no movement; receipts that should
// also reach the ledger go through ReceiptService.
func (s *LotService) OpenLot(ctx context.Context, cmd OpenLotCommand) (*inventory.StockLot, error) {
	if !cmd.Quantity.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Lot quantity must be positive")
	}
	if err := inventory.ValidateProductID(cmd.ProductID); err != nil {
		return nil, err
	}

	var lot *inventory.StockLot
	err := s.withProductLock(ctx, cmd.ProductID, func() error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			var err error
			lot, err = openLotInTx(ctx, repos, cmd, s.now(), s.suffix)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("lot opened",
		zap.String("product_id", lot.ProductID),
		zap.String("lot_number", lot.LotNumber),
		zap.Stringer("quantity", lot.InitialQuantity),
		zap.Int64("sequence", lot.Sequence),
	)
	s.publish(ctx, inventory.NewLotOpenedEvent(lot))
	return lot, nil
}

// openLotInTx assigns the next receipt sequence and inserts the lot.
// The caller must hold the product lock.
func openLotInTx(ctx context.Context, repos TransactionalRepositories, cmd OpenLotCommand, now time.Time, suffix inventory.LotSuffixFunc) (*inventory.StockLot, error) {
	receivedAt := cmd.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}

	lotNumber, err := resolveLotNumber(ctx, repos.LotRepo(), cmd.LotNumber, cmd.ProductID, receivedAt, suffix)
	if err != nil {
		return nil, err
	}

	seq, err := repos.LotRepo().NextSequence(ctx, cmd.ProductID)
	if err != nil {
		return nil, err
	}

	lot, err := inventory.NewStockLot(inventory.NewStockLotParams{
		ProductID:          cmd.ProductID,
		LotNumber:          lotNumber,
		Sequence:           seq,
		Quantity:           cmd.Quantity,
		ExpiryDate:         cmd.ExpiryDate,
		TraceabilityNumber: cmd.TraceabilityNumber,
		SupplierID:         cmd.SupplierID,
		SupplierName:       cmd.SupplierName,
		ReceivedAt:         receivedAt,
	})
	if err != nil {
		return nil, err
	}
	if err := repos.LotRepo().Create(ctx, lot); err != nil {
		return nil, err
	}
	return lot, nil
}

// resolveLotNumber returns the requested lot number if it is free, or
// generates LOT-<date>-<product>-<suffix> until an unused one is found
func resolveLotNumber(ctx context.Context, repo inventory.StockLotRepository, requested, productID string, receivedAt time.Time, suffix inventory.LotSuffixFunc) (string, error) {
	if requested != "" {
		taken, err := lotNumberTaken(ctx, repo, requested)
		if err != nil {
			return "", err
		}
		if taken {
			return "", shared.NewDomainError(shared.CodeAlreadyExists, fmt.Sprintf("Lot number %s already exists", requested))
		}
		return requested, nil
	}

	for range maxLotNumberAttempts {
		candidate := inventory.GenerateLotNumber(receivedAt, productID, suffix)
		taken, err := lotNumberTaken(ctx, repo, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", shared.NewDomainError(shared.CodeAlreadyExists, "Could not generate a unique lot number")
}

func lotNumberTaken(ctx context.Context, repo inventory.StockLotRepository, lotNumber string) (bool, error) {
	_, err := repo.FindByLotNumber(ctx, lotNumber)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Consume deducts amount from a lot. It does not touch the ledger.
func (s *LotService) Consume(ctx context.Context, lotID uuid.UUID, amount decimal.Decimal) (*inventory.StockLot, error) {
	if !amount.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Consumed amount must be positive")
	}
	return s.mutateLot(ctx, lotID, func(lot *inventory.StockLot, now time.Time) (bool, error) {
		if err := lot.Consume(amount, now); err != nil {
			return false, err
		}
		return true, nil
	})
}

// MarkExpired retires a lot from allocation. Calling it again is a no-op.
func (s *LotService) MarkExpired(ctx context.Context, lotID uuid.UUID) (*inventory.StockLot, error) {
	changed := false
	lot, err := s.mutateLot(ctx, lotID, func(lot *inventory.StockLot, now time.Time) (bool, error) {
		changed = lot.MarkExpired(now)
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info("lot marked expired",
			zap.String("product_id", lot.ProductID),
			zap.String("lot_number", lot.LotNumber),
			zap.Stringer("remaining", lot.RemainingQuantity),
		)
		s.publish(ctx, inventory.NewLotExpiredEvent(lot))
	}
	return lot, nil
}

// mutateLot loads a lot under its product lock, applies fn and saves when fn reports a change
func (s *LotService) mutateLot(ctx context.Context, lotID uuid.UUID, fn func(lot *inventory.StockLot, now time.Time) (bool, error)) (*inventory.StockLot, error) {
	current, err := s.txScope.Repositories().LotRepo().FindByID(ctx, lotID)
	if err != nil {
		return nil, err
	}

	var lot *inventory.StockLot
	err = s.withProductLock(ctx, current.ProductID, func() error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			l, err := repos.LotRepo().FindByIDForUpdate(ctx, lotID)
			if err != nil {
				return err
			}
			changed, err := fn(l, s.now())
			if err != nil {
				return err
			}
			if changed {
				if err := repos.LotRepo().Save(ctx, l); err != nil {
					return err
				}
			}
			lot = l
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return lot, nil
}

// ListActive returns the product's active lots in receipt order
func (s *LotService) ListActive(ctx context.Context, productID string) ([]inventory.StockLot, error) {
	if err := inventory.ValidateProductID(productID); err != nil {
		return nil, err
	}
	lots, err := s.txScope.Repositories().LotRepo().FindActiveByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return inventory.SortLotsFIFO(lots), nil
}

// GetLot returns a lot by ID
func (s *LotService) GetLot(ctx context.Context, lotID uuid.UUID) (*inventory.StockLot, error) {
	return s.txScope.Repositories().LotRepo().FindByID(ctx, lotID)
}

// GetLotByNumber returns a lot by its lot number
func (s *LotService) GetLotByNumber(ctx context.Context, lotNumber string) (*inventory.StockLot, error) {
	return s.txScope.Repositories().LotRepo().FindByLotNumber(ctx, lotNumber)
}
