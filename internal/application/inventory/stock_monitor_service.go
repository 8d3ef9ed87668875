package inventory

import (
	"context"
	"sort"

	"github.com/meatco/stockledger/internal/domain/inventory"
	"go.uber.org/zap"
)

// StockMonitorService evaluates safety-stock status for tracked products
type StockMonitorService struct {
	serviceCore
}

// NewStockMonitorService creates a new StockMonitorService
func NewStockMonitorService(txScope TransactionScope, logger *zap.Logger) *StockMonitorService {
	return &StockMonitorService{serviceCore: newServiceCore(txScope, nil, logger)}
}

// Status returns the safety-stock view of one product
func (s *StockMonitorService) Status(ctx context.Context, productID string) (*StockStatusView, error) {
	if err := inventory.ValidateProductID(productID); err != nil {
		return nil, err
	}
	inv, err := s.txScope.Repositories().InventoryRepo().FindByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	view := toStatusView(inv)
	return &view, nil
}

// ListAlerts returns every tracked product that is not ok, worst first
func (s *StockMonitorService) ListAlerts(ctx context.Context) ([]StockStatusView, error) {
	all, err := s.txScope.Repositories().InventoryRepo().FindAll(ctx)
	if err != nil {
		return nil, err
	}

	alerts := make([]StockStatusView, 0)
	for i := range all {
		view := toStatusView(&all[i])
		if view.Status.NeedsAttention() {
			alerts = append(alerts, view)
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		si, sj := alerts[i].Status.Severity(), alerts[j].Status.Severity()
		if si != sj {
			return si > sj
		}
		return alerts[i].ProductID < alerts[j].ProductID
	})

	s.logger.Debug("stock alerts evaluated",
		zap.Int("tracked", len(all)),
		zap.Int("alerts", len(alerts)),
	)
	return alerts, nil
}

// CountByStatus returns how many tracked products are in each status
func (s *StockMonitorService) CountByStatus(ctx context.Context) (map[inventory.StockStatus]int, error) {
	all, err := s.txScope.Repositories().InventoryRepo().FindAll(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[inventory.StockStatus]int{
		inventory.StockStatusOK:       0,
		inventory.StockStatusLow:      0,
		inventory.StockStatusCritical: 0,
		inventory.StockStatusOut:      0,
	}
	for i := range all {
		counts[all[i].Status()]++
	}
	return counts, nil
}

func toStatusView(inv *inventory.ProductInventory) StockStatusView {
	return StockStatusView{
		ProductID:    inv.ProductID,
		CurrentStock: inv.CurrentStock,
		SafetyStock:  inv.SafetyStock,
		Location:     inv.Location,
		Status:       inv.Status(),
		LastUpdated:  inv.LastUpdated,
	}
}
