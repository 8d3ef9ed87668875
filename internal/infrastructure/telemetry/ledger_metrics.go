package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when no meter is supplied.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// StockStatusCounter reports how many tracked products sit in each safety-stock status.
type StockStatusCounter interface {
	CountByStatus(ctx context.Context) (map[inventory.StockStatus]int, error)
}

// LedgerMetricsConfig holds configuration for ledger metrics.
type LedgerMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
	// StatusCounter feeds the periodic stock status gauge. Optional.
	StatusCounter StockStatusCounter
}

// LedgerMetrics records ledger activity: movements, allocations, shortages and expiry sweeps.
type LedgerMetrics struct {
	logger *zap.Logger

	movementsTotal     *Counter
	allocationsTotal   *Counter
	shortageQuantity   *FloatCounter
	allocationDuration *Histogram
	allocationLots     *Histogram
	lotsExpiredTotal   *Counter
	lotExpiryFailures  *Counter
	productsByStatus   *Gauge

	statusCounter StockStatusCounter
	stopChan      chan struct{}
	stopOnce      sync.Once
	collectOnce   sync.Once
}

// NewLedgerMetrics creates the ledger instruments on the given meter.
func NewLedgerMetrics(cfg LedgerMetricsConfig) (*LedgerMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lm := &LedgerMetrics{
		logger:        logger,
		statusCounter: cfg.StatusCounter,
		stopChan:      make(chan struct{}),
	}

	var err error
	if lm.movementsTotal, err = NewCounter(cfg.Meter,
		"stockledger_movements_total", "Movements appended to the ledger", "{movements}"); err != nil {
		return nil, err
	}
	if lm.allocationsTotal, err = NewCounter(cfg.Meter,
		"stockledger_allocations_total", "Outbound allocations by outcome", "{allocations}"); err != nil {
		return nil, err
	}
	if lm.shortageQuantity, err = NewFloatCounter(cfg.Meter,
		"stockledger_allocation_shortage_quantity_total", "Quantity dispatched without a backing lot", "{units}"); err != nil {
		return nil, err
	}
	if lm.allocationDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "stockledger_allocation_duration_seconds",
		Description: "Time spent walking lots for one allocation",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if lm.allocationLots, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "stockledger_allocation_lots",
		Description: "Lots consumed by one allocation",
		Unit:        "{lots}",
		Boundaries:  LotCountBuckets,
	}); err != nil {
		return nil, err
	}
	if lm.lotsExpiredTotal, err = NewCounter(cfg.Meter,
		"stockledger_lots_expired_total", "Lots retired by the expiry sweeper", "{lots}"); err != nil {
		return nil, err
	}
	if lm.lotExpiryFailures, err = NewCounter(cfg.Meter,
		"stockledger_lot_expiry_failures_total", "Lots the expiry sweeper failed to retire", "{lots}"); err != nil {
		return nil, err
	}
	if lm.productsByStatus, err = NewGauge(cfg.Meter,
		"stockledger_products_by_stock_status", "Tracked products per safety-stock status", "{products}"); err != nil {
		return nil, err
	}
	return lm, nil
}

// RecordMovement counts one appended movement.
func (lm *LedgerMetrics) RecordMovement(ctx context.Context, movementType string) {
	lm.movementsTotal.Inc(ctx, AttrMovementType.String(movementType))
}

// RecordAllocation records one finished allocation.
// Product id is kept off the counters to bound cardinality.
func (lm *LedgerMetrics) RecordAllocation(ctx context.Context, _ string, _ decimal.Decimal, shortage decimal.Decimal, lots int, elapsed time.Duration) {
	outcome := "fulfilled"
	if shortage.IsPositive() {
		outcome = "shortage"
		lm.shortageQuantity.Add(ctx, shortage.InexactFloat64())
	}
	lm.allocationsTotal.Inc(ctx, AttrOutcome.String(outcome))
	lm.allocationDuration.RecordDuration(ctx, elapsed, AttrOutcome.String(outcome))
	lm.allocationLots.Record(ctx, float64(lots))
}

// RecordLotsExpired records the result of one expiry sweep.
func (lm *LedgerMetrics) RecordLotsExpired(ctx context.Context, expired, failed int) {
	if expired > 0 {
		lm.lotsExpiredTotal.Add(ctx, int64(expired))
	}
	if failed > 0 {
		lm.lotExpiryFailures.Add(ctx, int64(failed))
	}
}

// RecordStockStatus sets the per-status product gauge.
func (lm *LedgerMetrics) RecordStockStatus(ctx context.Context, counts map[inventory.StockStatus]int) {
	for status, n := range counts {
		lm.productsByStatus.Record(ctx, int64(n), AttrStockStatus.String(status.String()))
	}
}

// StartPeriodicCollection samples the stock status gauge every interval (default 5 minutes).
// It returns immediately; call Stop to end collection.
func (lm *LedgerMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	lm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go lm.runPeriodicCollection(ctx, interval)
	})
}

func (lm *LedgerMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lm.collectStockStatus(ctx)
	for {
		select {
		case <-lm.stopChan:
			lm.logger.Info("Stopping periodic ledger metrics collection")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			lm.collectStockStatus(ctx)
		}
	}
}

func (lm *LedgerMetrics) collectStockStatus(ctx context.Context) {
	if lm.statusCounter == nil {
		return
	}
	counts, err := lm.statusCounter.CountByStatus(ctx)
	if err != nil {
		lm.logger.Warn("Failed to count products by stock status", zap.Error(err))
		return
	}
	lm.RecordStockStatus(ctx, counts)
}

// Stop ends periodic collection.
func (lm *LedgerMetrics) Stop() {
	lm.stopOnce.Do(func() {
		close(lm.stopChan)
	})
}
