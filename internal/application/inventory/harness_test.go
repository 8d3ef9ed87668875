package inventory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	appinventory "github.com/meatco/stockledger/internal/application/inventory"
	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/meatco/stockledger/internal/infrastructure/lock"
	"github.com/meatco/stockledger/internal/infrastructure/persistence/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testProduct = "pork-belly"

var scenarioNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

// testClock is a settable time source shared by every service of a harness
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// eventRecorder collects published events
type eventRecorder struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (r *eventRecorder) Publish(_ context.Context, events ...shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *eventRecorder) ofType(eventType string) []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range r.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// sequentialSuffix returns 0001, 0002, ... so generated lot numbers are predictable
func sequentialSuffix() inventory.LotSuffixFunc {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%04d", n)
	}
}

type harness struct {
	store      *memory.Store
	clock      *testClock
	events     *eventRecorder
	lots       *appinventory.LotService
	ledger     *appinventory.LedgerService
	allocator  *appinventory.AllocationService
	projection *appinventory.ProjectionService
	receipts   *appinventory.ReceiptService
	sweeper    *appinventory.ExpirySweeper
	monitor    *appinventory.StockMonitorService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.NewStore()
	locker := lock.NewKeyedMutex()
	clock := &testClock{now: scenarioNow}
	events := &eventRecorder{}
	suffix := sequentialSuffix()

	h := &harness{
		store:      store,
		clock:      clock,
		events:     events,
		lots:       appinventory.NewLotService(store, locker, logger),
		ledger:     appinventory.NewLedgerService(store, locker, logger),
		allocator:  appinventory.NewAllocationService(store, locker, logger),
		projection: appinventory.NewProjectionService(store, locker, logger),
		receipts:   appinventory.NewReceiptService(store, locker, logger),
		sweeper:    appinventory.NewExpirySweeper(store, locker, logger),
		monitor:    appinventory.NewStockMonitorService(store, logger),
	}
	h.lots.SetLotSuffix(suffix)
	h.receipts.SetLotSuffix(suffix)

	for _, svc := range []interface {
		SetClock(func() time.Time)
		SetEventPublisher(shared.EventPublisher)
	}{h.lots, h.ledger, h.allocator, h.projection, h.receipts, h.sweeper, h.monitor} {
		svc.SetClock(clock.Now)
		svc.SetEventPublisher(events)
	}
	return h
}

func qty(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func day(n int) time.Time {
	return time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// receive books a purchase receipt received on the given day that expires expiresIn days later
func (h *harness) receive(t *testing.T, productID string, quantity int64, receivedDay, expiresIn int) *inventory.StockLot {
	t.Helper()
	expiry := day(receivedDay + expiresIn)
	res, err := h.receipts.ReceivePurchase(context.Background(), appinventory.ReceivePurchaseCommand{
		ProductID:          productID,
		Quantity:           qty(quantity),
		ReceiptDate:        day(receivedDay),
		ExpiryDate:         &expiry,
		TraceabilityNumber: fmt.Sprintf("TR-%s-%d", productID, receivedDay),
		Reference:          inventory.Reference{Type: inventory.ReferenceTypePurchase, ID: fmt.Sprintf("PO-%d", receivedDay)},
	})
	require.NoError(t, err)
	return res.Lot
}

func (h *harness) allocate(t *testing.T, productID string, quantity int64, refID string) *appinventory.AllocationResult {
	t.Helper()
	cmd := appinventory.AllocateCommand{ProductID: productID, Quantity: qty(quantity)}
	if refID != "" {
		cmd.Reference = inventory.Reference{Type: inventory.ReferenceTypeSale, ID: refID}
	}
	res, err := h.allocator.AllocateOutbound(context.Background(), cmd)
	require.NoError(t, err)
	return res
}

// lot reloads a lot from the store
func (h *harness) lot(t *testing.T, id uuid.UUID) *inventory.StockLot {
	t.Helper()
	l, err := h.lots.GetLot(context.Background(), id)
	require.NoError(t, err)
	return l
}

func (h *harness) movements(t *testing.T, productID string) []inventory.StockMovement {
	t.Helper()
	ms, err := h.ledger.QueryByProduct(context.Background(), productID, inventory.MovementQuery{})
	require.NoError(t, err)
	return ms
}

func (h *harness) currentStock(t *testing.T, productID string) decimal.Decimal {
	t.Helper()
	stock, err := h.projection.CurrentStock(context.Background(), productID)
	require.NoError(t, err)
	return stock
}

// requireConsistent checks that the projection equals the signed sum of the ledger
func (h *harness) requireConsistent(t *testing.T, productID string) {
	t.Helper()
	report, err := h.projection.Reconcile(context.Background(), productID)
	require.NoError(t, err)
	require.True(t, report.Consistent(), "projection %s drifted from ledger %s", report.ProjectedStock, report.LedgerStock)
}
