package inventory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	appinventory "github.com/meatco/stockledger/internal/application/inventory"
	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/meatco/stockledger/internal/infrastructure/cache"
	"github.com/meatco/stockledger/internal/infrastructure/persistence/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

func TestAllocationService_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		cmd     appinventory.AllocateCommand
		wantErr error
	}{
		{"zero quantity", appinventory.AllocateCommand{ProductID: testProduct, Quantity: decimal.Zero}, shared.ErrInvalidQuantity},
		{"negative quantity", appinventory.AllocateCommand{ProductID: testProduct, Quantity: qty(-2)}, shared.ErrInvalidQuantity},
		{"empty product", appinventory.AllocateCommand{Quantity: qty(1)}, shared.ErrInvalidInput},
		{"unknown reference type", appinventory.AllocateCommand{
			ProductID: testProduct,
			Quantity:  qty(1),
			Reference: inventory.Reference{Type: "gift", ID: "G-1"},
		}, shared.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.allocator.AllocateOutbound(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, h.movements(t, testProduct))
}

func TestAllocationService_NoLotsRecordsWholeRequestAsShortage(t *testing.T) {
	h := newHarness(t)

	res := h.allocate(t, testProduct, 7, "")

	require.Len(t, res.Movements, 1)
	assert.True(t, res.Allocated.IsZero())
	assert.True(t, res.Shortage.Equal(qty(7)))
	assert.Nil(t, res.Movements[0].LotNumber)
	assert.True(t, h.currentStock(t, testProduct).Equal(qty(-7)))
}

func TestAllocationService_SkipsExpiredAndFinishedLots(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := h.receive(t, testProduct, 5, 0, 10)
	finished := h.receive(t, testProduct, 2, 1, 10)
	fresh := h.receive(t, testProduct, 8, 2, 10)

	_, err := h.lots.MarkExpired(ctx, old.ID)
	require.NoError(t, err)
	_, err = h.lots.Consume(ctx, finished.ID, qty(2))
	require.NoError(t, err)

	res := h.allocate(t, testProduct, 3, "")
	require.Len(t, res.Movements, 1)
	assert.Equal(t, fresh.LotNumber, *res.Movements[0].LotNumber)
	assert.True(t, h.lot(t, old.ID).RemainingQuantity.Equal(qty(5)))
}

func TestAllocationService_CopiesLotAttributesToMovements(t *testing.T) {
	h := newHarness(t)
	lot := h.receive(t, testProduct, 10, 0, 10)
	price := decimal.RequireFromString("12.50")

	res, err := h.allocator.AllocateOutbound(context.Background(), appinventory.AllocateCommand{
		ProductID:   testProduct,
		ProductName: "Pork belly",
		Unit:        "kg",
		Quantity:    decimal.RequireFromString("2.5"),
		UnitPrice:   &price,
		Reference:   inventory.Reference{TransactionID: "T-9", Type: inventory.ReferenceTypeSale, ID: "S-9"},
	})
	require.NoError(t, err)
	require.Len(t, res.Movements, 1)

	m := res.Movements[0]
	assert.Equal(t, lot.TraceabilityNumber, m.TraceabilityNumber)
	require.NotNil(t, m.ExpiryDate)
	assert.True(t, m.ExpiryDate.Equal(lot.ExpiryDate))
	assert.Equal(t, "Pork belly", m.ProductName)
	assert.Equal(t, "kg", m.Unit)
	require.NotNil(t, m.UnitPrice)
	assert.True(t, m.UnitPrice.Equal(price))
	assert.Equal(t, "T-9", m.Reference.TransactionID)
	assert.True(t, h.lot(t, lot.ID).RemainingQuantity.Equal(decimal.RequireFromString("7.5")))
}

func TestAllocationService_ReplaysRepeatedReference(t *testing.T) {
	h := newHarness(t)
	lot := h.receive(t, testProduct, 10, 0, 10)

	first := h.allocate(t, testProduct, 4, "S-100")
	second := h.allocate(t, testProduct, 4, "S-100")

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	require.Len(t, second.Movements, 1)
	assert.Equal(t, first.Movements[0].ID, second.Movements[0].ID)
	assert.True(t, second.Allocated.Equal(qty(4)))
	assert.True(t, h.lot(t, lot.ID).RemainingQuantity.Equal(qty(6)), "the lot is consumed once")

	other := h.allocate(t, "beef-brisket", 4, "S-100")
	assert.False(t, other.Replayed, "references are scoped per product")
}

func TestAllocationService_ReplayIncludesShortage(t *testing.T) {
	h := newHarness(t)
	h.receive(t, testProduct, 3, 0, 10)

	first := h.allocate(t, testProduct, 5, "S-200")
	again := h.allocate(t, testProduct, 5, "S-200")

	assert.True(t, again.Replayed)
	assert.True(t, again.Allocated.Equal(first.Allocated))
	assert.True(t, again.Shortage.Equal(qty(2)))
	assert.Len(t, again.Movements, 2)
}

func TestAllocationService_IdempotencyFastPath(t *testing.T) {
	t.Run("marks processed references and answers repeats from the ledger", func(t *testing.T) {
		h := newHarness(t)
		store := cache.NewInMemoryIdempotencyStore()
		defer store.Close()
		h.allocator.SetIdempotencyStore(store, time.Hour)
		h.receive(t, testProduct, 10, 0, 10)

		h.allocate(t, testProduct, 4, "S-1")
		processed, err := store.IsProcessed(context.Background(), "allocation:pork-belly:sale:S-1")
		require.NoError(t, err)
		assert.True(t, processed)

		again := h.allocate(t, testProduct, 4, "S-1")
		assert.True(t, again.Replayed)
		assert.True(t, h.currentStock(t, testProduct).Equal(qty(6)))
	})

	t.Run("falls back to the ledger when the store fails", func(t *testing.T) {
		h := newHarness(t)
		store := new(MockIdempotencyStore)
		store.On("IsProcessed", mock.Anything, "allocation:pork-belly:sale:S-2").Return(false, errors.New("redis down"))
		store.On("MarkProcessed", mock.Anything, "allocation:pork-belly:sale:S-2", time.Hour).Return(false, errors.New("redis down"))
		h.allocator.SetIdempotencyStore(store, time.Hour)
		h.receive(t, testProduct, 10, 0, 10)

		res := h.allocate(t, testProduct, 4, "S-2")
		assert.False(t, res.Replayed)
		assert.True(t, res.Allocated.Equal(qty(4)))
		store.AssertExpectations(t)
	})

	t.Run("unreferenced allocations never touch the store", func(t *testing.T) {
		h := newHarness(t)
		store := new(MockIdempotencyStore)
		h.allocator.SetIdempotencyStore(store, time.Hour)
		h.receive(t, testProduct, 10, 0, 10)

		h.allocate(t, testProduct, 1, "")
		store.AssertNotCalled(t, "IsProcessed", mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAllocationService_FailedStepKeepsEarlierSteps(t *testing.T) {
	h := newHarness(t)
	l1 := h.receive(t, testProduct, 5, 0, 10)
	l2 := h.receive(t, testProduct, 5, 1, 10)

	// The first allocation step appends fine, the second one fails
	h.store.FailAfter(memory.OpMovementAppend, 1, errors.New("connection reset"))

	_, err := h.allocator.AllocateOutbound(context.Background(), appinventory.AllocateCommand{
		ProductID: testProduct,
		Quantity:  qty(8),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrStorageFailure)

	assert.True(t, h.lot(t, l1.ID).RemainingQuantity.IsZero(), "the committed first step stays")
	assert.True(t, h.lot(t, l2.ID).RemainingQuantity.Equal(qty(5)), "the failed step rolled back entirely")
	assert.True(t, h.currentStock(t, testProduct).Equal(qty(5)))
	assert.Len(t, h.movements(t, testProduct), 3)
	h.requireConsistent(t, testProduct)
}

func TestAllocationService_RetryAfterFailedStepAllocatesRemainder(t *testing.T) {
	h := newHarness(t)
	h.receive(t, testProduct, 5, 0, 10)
	l2 := h.receive(t, testProduct, 5, 1, 10)
	h.store.FailAfter(memory.OpMovementAppend, 1, errors.New("connection reset"))

	cmd := appinventory.AllocateCommand{
		ProductID: testProduct,
		Quantity:  qty(8),
		Reference: inventory.Reference{Type: inventory.ReferenceTypeSale, ID: "S-9"},
	}

	failed, err := h.allocator.AllocateOutbound(context.Background(), cmd)
	require.ErrorIs(t, err, shared.ErrStorageFailure)
	require.NotNil(t, failed, "committed steps are reported with the error")
	assert.Len(t, failed.Movements, 1)
	assert.True(t, failed.Allocated.Equal(qty(5)))

	retry, err := h.allocator.AllocateOutbound(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, retry.Replayed)
	assert.True(t, retry.Resumed)
	assert.True(t, retry.Allocated.Equal(qty(8)))
	assert.True(t, retry.Shortage.IsZero())
	assert.Len(t, retry.Movements, 2)
	assert.True(t, h.lot(t, l2.ID).RemainingQuantity.Equal(qty(2)))
	assert.True(t, h.currentStock(t, testProduct).Equal(qty(2)), "stock drops by the full requested quantity")
	h.requireConsistent(t, testProduct)

	again, err := h.allocator.AllocateOutbound(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.True(t, again.Allocated.Equal(qty(8)))
	assert.True(t, h.currentStock(t, testProduct).Equal(qty(2)))
}

func TestAllocationService_RetryRecordsRemainderAsShortage(t *testing.T) {
	h := newHarness(t)
	h.receive(t, testProduct, 5, 0, 10)
	h.store.FailAfter(memory.OpMovementAppend, 1, errors.New("connection reset"))

	cmd := appinventory.AllocateCommand{
		ProductID: testProduct,
		Quantity:  qty(8),
		Reference: inventory.Reference{Type: inventory.ReferenceTypeSale, ID: "S-10"},
	}
	_, err := h.allocator.AllocateOutbound(context.Background(), cmd)
	require.Error(t, err)

	retry, err := h.allocator.AllocateOutbound(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, retry.Resumed)
	assert.True(t, retry.Allocated.Equal(qty(5)))
	assert.True(t, retry.Shortage.Equal(qty(3)))
	assert.True(t, h.currentStock(t, testProduct).Equal(qty(-3)))
	h.requireConsistent(t, testProduct)
}

func TestAllocationService_DirectEntryDoesNotCountAsAllocation(t *testing.T) {
	h := newHarness(t)
	lot := h.receive(t, testProduct, 10, 0, 10)
	ref := inventory.Reference{Type: inventory.ReferenceTypeSale, ID: "S-7"}

	direct, err := h.ledger.Append(context.Background(), appinventory.AppendMovementCommand{
		ProductID:    testProduct,
		MovementType: inventory.MovementTypeOut,
		Quantity:     qty(2),
		Reference:    ref,
	})
	require.NoError(t, err)
	assert.Equal(t, inventory.MovementOriginDirect, direct.Origin)

	result := h.allocate(t, testProduct, 4, "S-7")
	assert.False(t, result.Replayed)
	assert.True(t, result.Allocated.Equal(qty(4)))
	require.Len(t, result.Movements, 1)
	assert.Equal(t, inventory.MovementOriginAllocation, result.Movements[0].Origin)
	assert.True(t, h.lot(t, lot.ID).RemainingQuantity.Equal(qty(6)))
	assert.True(t, h.currentStock(t, testProduct).Equal(qty(4)))

	again := h.allocate(t, testProduct, 4, "S-7")
	assert.True(t, again.Replayed)
	assert.Len(t, again.Movements, 1, "the direct entry is left out of the replay")
}

func TestAllocationService_ShortageStepFailure(t *testing.T) {
	h := newHarness(t)
	h.receive(t, testProduct, 5, 0, 10)
	h.store.FailAfter(memory.OpInventorySave, 1, errors.New("connection reset"))

	_, err := h.allocator.AllocateOutbound(context.Background(), appinventory.AllocateCommand{ProductID: testProduct, Quantity: qty(9)})
	assert.ErrorIs(t, err, shared.ErrStorageFailure)
	assert.Empty(t, h.events.ofType(inventory.EventTypeStockShortageDetected))
	assert.True(t, h.currentStock(t, testProduct).IsZero())
	h.requireConsistent(t, testProduct)
}

func TestAllocationService_CancelledContextAllocatesNothing(t *testing.T) {
	h := newHarness(t)
	lot := h.receive(t, testProduct, 10, 0, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.allocator.AllocateOutbound(ctx, appinventory.AllocateCommand{ProductID: testProduct, Quantity: qty(3)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, h.lot(t, lot.ID).RemainingQuantity.Equal(qty(10)))
}

func TestProjectionService_Receive(t *testing.T) {
	ctx := context.Background()

	t.Run("creates projection with supplied settings", func(t *testing.T) {
		h := newHarness(t)
		safety := qty(50)
		frozen := inventory.LocationFrozen

		_, err := h.projection.Receive(ctx, appinventory.ReceiveCommand{
			ProductID:   testProduct,
			Quantity:    qty(20),
			SafetyStock: &safety,
			Location:    &frozen,
		})
		require.NoError(t, err)

		inv, err := h.projection.GetInventory(ctx, testProduct)
		require.NoError(t, err)
		assert.True(t, inv.CurrentStock.Equal(qty(20)))
		assert.True(t, inv.SafetyStock.Equal(qty(50)))
		assert.Equal(t, inventory.LocationFrozen, inv.Location)
		assert.Equal(t, inventory.StockStatusCritical, inv.Status())
	})

	t.Run("settings do not override an existing projection", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.projection.Receive(ctx, appinventory.ReceiveCommand{ProductID: testProduct, Quantity: qty(5)})
		require.NoError(t, err)

		safety := qty(1)
		_, err = h.projection.Receive(ctx, appinventory.ReceiveCommand{ProductID: testProduct, Quantity: qty(5), SafetyStock: &safety})
		require.NoError(t, err)

		inv, err := h.projection.GetInventory(ctx, testProduct)
		require.NoError(t, err)
		assert.True(t, inv.SafetyStock.Equal(inventory.DefaultSafetyStock))
		assert.Equal(t, inventory.LocationCold, inv.Location)
		assert.True(t, inv.CurrentStock.Equal(qty(10)))
	})

	t.Run("rejects non-positive quantity and bad settings", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.projection.Receive(ctx, appinventory.ReceiveCommand{ProductID: testProduct, Quantity: qty(0)})
		assert.ErrorIs(t, err, shared.ErrInvalidQuantity)

		negative := qty(-1)
		_, err = h.projection.Receive(ctx, appinventory.ReceiveCommand{ProductID: testProduct, Quantity: qty(1), SafetyStock: &negative})
		assert.ErrorIs(t, err, shared.ErrInvalidQuantity)

		attic := inventory.StorageLocation("attic")
		_, err = h.projection.Receive(ctx, appinventory.ReceiveCommand{ProductID: testProduct, Quantity: qty(1), Location: &attic})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("custom defaults", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.projection.SetDefaults(inventory.TrackingSettings{SafetyStock: qty(5), Location: inventory.LocationRoom}))
		_, err := h.projection.Receive(ctx, appinventory.ReceiveCommand{ProductID: testProduct, Quantity: qty(1)})
		require.NoError(t, err)

		inv, err := h.projection.GetInventory(ctx, testProduct)
		require.NoError(t, err)
		assert.Equal(t, inventory.LocationRoom, inv.Location)
		assert.Error(t, h.projection.SetDefaults(inventory.TrackingSettings{SafetyStock: qty(-5), Location: inventory.LocationRoom}))
	})
}

func TestProjectionService_AdjustTo(t *testing.T) {
	ctx := context.Background()

	t.Run("untracked product", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.projection.AdjustTo(ctx, testProduct, qty(5), "")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.Empty(t, h.movements(t, testProduct))
	})

	t.Run("negative target", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.projection.AdjustTo(ctx, testProduct, qty(-1), "")
		assert.ErrorIs(t, err, shared.ErrInvalidQuantity)
	})

	t.Run("upward correction with default note", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.projection.EnableTracking(ctx, testProduct, appinventory.SettingsCommand{})
		require.NoError(t, err)

		m, err := h.projection.AdjustTo(ctx, testProduct, qty(12), "  ")
		require.NoError(t, err)
		assert.True(t, m.Delta.Equal(qty(12)))
		assert.Equal(t, "manual stock correction", m.Notes)
	})

	t.Run("adjusting to the current level records a zero delta", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.projection.Receive(ctx, appinventory.ReceiveCommand{ProductID: testProduct, Quantity: qty(9)})
		require.NoError(t, err)

		m, err := h.projection.AdjustTo(ctx, testProduct, qty(9), "recount")
		require.NoError(t, err)
		assert.True(t, m.Delta.IsZero())
		assert.True(t, h.currentStock(t, testProduct).Equal(qty(9)))
	})
}

func TestProjectionService_Settings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.projection.UpdateSettings(ctx, testProduct, appinventory.SettingsCommand{})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	inv, err := h.projection.EnableTracking(ctx, testProduct, appinventory.SettingsCommand{})
	require.NoError(t, err)
	assert.True(t, inv.CurrentStock.IsZero())
	assert.Equal(t, inventory.StockStatusOut, inv.Status())

	room := inventory.LocationRoom
	safety := qty(10)
	inv, err = h.projection.UpdateSettings(ctx, testProduct, appinventory.SettingsCommand{SafetyStock: &safety, Location: &room})
	require.NoError(t, err)
	assert.True(t, inv.SafetyStock.Equal(qty(10)))
	assert.Equal(t, inventory.LocationRoom, inv.Location)

	// Enabling an already tracked product keeps its stock and applies the settings
	_, err = h.projection.Receive(ctx, appinventory.ReceiveCommand{ProductID: testProduct, Quantity: qty(8)})
	require.NoError(t, err)
	frozen := inventory.LocationFrozen
	inv, err = h.projection.EnableTracking(ctx, testProduct, appinventory.SettingsCommand{Location: &frozen})
	require.NoError(t, err)
	assert.True(t, inv.CurrentStock.Equal(qty(8)))
	assert.Equal(t, inventory.LocationFrozen, inv.Location)
	assert.True(t, inv.SafetyStock.Equal(qty(10)))

	// Raising safety stock above current stock announces the deterioration
	high := qty(100)
	_, err = h.projection.UpdateSettings(ctx, testProduct, appinventory.SettingsCommand{SafetyStock: &high})
	require.NoError(t, err)
	changes := h.events.ofType(inventory.EventTypeStockStatusChanged)
	require.NotEmpty(t, changes)
	last := changes[len(changes)-1].(*inventory.StockStatusChangedEvent)
	assert.Equal(t, inventory.StockStatusCritical, last.Status)
}

func TestProjectionService_ReconcileReportsDrift(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.receive(t, testProduct, 10, 0, 10)

	report, err := h.projection.Reconcile(ctx, testProduct)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, int64(1), report.MovementCount)

	// Corrupt the projection behind the ledger's back
	err = h.store.Execute(ctx, func(repos appinventory.TransactionalRepositories) error {
		inv, err := repos.InventoryRepo().FindByProduct(ctx, testProduct)
		if err != nil {
			return err
		}
		inv.CurrentStock = qty(7)
		return repos.InventoryRepo().Save(ctx, inv)
	})
	require.NoError(t, err)

	report, err = h.projection.Reconcile(ctx, testProduct)
	require.NoError(t, err)
	assert.False(t, report.Consistent())
	assert.True(t, report.Drift.Equal(qty(-3)))

	_, err = h.projection.Reconcile(ctx, "never-seen")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReceiptService_ReceivePurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("category shelf life and lot number", func(t *testing.T) {
		tests := []struct {
			category string
			days     int
		}{
			{inventory.CategoryPork, 7},
			{inventory.CategoryBeef, 10},
			{inventory.CategoryPoultry, 5},
			{"lamb", inventory.DefaultShelfLifeDays},
		}
		for _, tt := range tests {
			t.Run(tt.category, func(t *testing.T) {
				h := newHarness(t)
				res, err := h.receipts.ReceivePurchase(ctx, appinventory.ReceivePurchaseCommand{
					ProductID:   testProduct,
					Category:    tt.category,
					Quantity:    qty(10),
					ReceiptDate: day(0),
				})
				require.NoError(t, err)
				assert.True(t, res.Lot.ExpiryDate.Equal(inventory.NormalizeDate(day(tt.days))))
				assert.Equal(t, "LOT-20240301-pork-belly-0001", res.Lot.LotNumber)
			})
		}
	})

	t.Run("books lot movement and projection together", func(t *testing.T) {
		h := newHarness(t)
		supplier := "SUP-7"
		res, err := h.receipts.ReceivePurchase(ctx, appinventory.ReceivePurchaseCommand{
			ProductID:          testProduct,
			ProductName:        "Pork belly",
			Unit:               "kg",
			Category:           "pork",
			Quantity:           qty(25),
			ReceiptDate:        day(0),
			TraceabilityNumber: "TR-1",
			SupplierID:         &supplier,
			SupplierName:       "Good Farms",
			Reference:          inventory.Reference{Type: inventory.ReferenceTypePurchase, ID: "PO-1"},
		})
		require.NoError(t, err)

		assert.Equal(t, inventory.MovementTypeIn, res.Movement.MovementType)
		require.NotNil(t, res.Movement.LotNumber)
		assert.Equal(t, res.Lot.LotNumber, *res.Movement.LotNumber)
		assert.Equal(t, "TR-1", res.Movement.TraceabilityNumber)
		assert.Equal(t, "Good Farms", res.Lot.SupplierName)
		assert.True(t, h.currentStock(t, testProduct).Equal(qty(25)))

		assert.Len(t, h.events.ofType(inventory.EventTypeLotOpened), 1)
		changes := h.events.ofType(inventory.EventTypeStockStatusChanged)
		require.Len(t, changes, 1, "out to low on the first receipt")
	})

	t.Run("explicit expiry wins over the policy", func(t *testing.T) {
		h := newHarness(t)
		expiry := day(3)
		res, err := h.receipts.ReceivePurchase(ctx, appinventory.ReceivePurchaseCommand{
			ProductID:   testProduct,
			Category:    "beef",
			Quantity:    qty(1),
			ReceiptDate: day(0),
			ExpiryDate:  &expiry,
		})
		require.NoError(t, err)
		assert.True(t, res.Lot.ExpiryDate.Equal(inventory.NormalizeDate(day(3))))
	})

	t.Run("failure leaves neither lot nor movement", func(t *testing.T) {
		h := newHarness(t)
		h.store.FailOn(memory.OpMovementAppend, errors.New("boom"))
		_, err := h.receipts.ReceivePurchase(ctx, appinventory.ReceivePurchaseCommand{ProductID: testProduct, Quantity: qty(1), ReceiptDate: day(0)})
		assert.ErrorIs(t, err, shared.ErrStorageFailure)

		active, err := h.lots.ListActive(ctx, testProduct)
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("custom policy", func(t *testing.T) {
		h := newHarness(t)
		h.receipts.SetShelfLifePolicy(inventory.ShelfLifePolicy{"pork": 3})
		res, err := h.receipts.ReceivePurchase(ctx, appinventory.ReceivePurchaseCommand{ProductID: testProduct, Category: "Pork", Quantity: qty(1), ReceiptDate: day(0)})
		require.NoError(t, err)
		assert.True(t, res.Lot.ExpiryDate.Equal(inventory.NormalizeDate(day(3))))
	})
}

func TestExpirySweeper_ListExpiringWithin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.clock.Set(day(0))

	inThree := h.receive(t, testProduct, 4, 0, 3)
	today := h.receive(t, testProduct, 4, 0, 0)
	h.receive(t, testProduct, 4, 0, 20)
	gone := h.receive(t, "beef-brisket", 2, 0, 1)
	h.allocate(t, "beef-brisket", 2, "")

	expiring, err := h.sweeper.ListExpiringWithin(ctx, 5)
	require.NoError(t, err)
	require.Len(t, expiring, 2)
	assert.Equal(t, today.ID, expiring[0].Lot.ID)
	assert.Equal(t, 0, expiring[0].DaysRemaining)
	assert.Equal(t, inThree.ID, expiring[1].Lot.ID)
	assert.Equal(t, 3, expiring[1].DaysRemaining)
	for _, e := range expiring {
		assert.NotEqual(t, gone.ID, e.Lot.ID, "lots without stock are not listed")
	}

	zero, err := h.sweeper.ListExpiringWithin(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, zero, 1)

	_, err = h.sweeper.ListExpiringWithin(ctx, -1)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestExpirySweeper_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("expires only lots strictly before today", func(t *testing.T) {
		h := newHarness(t)
		past := h.receive(t, testProduct, 4, 0, 1)
		onDay := h.receive(t, testProduct, 4, 0, 2)

		res, err := h.sweeper.Sweep(ctx, day(2))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Expired)
		assert.Equal(t, inventory.LotStatusExpired, h.lot(t, past.ID).Status)
		assert.Equal(t, inventory.LotStatusActive, h.lot(t, onDay.ID).Status, "a lot expiring today is still sellable")
	})

	t.Run("zero today uses the clock", func(t *testing.T) {
		h := newHarness(t)
		lot := h.receive(t, testProduct, 4, 0, 1)
		res, err := h.sweeper.Sweep(ctx, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Expired)
		assert.Equal(t, inventory.LotStatusExpired, h.lot(t, lot.ID).Status)
	})

	t.Run("a failing lot is counted and the sweep continues", func(t *testing.T) {
		h := newHarness(t)
		h.receive(t, testProduct, 4, 0, 1)
		h.receive(t, "beef-brisket", 4, 0, 1)
		h.store.FailOn(memory.OpLotSave, errors.New("timeout"))

		res, err := h.sweeper.Sweep(ctx, scenarioNow)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Candidates)
		assert.Equal(t, 1, res.Expired)
		assert.Equal(t, 1, res.Failed)
	})
}

func TestStockMonitorService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	receive := func(productID string, quantity int64) {
		_, err := h.projection.Receive(ctx, appinventory.ReceiveCommand{ProductID: productID, Quantity: qty(quantity)})
		require.NoError(t, err)
	}
	receive("a-ok", 30)
	receive("b-low", 20)
	receive("c-critical", 14)
	receive("d-critical", 1)
	_, err := h.projection.EnableTracking(ctx, "e-out", appinventory.SettingsCommand{})
	require.NoError(t, err)

	status, err := h.monitor.Status(ctx, "b-low")
	require.NoError(t, err)
	assert.Equal(t, inventory.StockStatusLow, status.Status)

	_, err = h.monitor.Status(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	alerts, err := h.monitor.ListAlerts(ctx)
	require.NoError(t, err)
	ids := make([]string, len(alerts))
	for i, a := range alerts {
		ids[i] = a.ProductID
	}
	assert.Equal(t, []string{"e-out", "c-critical", "d-critical", "b-low"}, ids)

	counts, err := h.monitor.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[inventory.StockStatusOK])
	assert.Equal(t, 1, counts[inventory.StockStatusLow])
	assert.Equal(t, 2, counts[inventory.StockStatusCritical])
	assert.Equal(t, 1, counts[inventory.StockStatusOut])
}
