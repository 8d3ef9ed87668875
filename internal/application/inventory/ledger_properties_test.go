package inventory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	appinventory "github.com/meatco/stockledger/internal/application/inventory"
	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/meatco/stockledger/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_ProjectionEqualsSumOfDeltas(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.receive(t, testProduct, 40, 0, 10)
	h.receive(t, testProduct, 25, 2, 10)
	h.allocate(t, testProduct, 15, "S-1")

	_, err := h.ledger.Append(ctx, appinventory.AppendMovementCommand{
		ProductID:    testProduct,
		MovementType: inventory.MovementTypeDiscard,
		Quantity:     qty(5),
		LotNumber:    &first.LotNumber,
		Notes:        "damaged packaging",
	})
	require.NoError(t, err)

	_, err = h.projection.AdjustTo(ctx, testProduct, qty(42), "")
	require.NoError(t, err)
	h.allocate(t, testProduct, 60, "S-2")

	movements := h.movements(t, testProduct)
	assert.True(t, h.currentStock(t, testProduct).Equal(inventory.SumDeltas(movements)))
	h.requireConsistent(t, testProduct)

	// Balance after of each entry chains from the previous one
	running := qty(0)
	for _, m := range movements {
		running = running.Add(m.Delta)
		assert.True(t, m.BalanceAfter.Equal(running), "movement %d balance %s, want %s", m.Sequence, m.BalanceAfter, running)
	}
}

func TestLedger_LotBoundsHoldAfterEveryOperation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	lots := []*inventory.StockLot{
		h.receive(t, testProduct, 7, 0, 10),
		h.receive(t, testProduct, 3, 1, 10),
		h.receive(t, testProduct, 12, 2, 10),
	}
	for i, amount := range []int64{4, 5, 9, 8} {
		h.allocate(t, testProduct, amount, "")
		for _, l := range lots {
			current := h.lot(t, l.ID)
			require.NoError(t, current.CheckInvariants(), "after allocation %d", i)
		}
	}

	_, err := h.lots.Consume(ctx, lots[2].ID, qty(1))
	assert.ErrorIs(t, err, shared.ErrOverConsumption, "every lot is exhausted by now")
}

func TestLedger_ReceiptOrderIsMonotonic(t *testing.T) {
	h := newHarness(t)

	var previous int64
	for i := 0; i < 5; i++ {
		lot := h.receive(t, testProduct, 1, i, 10)
		assert.Greater(t, lot.Sequence, previous)
		previous = lot.Sequence
	}

	other := h.receive(t, "beef-brisket", 1, 0, 10)
	assert.Equal(t, int64(1), other.Sequence, "sequences are per product")

	movements := h.movements(t, testProduct)
	for i := 1; i < len(movements); i++ {
		assert.Greater(t, movements[i].Sequence, movements[i-1].Sequence)
	}
}

func TestLotService_MarkExpiredIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lot := h.receive(t, testProduct, 10, 0, 10)

	first, err := h.lots.MarkExpired(ctx, lot.ID)
	require.NoError(t, err)
	second, err := h.lots.MarkExpired(ctx, lot.ID)
	require.NoError(t, err)

	assert.Equal(t, inventory.LotStatusExpired, first.Status)
	assert.Equal(t, first.Status, second.Status)
	assert.True(t, first.RemainingQuantity.Equal(second.RemainingQuantity))
	assert.Len(t, h.events.ofType(inventory.EventTypeLotExpired), 1, "only the transition is announced")

	_, err = h.lots.MarkExpired(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestLotService_FinishedLotStaysFinishedWhenExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lot := h.receive(t, testProduct, 4, 0, 10)
	h.allocate(t, testProduct, 4, "")

	got, err := h.lots.MarkExpired(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.LotStatusFinished, got.Status)
}

func TestLotService_OpenLot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("explicit lot number", func(t *testing.T) {
		lot, err := h.lots.OpenLot(ctx, appinventory.OpenLotCommand{
			ProductID:  testProduct,
			Quantity:   qty(10),
			ExpiryDate: day(7),
			LotNumber:  "L1",
		})
		require.NoError(t, err)
		assert.Equal(t, "L1", lot.LotNumber)
		assert.True(t, lot.RemainingQuantity.Equal(lot.InitialQuantity))
		assert.Equal(t, inventory.LotStatusActive, lot.Status)
		assert.Len(t, h.events.ofType(inventory.EventTypeLotOpened), 1)

		movements, err := h.ledger.QueryByProduct(ctx, testProduct, inventory.MovementQuery{})
		require.NoError(t, err)
		assert.Empty(t, movements, "opening a lot does not write the ledger")
	})

	t.Run("duplicate lot number", func(t *testing.T) {
		_, err := h.lots.OpenLot(ctx, appinventory.OpenLotCommand{
			ProductID:  testProduct,
			Quantity:   qty(1),
			ExpiryDate: day(7),
			LotNumber:  "L1",
		})
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("generated lot number", func(t *testing.T) {
		lot, err := h.lots.OpenLot(ctx, appinventory.OpenLotCommand{
			ProductID:  testProduct,
			Quantity:   qty(1),
			ExpiryDate: day(7),
			ReceivedAt: day(2),
		})
		require.NoError(t, err)
		assert.Regexp(t, `^LOT-20240303-pork-belly-\d{4}$`, lot.LotNumber)
	})

	t.Run("invalid quantity", func(t *testing.T) {
		_, err := h.lots.OpenLot(ctx, appinventory.OpenLotCommand{ProductID: testProduct, Quantity: qty(0), ExpiryDate: day(7)})
		assert.ErrorIs(t, err, shared.ErrInvalidQuantity)
	})

	t.Run("missing expiry", func(t *testing.T) {
		_, err := h.lots.OpenLot(ctx, appinventory.OpenLotCommand{ProductID: testProduct, Quantity: qty(1)})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestLotService_GeneratedLotNumberRetriesOnCollision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.lots.SetLotSuffix(func() string { return "0042" })

	first, err := h.lots.OpenLot(ctx, appinventory.OpenLotCommand{ProductID: testProduct, Quantity: qty(1), ExpiryDate: day(7), ReceivedAt: day(0)})
	require.NoError(t, err)
	assert.Equal(t, "LOT-20240301-pork-belly-0042", first.LotNumber)

	_, err = h.lots.OpenLot(ctx, appinventory.OpenLotCommand{ProductID: testProduct, Quantity: qty(1), ExpiryDate: day(7), ReceivedAt: day(0)})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestLotService_ConsumeDoesNotTouchLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lot := h.receive(t, testProduct, 10, 0, 10)

	got, err := h.lots.Consume(ctx, lot.ID, qty(4))
	require.NoError(t, err)
	assert.True(t, got.RemainingQuantity.Equal(qty(6)))

	_, err = h.lots.Consume(ctx, lot.ID, qty(7))
	assert.ErrorIs(t, err, shared.ErrOverConsumption)
	assert.True(t, h.lot(t, lot.ID).RemainingQuantity.Equal(qty(6)))

	_, err = h.lots.Consume(ctx, lot.ID, qty(-1))
	assert.ErrorIs(t, err, shared.ErrInvalidQuantity)

	finished, err := h.lots.Consume(ctx, lot.ID, qty(6))
	require.NoError(t, err)
	assert.Equal(t, inventory.LotStatusFinished, finished.Status)

	assert.Len(t, h.movements(t, testProduct), 1)
}

func TestLedgerService_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("discard naming a lot consumes it and copies traceability", func(t *testing.T) {
		h := newHarness(t)
		lot := h.receive(t, testProduct, 10, 0, 10)

		m, err := h.ledger.Append(ctx, appinventory.AppendMovementCommand{
			ProductID:    testProduct,
			MovementType: inventory.MovementTypeDiscard,
			Quantity:     qty(3),
			LotNumber:    &lot.LotNumber,
		})
		require.NoError(t, err)
		assert.True(t, m.Delta.Equal(qty(-3)))
		assert.Equal(t, lot.TraceabilityNumber, m.TraceabilityNumber)
		require.NotNil(t, m.ExpiryDate)
		assert.True(t, m.ExpiryDate.Equal(lot.ExpiryDate))
		assert.True(t, h.lot(t, lot.ID).RemainingQuantity.Equal(qty(7)))
		assert.True(t, h.currentStock(t, testProduct).Equal(qty(7)))
	})

	t.Run("over consumption of the named lot persists nothing", func(t *testing.T) {
		h := newHarness(t)
		lot := h.receive(t, testProduct, 2, 0, 10)

		_, err := h.ledger.Append(ctx, appinventory.AppendMovementCommand{
			ProductID:    testProduct,
			MovementType: inventory.MovementTypeOut,
			Quantity:     qty(3),
			LotNumber:    &lot.LotNumber,
		})
		assert.ErrorIs(t, err, shared.ErrOverConsumption)
		assert.Len(t, h.movements(t, testProduct), 1)
		assert.True(t, h.currentStock(t, testProduct).Equal(qty(2)))
	})

	t.Run("unknown lot", func(t *testing.T) {
		h := newHarness(t)
		missing := "NOPE"
		_, err := h.ledger.Append(ctx, appinventory.AppendMovementCommand{
			ProductID:    testProduct,
			MovementType: inventory.MovementTypeOut,
			Quantity:     qty(1),
			LotNumber:    &missing,
		})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("lot of another product", func(t *testing.T) {
		h := newHarness(t)
		lot := h.receive(t, "beef-brisket", 5, 0, 10)
		_, err := h.ledger.Append(ctx, appinventory.AppendMovementCommand{
			ProductID:    testProduct,
			MovementType: inventory.MovementTypeOut,
			Quantity:     qty(1),
			LotNumber:    &lot.LotNumber,
		})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("in movement creates the projection with defaults", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.ledger.Append(ctx, appinventory.AppendMovementCommand{
			ProductID:    "chicken-thigh",
			MovementType: inventory.MovementTypeIn,
			Quantity:     qty(12),
		})
		require.NoError(t, err)

		inv, err := h.projection.GetInventory(ctx, "chicken-thigh")
		require.NoError(t, err)
		assert.True(t, inv.SafetyStock.Equal(inventory.DefaultSafetyStock))
		assert.Equal(t, inventory.DefaultLocation, inv.Location)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.ledger.Append(ctx, appinventory.AppendMovementCommand{ProductID: testProduct, MovementType: "transfer", Quantity: qty(1)})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)

		_, err = h.ledger.Append(ctx, appinventory.AppendMovementCommand{ProductID: testProduct, MovementType: inventory.MovementTypeIn, Quantity: qty(0)})
		assert.ErrorIs(t, err, shared.ErrInvalidQuantity)

		_, err = h.ledger.Append(ctx, appinventory.AppendMovementCommand{ProductID: "", MovementType: inventory.MovementTypeIn, Quantity: qty(1)})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("storage failure rolls back the append", func(t *testing.T) {
		h := newHarness(t)
		h.store.FailOn(memory.OpInventorySave, errors.New("disk full"))

		_, err := h.ledger.Append(ctx, appinventory.AppendMovementCommand{ProductID: testProduct, MovementType: inventory.MovementTypeIn, Quantity: qty(5)})
		assert.ErrorIs(t, err, shared.ErrStorageFailure)
		assert.Empty(t, h.movements(t, testProduct))

		_, err = h.projection.GetInventory(ctx, testProduct)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestLedgerService_QueryByProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		h.clock.Set(day(i))
		h.receive(t, testProduct, int64(i+1), i, 10)
	}

	recent, err := h.ledger.QueryByProduct(ctx, testProduct, inventory.MovementQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Quantity.Equal(qty(4)), "oldest of the most recent two comes first")
	assert.True(t, recent[1].Quantity.Equal(qty(5)))

	since := day(3)
	fromDay3, err := h.ledger.QueryByProduct(ctx, testProduct, inventory.MovementQuery{Since: &since})
	require.NoError(t, err)
	assert.Len(t, fromDay3, 2)

	_, err = h.ledger.QueryByProduct(ctx, testProduct, inventory.MovementQuery{Limit: -1})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	none, err := h.ledger.QueryByProduct(ctx, "unknown", inventory.MovementQuery{})
	require.NoError(t, err)
	assert.Empty(t, none)
}
