package inventory

import (
	"testing"

	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateStockStatus(t *testing.T) {
	tests := []struct {
		current, safety string
		want            StockStatus
	}{
		{"0", "30", StockStatusOut},
		{"-5", "30", StockStatusOut},
		{"0", "0", StockStatusOut},
		{"10", "0", StockStatusOK},
		{"14.99", "30", StockStatusCritical},
		{"15", "30", StockStatusLow},
		{"29.9", "30", StockStatusLow},
		{"30", "30", StockStatusOK},
		{"100", "30", StockStatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.current+"/"+tt.safety, func(t *testing.T) {
			got := EvaluateStockStatus(decimal.RequireFromString(tt.current), decimal.RequireFromString(tt.safety))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStockStatus_Severity(t *testing.T) {
	assert.Less(t, StockStatusOK.Severity(), StockStatusLow.Severity())
	assert.Less(t, StockStatusLow.Severity(), StockStatusCritical.Severity())
	assert.Less(t, StockStatusCritical.Severity(), StockStatusOut.Severity())
	assert.False(t, StockStatusOK.NeedsAttention())
	assert.True(t, StockStatusLow.NeedsAttention())
}

func TestNewProductInventory(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p, err := NewProductInventory("p1", DefaultTrackingSettings(), testNow)
		require.NoError(t, err)

		assert.True(t, p.CurrentStock.IsZero())
		assert.True(t, p.SafetyStock.Equal(decimal.NewFromInt(30)))
		assert.Equal(t, LocationCold, p.Location)
		assert.Equal(t, StockStatusOut, p.Status())
	})

	t.Run("invalid settings", func(t *testing.T) {
		_, err := NewProductInventory("p1", TrackingSettings{SafetyStock: decimal.NewFromInt(-1), Location: LocationCold}, testNow)
		assert.ErrorIs(t, err, shared.ErrInvalidQuantity)

		_, err = NewProductInventory("p1", TrackingSettings{SafetyStock: decimal.Zero, Location: "attic"}, testNow)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestProductInventory_ApplyMovement(t *testing.T) {
	p, err := NewProductInventory("p1", DefaultTrackingSettings(), testNow)
	require.NoError(t, err)

	in, err := NewMovementBuilder("p1", MovementTypeIn, decimal.NewFromInt(40)).Build(p.CurrentStock, 1, testNow)
	require.NoError(t, err)
	require.NoError(t, p.ApplyMovement(in, testNow))
	assert.True(t, p.CurrentStock.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, StockStatusOK, p.Status())

	events := p.GetDomainEvents()
	require.Len(t, events, 1)
	changed := events[0].(*StockStatusChangedEvent)
	assert.Equal(t, StockStatusOut, changed.PreviousStatus)
	assert.Equal(t, StockStatusOK, changed.Status)
	assert.False(t, changed.IsDeterioration())
	p.ClearDomainEvents()

	out, err := NewMovementBuilder("p1", MovementTypeOut, decimal.NewFromInt(30)).Build(p.CurrentStock, 2, testNow)
	require.NoError(t, err)
	require.NoError(t, p.ApplyMovement(out, testNow))
	assert.Equal(t, StockStatusCritical, p.Status())
	require.Len(t, p.GetDomainEvents(), 1)
	assert.True(t, p.GetDomainEvents()[0].(*StockStatusChangedEvent).IsDeterioration())

	t.Run("rejects another product's movement", func(t *testing.T) {
		other, err := NewMovementBuilder("p2", MovementTypeIn, decimal.NewFromInt(1)).Build(decimal.Zero, 1, testNow)
		require.NoError(t, err)
		assert.ErrorIs(t, p.ApplyMovement(other, testNow), shared.ErrInvalidInput)
	})
}

func TestProductInventory_UpdateSettings(t *testing.T) {
	p, err := NewProductInventory("p1", DefaultTrackingSettings(), testNow)
	require.NoError(t, err)
	p.CurrentStock = decimal.NewFromInt(20)

	require.NoError(t, p.UpdateSettings(TrackingSettings{SafetyStock: decimal.NewFromInt(10), Location: LocationFrozen}, testNow))
	assert.Equal(t, LocationFrozen, p.Location)
	assert.Equal(t, StockStatusOK, p.Status())
	assert.Len(t, p.GetDomainEvents(), 1)
}

func TestShelfLifePolicy(t *testing.T) {
	policy := DefaultShelfLifePolicy()

	assert.Equal(t, 7, policy.Days("pork"))
	assert.Equal(t, 10, policy.Days("Beef"))
	assert.Equal(t, 5, policy.Days("poultry"))
	assert.Equal(t, 7, policy.Days("lamb"))
	assert.Equal(t, 7, policy.Days(""))

	assert.Equal(t, NormalizeDate(testNow).AddDate(0, 0, 10), policy.ExpiryFor("beef", testNow))
}

func TestGenerateLotNumber(t *testing.T) {
	n := GenerateLotNumber(testNow, "P001", func() string { return "0042" })
	assert.Equal(t, "LOT-20240310-P001-0042", n)

	random := GenerateLotNumber(testNow, "P001", nil)
	assert.Regexp(t, `^LOT-20240310-P001-\d{4}$`, random)
}
