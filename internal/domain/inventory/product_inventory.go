package inventory

import (
	"fmt"
	"time"

	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// StorageLocation is the temperature zone a product is stored in
type StorageLocation string

const (
	LocationFrozen StorageLocation = "frozen"
	LocationCold   StorageLocation = "cold"
	LocationRoom   StorageLocation = "room"
)

// IsValid returns true if the location is known
func (l StorageLocation) IsValid() bool {
	switch l {
	case LocationFrozen, LocationCold, LocationRoom:
		return true
	}
	return false
}

// String returns the string representation of StorageLocation
func (l StorageLocation) String() string {
	return string(l)
}

// Defaults applied when tracking is enabled lazily
var (
	DefaultSafetyStock = decimal.NewFromInt(30)
	DefaultLocation    = LocationCold
)

// TrackingSettings holds the per-product projection settings
type TrackingSettings struct {
	SafetyStock decimal.Decimal
	Location    StorageLocation
}

// DefaultTrackingSettings returns safety stock 30 in cold storage
func DefaultTrackingSettings() TrackingSettings {
	return TrackingSettings{
		SafetyStock: DefaultSafetyStock,
		Location:    DefaultLocation,
	}
}

// Validate checks the settings
func (s TrackingSettings) Validate() error {
	if s.SafetyStock.IsNegative() {
		return shared.NewDomainError(shared.CodeInvalidQuantity, "Safety stock cannot be negative")
	}
	if !s.Location.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Invalid storage location %q", s.Location))
	}
	return nil
}

// ProductInventory is the current-state projection of the ledger for one product.
// CurrentStock always equals the signed sum of the product's movement deltas.
type ProductInventory struct {
	shared.BaseAggregateRoot
	ProductID    string
	CurrentStock decimal.Decimal
	SafetyStock  decimal.Decimal
	Location     StorageLocation
	LastUpdated  time.Time
}

// NewProductInventory enables tracking for a product with zero stock
func NewProductInventory(productID string, settings TrackingSettings, now time.Time) (*ProductInventory, error) {
	if err := ValidateProductID(productID); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &ProductInventory{
		BaseAggregateRoot: shared.NewBaseAggregateRootAt(now),
		ProductID:         productID,
		CurrentStock:      decimal.Zero,
		SafetyStock:       settings.SafetyStock,
		Location:          settings.Location,
		LastUpdated:       now,
	}, nil
}

// Status evaluates the safety-stock monitor for this product
func (p *ProductInventory) Status() StockStatus {
	return EvaluateStockStatus(p.CurrentStock, p.SafetyStock)
}

// ApplyMovement folds a ledger entry into the projection. Must be called in
// the same transaction that appends the movement.
func (p *ProductInventory) ApplyMovement(m *StockMovement, now time.Time) error {
	if m.ProductID != p.ProductID {
		return shared.NewDomainError(shared.CodeInvalidInput,
			fmt.Sprintf("Movement for product %s applied to inventory of %s", m.ProductID, p.ProductID))
	}
	before := p.Status()
	p.CurrentStock = p.CurrentStock.Add(m.Delta)
	p.LastUpdated = now
	p.Touch(now)

	after := p.Status()
	if after != before {
		p.AddDomainEvent(NewStockStatusChangedEvent(p, before, after))
	}
	return nil
}

// UpdateSettings changes safety stock and location
func (p *ProductInventory) UpdateSettings(settings TrackingSettings, now time.Time) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	before := p.Status()
	p.SafetyStock = settings.SafetyStock
	p.Location = settings.Location
	p.Touch(now)
	if after := p.Status(); after != before {
		p.AddDomainEvent(NewStockStatusChangedEvent(p, before, after))
	}
	return nil
}

// Settings returns the current tracking settings
func (p *ProductInventory) Settings() TrackingSettings {
	return TrackingSettings{SafetyStock: p.SafetyStock, Location: p.Location}
}
