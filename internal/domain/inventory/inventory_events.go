package inventory

import (
	"time"

	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type constants
const (
	AggregateTypeStockLot         = "StockLot"
	AggregateTypeProductInventory = "ProductInventory"
)

// Event type constants
const (
	EventTypeLotOpened             = "LotOpened"
	EventTypeLotExpired            = "LotExpired"
	EventTypeStockShortageDetected = "StockShortageDetected"
	EventTypeStockStatusChanged    = "StockStatusChanged"
)

// LotOpenedEvent is raised when a new lot is received into stock
type LotOpenedEvent struct {
	shared.BaseDomainEvent
	LotID              string          `json:"lot_id"`
	ProductID          string          `json:"product_id"`
	LotNumber          string          `json:"lot_number"`
	Quantity           decimal.Decimal `json:"quantity"`
	ExpiryDate         time.Time       `json:"expiry_date"`
	TraceabilityNumber string          `json:"traceability_number,omitempty"`
}

// NewLotOpenedEvent creates a new LotOpenedEvent
func NewLotOpenedEvent(lot *StockLot) *LotOpenedEvent {
	return &LotOpenedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeLotOpened, AggregateTypeStockLot, lot.LotNumber),
		LotID:              lot.ID.String(),
		ProductID:          lot.ProductID,
		LotNumber:          lot.LotNumber,
		Quantity:           lot.InitialQuantity,
		ExpiryDate:         lot.ExpiryDate,
		TraceabilityNumber: lot.TraceabilityNumber,
	}
}

// LotExpiredEvent is raised when a lot is retired past its expiry date.
// RemainingQuantity is what is physically left and should be discarded.
type LotExpiredEvent struct {
	shared.BaseDomainEvent
	LotID             string          `json:"lot_id"`
	ProductID         string          `json:"product_id"`
	LotNumber         string          `json:"lot_number"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	ExpiryDate        time.Time       `json:"expiry_date"`
}

// NewLotExpiredEvent creates a new LotExpiredEvent
func NewLotExpiredEvent(lot *StockLot) *LotExpiredEvent {
	return &LotExpiredEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeLotExpired, AggregateTypeStockLot, lot.LotNumber),
		LotID:             lot.ID.String(),
		ProductID:         lot.ProductID,
		LotNumber:         lot.LotNumber,
		RemainingQuantity: lot.RemainingQuantity,
		ExpiryDate:        lot.ExpiryDate,
	}
}

// StockShortageDetectedEvent is raised when an outbound allocation could not be
// covered by active lots and a lot-unknown movement was recorded
type StockShortageDetectedEvent struct {
	shared.BaseDomainEvent
	ProductID     string          `json:"product_id"`
	Requested     decimal.Decimal `json:"requested"`
	Allocated     decimal.Decimal `json:"allocated"`
	Shortage      decimal.Decimal `json:"shortage"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
}

// NewStockShortageDetectedEvent creates a new StockShortageDetectedEvent
func NewStockShortageDetectedEvent(productID string, requested, allocated, shortage decimal.Decimal, ref Reference) *StockShortageDetectedEvent {
	return &StockShortageDetectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockShortageDetected, AggregateTypeProductInventory, productID),
		ProductID:       productID,
		Requested:       requested,
		Allocated:       allocated,
		Shortage:        shortage,
		ReferenceType:   string(ref.Type),
		ReferenceID:     ref.ID,
	}
}

// StockStatusChangedEvent is raised when a product crosses a safety-stock threshold
type StockStatusChangedEvent struct {
	shared.BaseDomainEvent
	ProductID      string          `json:"product_id"`
	PreviousStatus StockStatus     `json:"previous_status"`
	Status         StockStatus     `json:"status"`
	CurrentStock   decimal.Decimal `json:"current_stock"`
	SafetyStock    decimal.Decimal `json:"safety_stock"`
	Location       StorageLocation `json:"location"`
}

// NewStockStatusChangedEvent creates a new StockStatusChangedEvent
func NewStockStatusChangedEvent(p *ProductInventory, previous, current StockStatus) *StockStatusChangedEvent {
	return &StockStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockStatusChanged, AggregateTypeProductInventory, p.ProductID),
		ProductID:       p.ProductID,
		PreviousStatus:  previous,
		Status:          current,
		CurrentStock:    p.CurrentStock,
		SafetyStock:     p.SafetyStock,
		Location:        p.Location,
	}
}

// IsDeterioration returns true if the new status is worse than the previous one
func (e *StockStatusChangedEvent) IsDeterioration() bool {
	return e.Status.Severity() > e.PreviousStatus.Severity()
}
