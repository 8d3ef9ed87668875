package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// MovementType represents the kind of stock-affecting event
type MovementType string

const (
	// MovementTypeIn records goods received into stock
	MovementTypeIn MovementType = "in"
	// MovementTypeOut records goods leaving stock (sales)
	MovementTypeOut MovementType = "out"
	// MovementTypeAdjust records a physical-count correction
	MovementTypeAdjust MovementType = "adjust"
	// MovementTypeDiscard records a manual write-off (spoilage, expiry)
	MovementTypeDiscard MovementType = "discard"
)

// String returns the string representation of MovementType
func (t MovementType) String() string {
	return string(t)
}

// IsValid returns true if the movement type is valid
func (t MovementType) IsValid() bool {
	switch t {
	case MovementTypeIn, MovementTypeOut, MovementTypeAdjust, MovementTypeDiscard:
		return true
	}
	return false
}

// IsDecrease returns true if the movement always removes stock
func (t MovementType) IsDecrease() bool {
	return t == MovementTypeOut || t == MovementTypeDiscard
}

// ReferenceType names the external document a movement belongs to
type ReferenceType string

const (
	ReferenceTypePurchase   ReferenceType = "purchase"
	ReferenceTypeSale       ReferenceType = "sale"
	ReferenceTypeReturn     ReferenceType = "return"
	ReferenceTypeStockCount ReferenceType = "stock_count"
	ReferenceTypeWriteOff   ReferenceType = "write_off"
	ReferenceTypeManual     ReferenceType = "manual"
)

// IsValid returns true if the reference type is known or empty
func (t ReferenceType) IsValid() bool {
	switch t {
	case "", ReferenceTypePurchase, ReferenceTypeSale, ReferenceTypeReturn,
		ReferenceTypeStockCount, ReferenceTypeWriteOff, ReferenceTypeManual:
		return true
	}
	return false
}

// Reference links a movement to the transaction commit that caused it
type Reference struct {
	TransactionID string
	Type          ReferenceType
	ID            string
}

// IsZero returns true if no reference was supplied
func (r Reference) IsZero() bool {
	return r.TransactionID == "" && r.Type == "" && r.ID == ""
}

// Key identifies the reference for idempotency checks
func (r Reference) Key() string {
	if r.Type == "" && r.ID == "" {
		return ""
	}
	return string(r.Type) + ":" + r.ID
}

// MovementOrigin names the operation that wrote a movement
type MovementOrigin string

const (
	// MovementOriginDirect marks entries appended directly, by receipts or by adjustments
	MovementOriginDirect MovementOrigin = "direct"
	// MovementOriginAllocation marks entries written by FIFO allocation
	MovementOriginAllocation MovementOrigin = "allocation"
)

// IsValid returns true if the origin is known
func (o MovementOrigin) IsValid() bool {
	return o == MovementOriginDirect || o == MovementOriginAllocation
}

// NoteLotUnknown marks an outbound movement that no active lot could cover
const NoteLotUnknown = "lot-unknown: outbound not covered by any active lot"

// StockMovement is one immutable ledger entry. Quantity is always non-negative;
// Delta carries the signed physical effect on current stock.
type StockMovement struct {
	ID                 uuid.UUID
	ProductID          string
	ProductName        string
	Unit               string
	MovementType       MovementType
	Quantity           decimal.Decimal
	Delta              decimal.Decimal
	BalanceAfter       decimal.Decimal
	UnitPrice          *decimal.Decimal
	LotNumber          *string
	ExpiryDate         *time.Time
	TraceabilityNumber string
	Reference          Reference
	Notes              string
	Origin             MovementOrigin
	Sequence           int64
	CreatedAt          time.Time
}

// HasLot returns true if the movement is tied to a lot
func (m *StockMovement) HasLot() bool {
	return m.LotNumber != nil && *m.LotNumber != ""
}

// IsAllocation returns true if FIFO allocation wrote the movement
func (m *StockMovement) IsAllocation() bool {
	return m.Origin == MovementOriginAllocation
}

// IsLotUnknown returns true for the shortage fallback entry
func (m *StockMovement) IsLotUnknown() bool {
	return m.MovementType == MovementTypeOut && !m.HasLot()
}

// MovementBuilder assembles a StockMovement with optional attributes
type MovementBuilder struct {
	movement StockMovement
	target   *decimal.Decimal
	err      error
}

// NewMovementBuilder starts a movement of the given type and quantity.
// For adjust movements the quantity is the absolute target stock level.
func NewMovementBuilder(productID string, movementType MovementType, quantity decimal.Decimal) *MovementBuilder {
	b := &MovementBuilder{
		movement: StockMovement{
			ID:           uuid.New(),
			ProductID:    productID,
			MovementType: movementType,
			Quantity:     quantity,
			Origin:       MovementOriginDirect,
		},
	}
	if err := ValidateProductID(productID); err != nil {
		b.err = err
		return b
	}
	if !movementType.IsValid() {
		b.err = shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Invalid movement type %q", movementType))
		return b
	}
	if movementType == MovementTypeAdjust {
		if quantity.IsNegative() {
			b.err = shared.NewDomainError(shared.CodeInvalidQuantity, "Adjustment target cannot be negative")
		}
		target := quantity
		b.target = &target
		return b
	}
	if !quantity.IsPositive() {
		b.err = shared.NewDomainError(shared.CodeInvalidQuantity, "Quantity must be positive")
	}
	return b
}

// WithProduct sets the denormalized product name and unit
func (b *MovementBuilder) WithProduct(name, unit string) *MovementBuilder {
	b.movement.ProductName = name
	b.movement.Unit = unit
	return b
}

// WithUnitPrice sets the unit price used for costing
func (b *MovementBuilder) WithUnitPrice(price *decimal.Decimal) *MovementBuilder {
	if price != nil && price.IsNegative() {
		b.err = shared.NewDomainError(shared.CodeInvalidInput, "Unit price cannot be negative")
		return b
	}
	b.movement.UnitPrice = price
	return b
}

// WithLot ties the movement to a lot
func (b *MovementBuilder) WithLot(lotNumber string, expiryDate time.Time) *MovementBuilder {
	if lotNumber == "" {
		return b
	}
	b.movement.LotNumber = &lotNumber
	if !expiryDate.IsZero() {
		d := NormalizeDate(expiryDate)
		b.movement.ExpiryDate = &d
	}
	return b
}

// WithLotNumber ties the movement to a lot known only by number
func (b *MovementBuilder) WithLotNumber(lotNumber *string) *MovementBuilder {
	if lotNumber == nil || *lotNumber == "" {
		return b
	}
	n := *lotNumber
	b.movement.LotNumber = &n
	return b
}

// WithExpiryDate sets the expiry date carried on the movement
func (b *MovementBuilder) WithExpiryDate(expiryDate *time.Time) *MovementBuilder {
	if expiryDate == nil || expiryDate.IsZero() {
		return b
	}
	d := NormalizeDate(*expiryDate)
	b.movement.ExpiryDate = &d
	return b
}

// WithTraceability sets the regulatory traceability number
func (b *MovementBuilder) WithTraceability(number string) *MovementBuilder {
	b.movement.TraceabilityNumber = number
	return b
}

// WithReference links the movement to an external transaction commit
func (b *MovementBuilder) WithReference(ref Reference) *MovementBuilder {
	if !ref.Type.IsValid() {
		b.err = shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Invalid reference type %q", ref.Type))
		return b
	}
	b.movement.Reference = ref
	return b
}

// WithNotes sets free-form notes
func (b *MovementBuilder) WithNotes(notes string) *MovementBuilder {
	b.movement.Notes = notes
	return b
}

// WithOrigin records which operation wrote the movement
func (b *MovementBuilder) WithOrigin(origin MovementOrigin) *MovementBuilder {
	if !origin.IsValid() {
		b.err = shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Invalid movement origin %q", origin))
		return b
	}
	b.movement.Origin = origin
	return b
}

// Build finalizes the movement against the current stock level of the product.
// Adjust targets are normalized into a signed delta whose magnitude becomes the quantity.
func (b *MovementBuilder) Build(currentStock decimal.Decimal, sequence int64, now time.Time) (*StockMovement, error) {
	if b.err != nil {
		return nil, b.err
	}
	m := b.movement
	switch m.MovementType {
	case MovementTypeIn:
		m.Delta = m.Quantity
	case MovementTypeOut, MovementTypeDiscard:
		m.Delta = m.Quantity.Neg()
	case MovementTypeAdjust:
		m.Delta = b.target.Sub(currentStock)
		m.Quantity = m.Delta.Abs()
	}
	m.BalanceAfter = currentStock.Add(m.Delta)
	m.Sequence = sequence
	m.CreatedAt = now
	return &m, nil
}

// AdjustTarget returns the absolute target for adjust movements
func (b *MovementBuilder) AdjustTarget() (decimal.Decimal, bool) {
	if b.target == nil {
		return decimal.Zero, false
	}
	return *b.target, true
}

// SumDeltas returns the signed sum of movement deltas
func SumDeltas(movements []StockMovement) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range movements {
		sum = sum.Add(m.Delta)
	}
	return sum
}
