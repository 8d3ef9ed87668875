package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// LotStatus is the lifecycle state of a stock lot
type LotStatus string

const (
	// LotStatusActive lots are eligible for FIFO allocation
	LotStatusActive LotStatus = "active"
	// LotStatusFinished lots were consumed down to zero while active
	LotStatusFinished LotStatus = "finished"
	// LotStatusExpired lots were retired past their expiry date
	LotStatusExpired LotStatus = "expired"
)

// String returns the string representation of LotStatus
func (s LotStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is known
func (s LotStatus) IsValid() bool {
	switch s {
	case LotStatusActive, LotStatusFinished, LotStatusExpired:
		return true
	}
	return false
}

// StockLot is a physically distinct receipt of goods, tracked for expiry
// and traceability. Lots are never deleted.
type StockLot struct {
	shared.BaseEntity
	ProductID          string
	LotNumber          string
	Sequence           int64 // per-product receipt order, the FIFO key
	InitialQuantity    decimal.Decimal
	RemainingQuantity  decimal.Decimal
	ExpiryDate         time.Time
	TraceabilityNumber string
	SupplierID         *string
	SupplierName       string
	Status             LotStatus
	ReceivedAt         time.Time
}

// NewStockLotParams groups the inputs required to open a lot
type NewStockLotParams struct {
	ProductID          string
	LotNumber          string
	Sequence           int64
	Quantity           decimal.Decimal
	ExpiryDate         time.Time
	TraceabilityNumber string
	SupplierID         *string
	SupplierName       string
	ReceivedAt         time.Time
}

// NewStockLot opens a new active lot with remaining == initial == quantity
func NewStockLot(p NewStockLotParams) (*StockLot, error) {
	if err := ValidateProductID(p.ProductID); err != nil {
		return nil, err
	}
	if !p.Quantity.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Lot quantity must be positive")
	}
	if strings.TrimSpace(p.LotNumber) == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Lot number cannot be empty")
	}
	if len(p.LotNumber) > 100 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Lot number cannot exceed 100 characters")
	}
	if p.ExpiryDate.IsZero() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Expiry date is required")
	}
	if p.Sequence <= 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Lot sequence must be positive")
	}

	receivedAt := p.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	return &StockLot{
		BaseEntity:         shared.NewBaseEntityAt(receivedAt),
		ProductID:          p.ProductID,
		LotNumber:          p.LotNumber,
		Sequence:           p.Sequence,
		InitialQuantity:    p.Quantity,
		RemainingQuantity:  p.Quantity,
		ExpiryDate:         NormalizeDate(p.ExpiryDate),
		TraceabilityNumber: p.TraceabilityNumber,
		SupplierID:         p.SupplierID,
		SupplierName:       p.SupplierName,
		Status:             LotStatusActive,
		ReceivedAt:         receivedAt,
	}, nil
}

// Consume decrements the remaining quantity.
// An active lot that reaches exactly zero becomes finished; an expired lot stays expired.
func (l *StockLot) Consume(amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return shared.NewDomainError(shared.CodeInvalidQuantity, "Consumed amount must be positive")
	}
	if amount.GreaterThan(l.RemainingQuantity) {
		return shared.NewDomainError(shared.CodeOverConsumption,
			fmt.Sprintf("Cannot consume %s from lot %s: only %s remaining",
				amount.String(), l.LotNumber, l.RemainingQuantity.String()))
	}
	l.RemainingQuantity = l.RemainingQuantity.Sub(amount)
	if l.RemainingQuantity.IsZero() && l.Status == LotStatusActive {
		l.Status = LotStatusFinished
	}
	l.Touch(now)
	return nil
}

// MarkExpired retires the lot from allocation. It reports whether the status changed.
// Expired lots are left as they are, and finished lots keep their status because
// they reached zero through consumption.
func (l *StockLot) MarkExpired(now time.Time) bool {
	if l.Status != LotStatusActive {
		return false
	}
	l.Status = LotStatusExpired
	l.Touch(now)
	return true
}

// IsActive returns true if the lot can be allocated
func (l *StockLot) IsActive() bool {
	return l.Status == LotStatusActive
}

// HasStock returns true if the lot still holds quantity
func (l *StockLot) HasStock() bool {
	return l.RemainingQuantity.IsPositive()
}

// IsPastExpiry returns true if the expiry date is strictly before today
func (l *StockLot) IsPastExpiry(today time.Time) bool {
	return l.ExpiryDate.Before(NormalizeDate(today))
}

// DaysUntilExpiry returns whole days from today to the expiry date (negative once past)
func (l *StockLot) DaysUntilExpiry(today time.Time) int {
	return DaysBetween(NormalizeDate(today), l.ExpiryDate)
}

// ConsumedQuantity returns how much of the lot has left stock
func (l *StockLot) ConsumedQuantity() decimal.Decimal {
	return l.InitialQuantity.Sub(l.RemainingQuantity)
}

// CheckInvariants verifies 0 <= remaining <= initial and status consistency
func (l *StockLot) CheckInvariants() error {
	if l.RemainingQuantity.IsNegative() {
		return fmt.Errorf("lot %s: remaining quantity %s is negative", l.LotNumber, l.RemainingQuantity)
	}
	if l.RemainingQuantity.GreaterThan(l.InitialQuantity) {
		return fmt.Errorf("lot %s: remaining quantity %s exceeds initial %s",
			l.LotNumber, l.RemainingQuantity, l.InitialQuantity)
	}
	if l.Status == LotStatusFinished && !l.RemainingQuantity.IsZero() {
		return fmt.Errorf("lot %s: finished with %s remaining", l.LotNumber, l.RemainingQuantity)
	}
	if !l.Status.IsValid() {
		return fmt.Errorf("lot %s: unknown status %q", l.LotNumber, l.Status)
	}
	return nil
}

// NormalizeDate truncates t to its calendar day at UTC midnight
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns whole calendar days from a to b
func DaysBetween(a, b time.Time) int {
	return int(NormalizeDate(b).Sub(NormalizeDate(a)).Hours() / 24)
}

// ValidateProductID checks the external product identifier
func ValidateProductID(productID string) error {
	if strings.TrimSpace(productID) == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "Product ID cannot be empty")
	}
	if len(productID) > 64 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Product ID cannot exceed 64 characters")
	}
	return nil
}
