package handler

import (
	"time"

	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

// Quantities are decimal.Decimal and accept either JSON numbers or strings.
// Their positivity is checked by the domain so that every caller gets the
// same INVALID_QUANTITY error.

// ReferenceRequest identifies the business document behind a movement
type ReferenceRequest struct {
	TransactionID string `json:"transaction_id" binding:"omitempty,max=64"`
	Type          string `json:"type" binding:"omitempty,oneof=purchase sale return stock_count write_off manual"`
	ID            string `json:"id" binding:"omitempty,max=64"`
}

func (r ReferenceRequest) toDomain() inventory.Reference {
	return inventory.Reference{
		TransactionID: r.TransactionID,
		Type:          inventory.ReferenceType(r.Type),
		ID:            r.ID,
	}
}

// PurchaseReceiptRequest is the body of POST /lots/receipts
type PurchaseReceiptRequest struct {
	ProductID          string           `json:"product_id" binding:"required,max=64"`
	ProductName        string           `json:"product_name" binding:"max=200"`
	Unit               string           `json:"unit" binding:"max=20"`
	Category           string           `json:"category" binding:"max=50"`
	Quantity           decimal.Decimal  `json:"quantity"`
	UnitPrice          *decimal.Decimal `json:"unit_price"`
	ReceiptDate        string           `json:"receipt_date"`
	ExpiryDate         *string          `json:"expiry_date"`
	TraceabilityNumber string           `json:"traceability_number" binding:"max=64"`
	SupplierID         *string          `json:"supplier_id" binding:"omitempty,max=64"`
	SupplierName       string           `json:"supplier_name" binding:"max=200"`
	SafetyStock        *decimal.Decimal `json:"safety_stock"`
	Location           *string          `json:"location" binding:"omitempty,oneof=frozen cold room"`
	Reference          ReferenceRequest `json:"reference"`
}

// OpenLotRequest is the body of POST /lots
type OpenLotRequest struct {
	ProductID          string          `json:"product_id" binding:"required,max=64"`
	LotNumber          string          `json:"lot_number" binding:"max=64"`
	Quantity           decimal.Decimal `json:"quantity"`
	ExpiryDate         string          `json:"expiry_date" binding:"required"`
	TraceabilityNumber string          `json:"traceability_number" binding:"max=64"`
	SupplierID         *string         `json:"supplier_id" binding:"omitempty,max=64"`
	SupplierName       string          `json:"supplier_name" binding:"max=200"`
	ReceivedAt         *time.Time      `json:"received_at"`
}

// ConsumeLotRequest is the body of POST /lots/:id/consume
type ConsumeLotRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

// AppendMovementRequest is the body of POST /movements.
// For adjust movements Quantity is the target stock level.
type AppendMovementRequest struct {
	ProductID          string           `json:"product_id" binding:"required,max=64"`
	ProductName        string           `json:"product_name" binding:"max=200"`
	Unit               string           `json:"unit" binding:"max=20"`
	MovementType       string           `json:"movement_type" binding:"required,oneof=in out adjust discard"`
	Quantity           decimal.Decimal  `json:"quantity"`
	UnitPrice          *decimal.Decimal `json:"unit_price"`
	LotNumber          *string          `json:"lot_number" binding:"omitempty,max=64"`
	ExpiryDate         *string          `json:"expiry_date"`
	TraceabilityNumber string           `json:"traceability_number" binding:"max=64"`
	Reference          ReferenceRequest `json:"reference"`
	Notes              string           `json:"notes" binding:"max=500"`
}

// AllocateRequest is the body of POST /allocations
type AllocateRequest struct {
	ProductID          string           `json:"product_id" binding:"required,max=64"`
	ProductName        string           `json:"product_name" binding:"max=200"`
	Unit               string           `json:"unit" binding:"max=20"`
	Quantity           decimal.Decimal  `json:"quantity"`
	UnitPrice          *decimal.Decimal `json:"unit_price"`
	TraceabilityNumber string           `json:"traceability_number" binding:"max=64"`
	Reference          ReferenceRequest `json:"reference"`
	Notes              string           `json:"notes" binding:"max=500"`
}

// InventoryReceiveRequest is the body of POST /products/:product_id/inventory/receive
type InventoryReceiveRequest struct {
	ProductName        string           `json:"product_name" binding:"max=200"`
	Unit               string           `json:"unit" binding:"max=20"`
	Quantity           decimal.Decimal  `json:"quantity"`
	UnitPrice          *decimal.Decimal `json:"unit_price"`
	SafetyStock        *decimal.Decimal `json:"safety_stock"`
	Location           *string          `json:"location" binding:"omitempty,oneof=frozen cold room"`
	LotNumber          *string          `json:"lot_number" binding:"omitempty,max=64"`
	ExpiryDate         *string          `json:"expiry_date"`
	TraceabilityNumber string           `json:"traceability_number" binding:"max=64"`
	Reference          ReferenceRequest `json:"reference"`
	Notes              string           `json:"notes" binding:"max=500"`
}

// AdjustInventoryRequest sets the absolute stock level of a product
type AdjustInventoryRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	Reason   string          `json:"reason" binding:"max=500"`
}

// InventorySettingsRequest enables tracking or changes safety stock and location
type InventorySettingsRequest struct {
	SafetyStock *decimal.Decimal `json:"safety_stock"`
	Location    *string          `json:"location" binding:"omitempty,oneof=frozen cold room"`
}
