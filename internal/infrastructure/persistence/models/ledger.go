package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

// StockLotModel is the persistence model for the StockLot entity.
type StockLotModel struct {
	BaseModel
	ProductID          string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_stock_lots_product_seq,priority:1;index:idx_stock_lots_product_status,priority:1"`
	LotNumber          string          `gorm:"type:varchar(100);not null;uniqueIndex"`
	Sequence           int64           `gorm:"column:seq;not null;uniqueIndex:idx_stock_lots_product_seq,priority:2"`
	InitialQuantity    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	RemainingQuantity  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ExpiryDate         time.Time       `gorm:"type:date;not null;index"`
	TraceabilityNumber string          `gorm:"type:varchar(100);not null"`
	SupplierID         *string         `gorm:"type:varchar(64)"`
	SupplierName       string          `gorm:"type:varchar(200);not null;default:''"`
	Status             string          `gorm:"type:varchar(20);not null;index:idx_stock_lots_product_status,priority:2"`
	ReceivedAt         time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockLotModel) TableName() string {
	return "stock_lots"
}

// ToDomain converts the persistence model to a domain StockLot entity.
// Dates come back in UTC so they compare equal to normalized domain dates.
func (m *StockLotModel) ToDomain() *inventory.StockLot {
	return &inventory.StockLot{
		BaseEntity:         m.BaseModel.ToDomain(),
		ProductID:          m.ProductID,
		LotNumber:          m.LotNumber,
		Sequence:           m.Sequence,
		InitialQuantity:    m.InitialQuantity,
		RemainingQuantity:  m.RemainingQuantity,
		ExpiryDate:         inventory.NormalizeDate(m.ExpiryDate),
		TraceabilityNumber: m.TraceabilityNumber,
		SupplierID:         m.SupplierID,
		SupplierName:       m.SupplierName,
		Status:             inventory.LotStatus(m.Status),
		ReceivedAt:         m.ReceivedAt,
	}
}

// FromDomain populates the persistence model from a domain StockLot entity.
func (m *StockLotModel) FromDomain(l *inventory.StockLot) {
	m.FromDomainBaseEntity(l.BaseEntity)
	m.ProductID = l.ProductID
	m.LotNumber = l.LotNumber
	m.Sequence = l.Sequence
	m.InitialQuantity = l.InitialQuantity
	m.RemainingQuantity = l.RemainingQuantity
	m.ExpiryDate = l.ExpiryDate
	m.TraceabilityNumber = l.TraceabilityNumber
	m.SupplierID = l.SupplierID
	m.SupplierName = l.SupplierName
	m.Status = string(l.Status)
	m.ReceivedAt = l.ReceivedAt
}

// StockLotModelFromDomain creates a new persistence model from a domain StockLot entity.
func StockLotModelFromDomain(l *inventory.StockLot) *StockLotModel {
	m := &StockLotModel{}
	m.FromDomain(l)
	return m
}

// StockMovementModel is the persistence model for one ledger entry.
// Rows are inserted once and never updated.
type StockMovementModel struct {
	ID                 uuid.UUID        `gorm:"type:uuid;primaryKey"`
	ProductID          string           `gorm:"type:varchar(64);not null;uniqueIndex:idx_stock_movements_product_seq,priority:1;index:idx_stock_movements_reference,priority:1"`
	Sequence           int64            `gorm:"column:seq;not null;uniqueIndex:idx_stock_movements_product_seq,priority:2"`
	ProductName        string           `gorm:"type:varchar(200);not null;default:''"`
	Unit               string           `gorm:"type:varchar(20);not null;default:''"`
	MovementType       string           `gorm:"type:varchar(20);not null"`
	Quantity           decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	Delta              decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	BalanceAfter       decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	UnitPrice          *decimal.Decimal `gorm:"type:decimal(18,4)"`
	LotNumber          *string          `gorm:"type:varchar(100);index"`
	ExpiryDate         *time.Time       `gorm:"type:date"`
	TraceabilityNumber string           `gorm:"type:varchar(100);not null;default:''"`
	TransactionID      string           `gorm:"type:varchar(100);not null;default:''"`
	ReferenceType      string           `gorm:"type:varchar(20);not null;default:'';index:idx_stock_movements_reference,priority:2"`
	ReferenceID        string           `gorm:"type:varchar(100);not null;default:'';index:idx_stock_movements_reference,priority:3"`
	Notes              string           `gorm:"type:text;not null;default:''"`
	Origin             string           `gorm:"type:varchar(20);not null;default:'direct'"`
	CreatedAt          time.Time        `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (StockMovementModel) TableName() string {
	return "stock_movements"
}

// ToDomain converts the persistence model to a domain StockMovement.
func (m *StockMovementModel) ToDomain() *inventory.StockMovement {
	mv := &inventory.StockMovement{
		ID:                 m.ID,
		ProductID:          m.ProductID,
		ProductName:        m.ProductName,
		Unit:               m.Unit,
		MovementType:       inventory.MovementType(m.MovementType),
		Quantity:           m.Quantity,
		Delta:              m.Delta,
		BalanceAfter:       m.BalanceAfter,
		UnitPrice:          m.UnitPrice,
		LotNumber:          m.LotNumber,
		TraceabilityNumber: m.TraceabilityNumber,
		Reference: inventory.Reference{
			TransactionID: m.TransactionID,
			Type:          inventory.ReferenceType(m.ReferenceType),
			ID:            m.ReferenceID,
		},
		Notes:     m.Notes,
		Origin:    inventory.MovementOrigin(m.Origin),
		Sequence:  m.Sequence,
		CreatedAt: m.CreatedAt,
	}
	if mv.Origin == "" {
		mv.Origin = inventory.MovementOriginDirect
	}
	if m.ExpiryDate != nil {
		d := inventory.NormalizeDate(*m.ExpiryDate)
		mv.ExpiryDate = &d
	}
	return mv
}

// StockMovementModelFromDomain creates a new persistence model from a domain StockMovement.
func StockMovementModelFromDomain(mv *inventory.StockMovement) *StockMovementModel {
	return &StockMovementModel{
		ID:                 mv.ID,
		ProductID:          mv.ProductID,
		Sequence:           mv.Sequence,
		ProductName:        mv.ProductName,
		Unit:               mv.Unit,
		MovementType:       string(mv.MovementType),
		Quantity:           mv.Quantity,
		Delta:              mv.Delta,
		BalanceAfter:       mv.BalanceAfter,
		UnitPrice:          mv.UnitPrice,
		LotNumber:          mv.LotNumber,
		ExpiryDate:         mv.ExpiryDate,
		TraceabilityNumber: mv.TraceabilityNumber,
		TransactionID:      mv.Reference.TransactionID,
		ReferenceType:      string(mv.Reference.Type),
		ReferenceID:        mv.Reference.ID,
		Notes:              mv.Notes,
		Origin:             string(mv.Origin),
		CreatedAt:          mv.CreatedAt,
	}
}

// ProductInventoryModel is the persistence model for the per-product projection.
type ProductInventoryModel struct {
	AggregateModel
	ProductID    string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	CurrentStock decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	SafetyStock  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Location     string          `gorm:"type:varchar(20);not null"`
	LastUpdated  time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductInventoryModel) TableName() string {
	return "product_inventories"
}

// ToDomain converts the persistence model to a domain ProductInventory.
func (m *ProductInventoryModel) ToDomain() *inventory.ProductInventory {
	return &inventory.ProductInventory{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		ProductID:         m.ProductID,
		CurrentStock:      m.CurrentStock,
		SafetyStock:       m.SafetyStock,
		Location:          inventory.StorageLocation(m.Location),
		LastUpdated:       m.LastUpdated,
	}
}

// FromDomain populates the persistence model from a domain ProductInventory.
func (m *ProductInventoryModel) FromDomain(p *inventory.ProductInventory) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.ProductID = p.ProductID
	m.CurrentStock = p.CurrentStock
	m.SafetyStock = p.SafetyStock
	m.Location = string(p.Location)
	m.LastUpdated = p.LastUpdated
}

// ProductInventoryModelFromDomain creates a new persistence model from a domain ProductInventory.
func ProductInventoryModelFromDomain(p *inventory.ProductInventory) *ProductInventoryModel {
	m := &ProductInventoryModel{}
	m.FromDomain(p)
	return m
}
