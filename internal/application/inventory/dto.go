package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

// OpenLotCommand opens a lot. LotNumber is generated when empty.
type OpenLotCommand struct {
	ProductID          string
	Quantity           decimal.Decimal
	ExpiryDate         time.Time
	TraceabilityNumber string
	LotNumber          string
	SupplierID         *string
	SupplierName       string
	ReceivedAt         time.Time
}

// AppendMovementCommand records one ledger entry.
// For adjust movements Quantity is the absolute target stock level.
type AppendMovementCommand struct {
	ProductID          string
	ProductName        string
	Unit               string
	MovementType       inventory.MovementType
	Quantity           decimal.Decimal
	UnitPrice          *decimal.Decimal
	LotNumber          *string
	ExpiryDate         *time.Time
	TraceabilityNumber string
	Reference          inventory.Reference
	Notes              string
}

// AllocateCommand requests an outbound FIFO allocation
type AllocateCommand struct {
	ProductID          string
	ProductName        string
	Unit               string
	Quantity           decimal.Decimal
	UnitPrice          *decimal.Decimal
	TraceabilityNumber string
	Reference          inventory.Reference
	Notes              string
}

// AllocationResult is the outcome of AllocateOutbound.
// Shortage is a value, not an error.
type AllocationResult struct {
	Movements []inventory.StockMovement
	Allocated decimal.Decimal
	Shortage  decimal.Decimal
	Replayed  bool

	// Resumed is set when an earlier attempt for the same reference stopped
	// part way and this call allocated the rest
	Resumed bool
}

// HasShortage returns true if part of the request was not covered by lots
func (r *AllocationResult) HasShortage() bool {
	return r.Shortage.IsPositive()
}

// Accounted returns the quantity recorded so far, from lots or as shortage
func (r *AllocationResult) Accounted() decimal.Decimal {
	return r.Allocated.Add(r.Shortage)
}

// ReceiveCommand records an inbound quantity against the projection.
// SafetyStock and Location only apply when the projection row is created.
type ReceiveCommand struct {
	ProductID          string
	ProductName        string
	Unit               string
	Quantity           decimal.Decimal
	UnitPrice          *decimal.Decimal
	SafetyStock        *decimal.Decimal
	Location           *inventory.StorageLocation
	LotNumber          *string
	ExpiryDate         *time.Time
	TraceabilityNumber string
	Reference          inventory.Reference
	Notes              string
}

// ReceivePurchaseCommand is issued by the purchase commit path
type ReceivePurchaseCommand struct {
	ProductID          string
	ProductName        string
	Unit               string
	Category           string
	Quantity           decimal.Decimal
	UnitPrice          *decimal.Decimal
	ReceiptDate        time.Time
	ExpiryDate         *time.Time
	TraceabilityNumber string
	SupplierID         *string
	SupplierName       string
	Reference          inventory.Reference
	SafetyStock        *decimal.Decimal
	Location           *inventory.StorageLocation
}

// ReceiptResult is the lot and the inbound movement created by a purchase receipt
type ReceiptResult struct {
	Lot      *inventory.StockLot
	Movement *inventory.StockMovement
}

// SettingsCommand enables or changes inventory tracking for a product
type SettingsCommand struct {
	SafetyStock *decimal.Decimal
	Location    *inventory.StorageLocation
}

// SweepResult contains statistics about an expiry sweep
type SweepResult struct {
	Candidates  int       `json:"candidates"`
	Expired     int       `json:"expired"`
	Failed      int       `json:"failed"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ExpiringLot is an active lot close to its expiry date
type ExpiringLot struct {
	Lot           inventory.StockLot
	DaysRemaining int
}

// StockStatusView is the safety-stock view of one product
type StockStatusView struct {
	ProductID    string
	CurrentStock decimal.Decimal
	SafetyStock  decimal.Decimal
	Location     inventory.StorageLocation
	Status       inventory.StockStatus
	LastUpdated  time.Time
}

// ReconcileReport compares the projection with the ledger
type ReconcileReport struct {
	ProductID      string
	ProjectedStock decimal.Decimal
	LedgerStock    decimal.Decimal
	Drift          decimal.Decimal
	MovementCount  int64
}

// Consistent returns true if the projection matches the ledger
func (r *ReconcileReport) Consistent() bool {
	return r.Drift.IsZero()
}

// LotResponse represents a stock lot in API responses
type LotResponse struct {
	ID                 uuid.UUID       `json:"id"`
	ProductID          string          `json:"product_id"`
	LotNumber          string          `json:"lot_number"`
	Sequence           int64           `json:"sequence"`
	InitialQuantity    decimal.Decimal `json:"initial_quantity"`
	RemainingQuantity  decimal.Decimal `json:"remaining_quantity"`
	ExpiryDate         string          `json:"expiry_date"`
	TraceabilityNumber string          `json:"traceability_number"`
	SupplierID         *string         `json:"supplier_id,omitempty"`
	SupplierName       string          `json:"supplier_name,omitempty"`
	Status             string          `json:"status"`
	ReceivedAt         time.Time       `json:"received_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ExpiringLotResponse represents a lot close to expiry
type ExpiringLotResponse struct {
	LotResponse
	DaysRemaining int `json:"days_remaining"`
}

// MovementResponse represents a ledger entry in API responses
type MovementResponse struct {
	ID                 uuid.UUID        `json:"id"`
	ProductID          string           `json:"product_id"`
	ProductName        string           `json:"product_name,omitempty"`
	Unit               string           `json:"unit,omitempty"`
	MovementType       string           `json:"movement_type"`
	Quantity           decimal.Decimal  `json:"quantity"`
	Delta              decimal.Decimal  `json:"delta"`
	BalanceAfter       decimal.Decimal  `json:"balance_after"`
	UnitPrice          *decimal.Decimal `json:"unit_price,omitempty"`
	LotNumber          *string          `json:"lot_number"`
	ExpiryDate         *string          `json:"expiry_date,omitempty"`
	TraceabilityNumber string           `json:"traceability_number,omitempty"`
	TransactionID      string           `json:"transaction_id,omitempty"`
	ReferenceType      string           `json:"reference_type,omitempty"`
	ReferenceID        string           `json:"reference_id,omitempty"`
	Notes              string           `json:"notes,omitempty"`
	Origin             string           `json:"origin"`
	Sequence           int64            `json:"sequence"`
	CreatedAt          time.Time        `json:"created_at"`
}

// AllocationResponse represents the outcome of an outbound allocation
type AllocationResponse struct {
	ProductID string             `json:"product_id"`
	Requested decimal.Decimal    `json:"requested"`
	Allocated decimal.Decimal    `json:"allocated"`
	Shortage  decimal.Decimal    `json:"shortage"`
	Replayed  bool               `json:"replayed"`
	Resumed   bool               `json:"resumed,omitempty"`
	Warning   string             `json:"warning,omitempty"`
	Movements []MovementResponse `json:"movements"`
}

// ReceiptResponse represents a purchase receipt
type ReceiptResponse struct {
	Lot      LotResponse      `json:"lot"`
	Movement MovementResponse `json:"movement"`
}

// InventoryResponse represents the projection of one product
type InventoryResponse struct {
	ProductID    string          `json:"product_id"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	SafetyStock  decimal.Decimal `json:"safety_stock"`
	Location     string          `json:"location"`
	Status       string          `json:"status"`
	LastUpdated  time.Time       `json:"last_updated"`
	Version      int             `json:"version,omitempty"`
}

// ReconcileResponse represents a projection/ledger comparison
type ReconcileResponse struct {
	ProductID      string          `json:"product_id"`
	ProjectedStock decimal.Decimal `json:"projected_stock"`
	LedgerStock    decimal.Decimal `json:"ledger_stock"`
	Drift          decimal.Decimal `json:"drift"`
	MovementCount  int64           `json:"movement_count"`
	Consistent     bool            `json:"consistent"`
}

const dateLayout = "2006-01-02"

// ToLotResponse converts a domain lot to a response
func ToLotResponse(lot *inventory.StockLot) LotResponse {
	return LotResponse{
		ID:                 lot.ID,
		ProductID:          lot.ProductID,
		LotNumber:          lot.LotNumber,
		Sequence:           lot.Sequence,
		InitialQuantity:    lot.InitialQuantity,
		RemainingQuantity:  lot.RemainingQuantity,
		ExpiryDate:         lot.ExpiryDate.Format(dateLayout),
		TraceabilityNumber: lot.TraceabilityNumber,
		SupplierID:         lot.SupplierID,
		SupplierName:       lot.SupplierName,
		Status:             lot.Status.String(),
		ReceivedAt:         lot.ReceivedAt,
		UpdatedAt:          lot.UpdatedAt,
	}
}

// ToLotResponses converts a slice of lots
func ToLotResponses(lots []inventory.StockLot) []LotResponse {
	responses := make([]LotResponse, len(lots))
	for i := range lots {
		responses[i] = ToLotResponse(&lots[i])
	}
	return responses
}

// ToExpiringLotResponses converts expiring lots
func ToExpiringLotResponses(lots []ExpiringLot) []ExpiringLotResponse {
	responses := make([]ExpiringLotResponse, len(lots))
	for i := range lots {
		responses[i] = ExpiringLotResponse{
			LotResponse:   ToLotResponse(&lots[i].Lot),
			DaysRemaining: lots[i].DaysRemaining,
		}
	}
	return responses
}

// ToMovementResponse converts a ledger entry to a response
func ToMovementResponse(m *inventory.StockMovement) MovementResponse {
	resp := MovementResponse{
		ID:                 m.ID,
		ProductID:          m.ProductID,
		ProductName:        m.ProductName,
		Unit:               m.Unit,
		MovementType:       m.MovementType.String(),
		Quantity:           m.Quantity,
		Delta:              m.Delta,
		BalanceAfter:       m.BalanceAfter,
		UnitPrice:          m.UnitPrice,
		LotNumber:          m.LotNumber,
		TraceabilityNumber: m.TraceabilityNumber,
		TransactionID:      m.Reference.TransactionID,
		ReferenceType:      string(m.Reference.Type),
		ReferenceID:        m.Reference.ID,
		Notes:              m.Notes,
		Origin:             string(m.Origin),
		Sequence:           m.Sequence,
		CreatedAt:          m.CreatedAt,
	}
	if m.ExpiryDate != nil {
		d := m.ExpiryDate.Format(dateLayout)
		resp.ExpiryDate = &d
	}
	return resp
}

// ToMovementResponses converts a slice of ledger entries
func ToMovementResponses(movements []inventory.StockMovement) []MovementResponse {
	responses := make([]MovementResponse, len(movements))
	for i := range movements {
		responses[i] = ToMovementResponse(&movements[i])
	}
	return responses
}

// ToAllocationResponse converts an allocation result
func ToAllocationResponse(cmd AllocateCommand, result *AllocationResult) AllocationResponse {
	resp := AllocationResponse{
		ProductID: cmd.ProductID,
		Requested: cmd.Quantity,
		Allocated: result.Allocated,
		Shortage:  result.Shortage,
		Replayed:  result.Replayed,
		Resumed:   result.Resumed,
		Movements: ToMovementResponses(result.Movements),
	}
	if result.HasShortage() {
		resp.Warning = "Insufficient lot stock: " + result.Shortage.String() + " recorded without a lot"
	}
	return resp
}

// ToInventoryResponse converts a projection row
func ToInventoryResponse(p *inventory.ProductInventory) InventoryResponse {
	return InventoryResponse{
		ProductID:    p.ProductID,
		CurrentStock: p.CurrentStock,
		SafetyStock:  p.SafetyStock,
		Location:     p.Location.String(),
		Status:       p.Status().String(),
		LastUpdated:  p.LastUpdated,
		Version:      p.Version,
	}
}

// ToStatusResponse converts a status view
func ToStatusResponse(v *StockStatusView) InventoryResponse {
	return InventoryResponse{
		ProductID:    v.ProductID,
		CurrentStock: v.CurrentStock,
		SafetyStock:  v.SafetyStock,
		Location:     v.Location.String(),
		Status:       v.Status.String(),
		LastUpdated:  v.LastUpdated,
	}
}

// ToStatusResponses converts a slice of status views
func ToStatusResponses(views []StockStatusView) []InventoryResponse {
	responses := make([]InventoryResponse, len(views))
	for i := range views {
		responses[i] = ToStatusResponse(&views[i])
	}
	return responses
}

// ToReconcileResponse converts a reconciliation report
func ToReconcileResponse(r *ReconcileReport) ReconcileResponse {
	return ReconcileResponse{
		ProductID:      r.ProductID,
		ProjectedStock: r.ProjectedStock,
		LedgerStock:    r.LedgerStock,
		Drift:          r.Drift,
		MovementCount:  r.MovementCount,
		Consistent:     r.Consistent(),
	}
}
