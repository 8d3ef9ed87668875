package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	inventoryapp "github.com/meatco/stockledger/internal/application/inventory"
	"go.uber.org/zap"
)

// ExpirySweeper is the part of the expiry sweeper the lot endpoints need
type ExpirySweeper interface {
	Sweep(ctx context.Context, today time.Time) (*inventoryapp.SweepResult, error)
	ListExpiringWithin(ctx context.Context, days int) ([]inventoryapp.ExpiringLot, error)
}

// LotHandler serves the lot store: receipts, lookups, consumption and expiry
type LotHandler struct {
	BaseHandler
	lots         *inventoryapp.LotService
	receipts     *inventoryapp.ReceiptService
	sweeper      ExpirySweeper
	expiringDays int
}

// NewLotHandler creates a new LotHandler. expiringDays is the window used by
// GET /lots/expiring when the request does not name one.
func NewLotHandler(lots *inventoryapp.LotService, receipts *inventoryapp.ReceiptService, sweeper ExpirySweeper, expiringDays int, logger *zap.Logger) *LotHandler {
	return &LotHandler{
		BaseHandler:  newBaseHandler(logger),
		lots:         lots,
		receipts:     receipts,
		sweeper:      sweeper,
		expiringDays: expiringDays,
	}
}

// ReceivePurchase handles POST /lots/receipts
func (h *LotHandler) ReceivePurchase(c *gin.Context) {
	var req PurchaseReceiptRequest
	if !h.bindJSON(c, &req) {
		return
	}

	cmd := inventoryapp.ReceivePurchaseCommand{
		ProductID:          req.ProductID,
		ProductName:        req.ProductName,
		Unit:               req.Unit,
		Category:           req.Category,
		Quantity:           req.Quantity,
		UnitPrice:          req.UnitPrice,
		TraceabilityNumber: req.TraceabilityNumber,
		SupplierID:         req.SupplierID,
		SupplierName:       req.SupplierName,
		Reference:          req.Reference.toDomain(),
		SafetyStock:        req.SafetyStock,
	}
	if req.ReceiptDate != "" {
		d, err := parseDate("receipt_date", req.ReceiptDate)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		cmd.ReceiptDate = d
	}
	expiry, err := parseOptionalDate("expiry_date", req.ExpiryDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	cmd.ExpiryDate = expiry
	if cmd.Location, err = parseLocation(req.Location); err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.receipts.ReceivePurchase(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, inventoryapp.ReceiptResponse{
		Lot:      inventoryapp.ToLotResponse(result.Lot),
		Movement: inventoryapp.ToMovementResponse(result.Movement),
	})
}

// OpenLot handles POST /lots. The lot is recorded without a ledger movement;
// manual stock-in pairs it with POST /movements.
func (h *LotHandler) OpenLot(c *gin.Context) {
	var req OpenLotRequest
	if !h.bindJSON(c, &req) {
		return
	}

	expiry, err := parseDate("expiry_date", req.ExpiryDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	cmd := inventoryapp.OpenLotCommand{
		ProductID:          req.ProductID,
		Quantity:           req.Quantity,
		ExpiryDate:         expiry,
		TraceabilityNumber: req.TraceabilityNumber,
		LotNumber:          req.LotNumber,
		SupplierID:         req.SupplierID,
		SupplierName:       req.SupplierName,
	}
	if req.ReceivedAt != nil {
		cmd.ReceivedAt = req.ReceivedAt.UTC()
	}

	lot, err := h.lots.OpenLot(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, inventoryapp.ToLotResponse(lot))
}

// GetByID handles GET /lots/:id
func (h *LotHandler) GetByID(c *gin.Context) {
	id, err := parseLotID(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	lot, err := h.lots.GetLot(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inventoryapp.ToLotResponse(lot))
}

// GetByNumber handles GET /lots/by-number/:lot_number
func (h *LotHandler) GetByNumber(c *gin.Context) {
	lot, err := h.lots.GetLotByNumber(c.Request.Context(), c.Param("lot_number"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inventoryapp.ToLotResponse(lot))
}

// Consume handles POST /lots/:id/consume
func (h *LotHandler) Consume(c *gin.Context) {
	id, err := parseLotID(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var req ConsumeLotRequest
	if !h.bindJSON(c, &req) {
		return
	}
	lot, err := h.lots.Consume(c.Request.Context(), id, req.Quantity)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inventoryapp.ToLotResponse(lot))
}

// Expire handles POST /lots/:id/expire
func (h *LotHandler) Expire(c *gin.Context) {
	id, err := parseLotID(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	lot, err := h.lots.MarkExpired(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inventoryapp.ToLotResponse(lot))
}

// ListActiveByProduct handles GET /products/:product_id/lots in FIFO order
func (h *LotHandler) ListActiveByProduct(c *gin.Context) {
	lots, err := h.lots.ListActive(c.Request.Context(), c.Param("product_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.List(c, inventoryapp.ToLotResponses(lots), len(lots), 0)
}

// ListExpiring handles GET /lots/expiring?days=N
func (h *LotHandler) ListExpiring(c *gin.Context) {
	days, err := parseNonNegativeInt("days", c.Query("days"), h.expiringDays)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	lots, err := h.sweeper.ListExpiringWithin(c.Request.Context(), days)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.List(c, inventoryapp.ToExpiringLotResponses(lots), len(lots), 0)
}

// Sweep handles POST /lots/sweep. The optional today query parameter
// (YYYY-MM-DD) replaces the current date.
func (h *LotHandler) Sweep(c *gin.Context) {
	var today time.Time
	if raw := c.Query("today"); raw != "" {
		d, err := parseDate("today", raw)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		today = d
	}

	result, err := h.sweeper.Sweep(c.Request.Context(), today)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

var _ ExpirySweeper = (*inventoryapp.ExpirySweeper)(nil)
