package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	inventoryapp "github.com/meatco/stockledger/internal/application/inventory"
	"go.uber.org/zap"
)

// StockMonitor is the read side of the safety-stock monitor
type StockMonitor interface {
	ListAlerts(ctx context.Context) ([]inventoryapp.StockStatusView, error)
}

// InventoryHandler serves the per-product aggregate projection
type InventoryHandler struct {
	BaseHandler
	projection *inventoryapp.ProjectionService
	monitor    StockMonitor
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(projection *inventoryapp.ProjectionService, monitor StockMonitor, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		BaseHandler: newBaseHandler(logger),
		projection:  projection,
		monitor:     monitor,
	}
}

// Get handles GET /products/:product_id/inventory
func (h *InventoryHandler) Get(c *gin.Context) {
	inv, err := h.projection.GetInventory(c.Request.Context(), c.Param("product_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inventoryapp.ToInventoryResponse(inv))
}

// Receive handles POST /products/:product_id/inventory/receive
func (h *InventoryHandler) Receive(c *gin.Context) {
	var req InventoryReceiveRequest
	if !h.bindJSON(c, &req) {
		return
	}
	expiry, err := parseOptionalDate("expiry_date", req.ExpiryDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	location, err := parseLocation(req.Location)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	movement, err := h.projection.Receive(c.Request.Context(), inventoryapp.ReceiveCommand{
		ProductID:          c.Param("product_id"),
		ProductName:        req.ProductName,
		Unit:               req.Unit,
		Quantity:           req.Quantity,
		UnitPrice:          req.UnitPrice,
		SafetyStock:        req.SafetyStock,
		Location:           location,
		LotNumber:          req.LotNumber,
		ExpiryDate:         expiry,
		TraceabilityNumber: req.TraceabilityNumber,
		Reference:          req.Reference.toDomain(),
		Notes:              req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, inventoryapp.ToMovementResponse(movement))
}

// Adjust handles PUT /products/:product_id/inventory/adjust.
// The quantity is the counted stock level, not a delta.
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req AdjustInventoryRequest
	if !h.bindJSON(c, &req) {
		return
	}
	movement, err := h.projection.AdjustTo(c.Request.Context(), c.Param("product_id"), req.Quantity, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inventoryapp.ToMovementResponse(movement))
}

// UpdateSettings handles PUT /products/:product_id/inventory/settings and
// enables tracking when the product has no projection yet
func (h *InventoryHandler) UpdateSettings(c *gin.Context) {
	var req InventorySettingsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	location, err := parseLocation(req.Location)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	inv, err := h.projection.EnableTracking(c.Request.Context(), c.Param("product_id"), inventoryapp.SettingsCommand{
		SafetyStock: req.SafetyStock,
		Location:    location,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inventoryapp.ToInventoryResponse(inv))
}

// Reconcile handles GET /products/:product_id/inventory/reconcile
func (h *InventoryHandler) Reconcile(c *gin.Context) {
	report, err := h.projection.Reconcile(c.Request.Context(), c.Param("product_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inventoryapp.ToReconcileResponse(report))
}

// ListAlerts handles GET /inventory/alerts: tracked products below safety
// stock, most severe first
func (h *InventoryHandler) ListAlerts(c *gin.Context) {
	views, err := h.monitor.ListAlerts(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.List(c, inventoryapp.ToStatusResponses(views), len(views), 0)
}
