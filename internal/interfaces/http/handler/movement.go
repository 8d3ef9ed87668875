package handler

import (
	"github.com/gin-gonic/gin"
	inventoryapp "github.com/meatco/stockledger/internal/application/inventory"
	"github.com/meatco/stockledger/internal/domain/inventory"
	"go.uber.org/zap"
)

// MovementHandler serves the append-only movement ledger
type MovementHandler struct {
	BaseHandler
	ledger *inventoryapp.LedgerService
}

// NewMovementHandler creates a new MovementHandler
func NewMovementHandler(ledger *inventoryapp.LedgerService, logger *zap.Logger) *MovementHandler {
	return &MovementHandler{
		BaseHandler: newBaseHandler(logger),
		ledger:      ledger,
	}
}

// Append handles POST /movements
func (h *MovementHandler) Append(c *gin.Context) {
	var req AppendMovementRequest
	if !h.bindJSON(c, &req) {
		return
	}

	expiry, err := parseOptionalDate("expiry_date", req.ExpiryDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	movement, err := h.ledger.Append(c.Request.Context(), inventoryapp.AppendMovementCommand{
		ProductID:          req.ProductID,
		ProductName:        req.ProductName,
		Unit:               req.Unit,
		MovementType:       inventory.MovementType(req.MovementType),
		Quantity:           req.Quantity,
		UnitPrice:          req.UnitPrice,
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

// ListByProduct handles GET /products/:product_id/movements?since=&limit=.
// Movements come back in ledger order; limit keeps the most recent ones.
func (h *MovementHandler) ListByProduct(c *gin.Context) {
	var query inventory.MovementQuery
	if raw := c.Query("since"); raw != "" {
		since, err := parseInstant("since", raw)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		query.Since = &since
	}
	limit, err := parseNonNegativeInt("limit", c.Query("limit"), 0)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	query.Limit = limit

	movements, err := h.ledger.QueryByProduct(c.Request.Context(), c.Param("product_id"), query)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.List(c, inventoryapp.ToMovementResponses(movements), len(movements), limit)
}
