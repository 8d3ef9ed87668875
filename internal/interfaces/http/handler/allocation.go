package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	inventoryapp "github.com/meatco/stockledger/internal/application/inventory"
	"github.com/meatco/stockledger/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// AllocationHandler serves FIFO outbound allocation
type AllocationHandler struct {
	BaseHandler
	allocations *inventoryapp.AllocationService
}

// NewAllocationHandler creates a new AllocationHandler
func NewAllocationHandler(allocations *inventoryapp.AllocationService, logger *zap.Logger) *AllocationHandler {
	return &AllocationHandler{
		BaseHandler: newBaseHandler(logger),
		allocations: allocations,
	}
}

// Allocate handles POST /allocations.
// A shortage is not an error: the response is 201 with the uncovered quantity
// and a warning. A replayed reference answers 200 with the original movements.
func (h *AllocationHandler) Allocate(c *gin.Context) {
	var req AllocateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	cmd := inventoryapp.AllocateCommand{
		ProductID:          req.ProductID,
		ProductName:        req.ProductName,
		Unit:               req.Unit,
		Quantity:           req.Quantity,
		UnitPrice:          req.UnitPrice,
		TraceabilityNumber: req.TraceabilityNumber,
		Reference:          req.Reference.toDomain(),
		Notes:              req.Notes,
	}
	result, err := h.allocations.AllocateOutbound(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, dto.NewSuccessResponse(inventoryapp.ToAllocationResponse(cmd, result)))
}
