package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meatco/stockledger/internal/interfaces/http/dto"
	"github.com/meatco/stockledger/internal/interfaces/http/handler"
)

// Handlers bundles the HTTP handlers of the ledger API
type Handlers struct {
	Lots        *handler.LotHandler
	Movements   *handler.MovementHandler
	Allocations *handler.AllocationHandler
	Inventory   *handler.InventoryHandler
	System      *handler.SystemHandler
}

// LedgerGroups builds the route groups of the ledger API
func LedgerGroups(h Handlers) []*DomainGroup {
	lots := NewDomainGroup("lots", "/lots").
		POST("/receipts", h.Lots.ReceivePurchase).Describe("receive a purchase into a new lot").
		POST("", h.Lots.OpenLot).Describe("open a lot with an explicit lot number").
		GET("/expiring", h.Lots.ListExpiring).Describe("active lots expiring within ?days").
		POST("/sweep", h.Lots.Sweep).Describe("expire every lot past its expiry date").
		GET("/by-number/:lot_number", h.Lots.GetByNumber).
		GET("/:id", h.Lots.GetByID).
		POST("/:id/expire", h.Lots.Expire).
		POST("/:id/consume", h.Lots.Consume).Describe("draw quantity directly from one lot")

	products := NewDomainGroup("products", "/products/:product_id").
		GET("/lots", h.Lots.ListActiveByProduct).Describe("active lots in FIFO order").
		GET("/movements", h.Movements.ListByProduct).Describe("movement history, newest first").
		GET("/inventory", h.Inventory.Get).
		POST("/inventory/receive", h.Inventory.Receive).
		PUT("/inventory/adjust", h.Inventory.Adjust).Describe("adjust current stock to a counted quantity").
		PUT("/inventory/settings", h.Inventory.UpdateSettings).
		GET("/inventory/reconcile", h.Inventory.Reconcile).Describe("compare the projection with the ledger")

	movements := NewDomainGroup("movements", "/movements").
		POST("", h.Movements.Append)

	allocations := NewDomainGroup("allocations", "/allocations").
		POST("", h.Allocations.Allocate).Describe("FIFO allocation across active lots")

	inventory := NewDomainGroup("inventory", "/inventory").
		GET("/alerts", h.Inventory.ListAlerts).Describe("tracked products below safety stock")

	system := NewDomainGroup("system", "").
		GET("/health", h.System.Health).
		GET("/system/info", h.System.GetSystemInfo)

	return []*DomainGroup{lots, products, movements, allocations, inventory, system}
}

// Mount registers the ledger API on engine and returns the router. A root
// /health is added for load balancer probes.
func Mount(engine *gin.Engine, h Handlers, opts ...RouterOption) *Router {
	r := NewRouter(engine, opts...)
	for _, g := range LedgerGroups(h) {
		r.Register(g)
	}
	r.Register(NewDomainGroup("routes", "/system").
		GET("/routes", routeTable(r)).Describe("list the mounted routes"))
	r.Setup()

	engine.GET("/health", h.System.Health)
	return r
}

func routeTable(r *Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		routes := r.Routes()
		c.JSON(http.StatusOK, dto.NewListResponse(routes, len(routes), 0))
	}
}
