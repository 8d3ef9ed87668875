package inventory

import (
	"context"
	"fmt"

	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"go.uber.org/zap"
)

// Alert types raised for operators
const (
	AlertTypeLowStock   = "low_stock"
	AlertTypeCritical   = "critical_stock"
	AlertTypeOutOfStock = "out_of_stock"
	AlertTypeShortage   = "lot_shortage"
	AlertTypeLotExpired = "lot_expired"
)

// StockAlertHandler turns ledger events into operator alerts: safety-stock
// deterioration, outbound shortages and expired lots
type StockAlertHandler struct {
	logger   *zap.Logger
	notifier StockAlertNotifier
}

// StockAlertNotifier is the interface for sending stock alerts
type StockAlertNotifier interface {
	// SendAlert sends a stock alert notification
	SendAlert(ctx context.Context, alert StockAlert) error
}

// StockAlert represents an operator-facing stock warning
type StockAlert struct {
	AlertType    string `json:"alert_type"`
	ProductID    string `json:"product_id"`
	LotNumber    string `json:"lot_number,omitempty"`
	CurrentStock string `json:"current_stock,omitempty"`
	SafetyStock  string `json:"safety_stock,omitempty"`
	Quantity     string `json:"quantity,omitempty"`
	Reference    string `json:"reference,omitempty"`
	Message      string `json:"message"`
}

// NewStockAlertHandler creates a new handler for ledger alert events
func NewStockAlertHandler(logger *zap.Logger) *StockAlertHandler {
	return &StockAlertHandler{
		logger: logger,
	}
}

// WithNotifier sets the notifier for sending alerts
func (h *StockAlertHandler) WithNotifier(notifier StockAlertNotifier) *StockAlertHandler {
	h.notifier = notifier
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *StockAlertHandler) EventTypes() []string {
	return []string{
		inventory.EventTypeStockStatusChanged,
		inventory.EventTypeStockShortageDetected,
		inventory.EventTypeLotExpired,
	}
}

// Handle processes an alert-worthy domain event
func (h *StockAlertHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var alert *StockAlert

	switch e := event.(type) {
	case *inventory.StockStatusChangedEvent:
		// Recoveries are not alerts
		if !e.IsDeterioration() {
			return nil
		}
		alert = &StockAlert{
			AlertType:    alertTypeForStatus(e.Status),
			ProductID:    e.ProductID,
			CurrentStock: e.CurrentStock.String(),
			SafetyStock:  e.SafetyStock.String(),
			Message:      fmt.Sprintf("Stock status changed from %s to %s", e.PreviousStatus, e.Status),
		}
	case *inventory.StockShortageDetectedEvent:
		alert = &StockAlert{
			AlertType: AlertTypeShortage,
			ProductID: e.ProductID,
			Quantity:  e.Shortage.String(),
			Reference: joinReference(e.ReferenceType, e.ReferenceID),
			Message:   fmt.Sprintf("Outbound of %s exceeded lot stock by %s; recorded without a lot", e.Requested, e.Shortage),
		}
	case *inventory.LotExpiredEvent:
		alert = &StockAlert{
			AlertType: AlertTypeLotExpired,
			ProductID: e.ProductID,
			LotNumber: e.LotNumber,
			Quantity:  e.RemainingQuantity.String(),
			Message:   fmt.Sprintf("Lot %s expired with %s remaining; discard it manually", e.LotNumber, e.RemainingQuantity),
		}
	default:
		h.logger.Error("unexpected event type",
			zap.Strings("expected", h.EventTypes()),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}

	h.logger.Warn("stock alert raised",
		zap.String("alert_type", alert.AlertType),
		zap.String("product_id", alert.ProductID),
		zap.String("lot_number", alert.LotNumber),
	)

	if h.notifier != nil {
		if err := h.notifier.SendAlert(ctx, *alert); err != nil {
			h.logger.Error("failed to send stock alert notification",
				zap.String("product_id", alert.ProductID),
				zap.Error(err),
			)
			// Don't return error - notification failure shouldn't fail the event handling
		}
	}
	return nil
}

func alertTypeForStatus(status inventory.StockStatus) string {
	switch status {
	case inventory.StockStatusOut:
		return AlertTypeOutOfStock
	case inventory.StockStatusCritical:
		return AlertTypeCritical
	default:
		return AlertTypeLowStock
	}
}

func joinReference(refType, refID string) string {
	if refType == "" && refID == "" {
		return ""
	}
	return refType + ":" + refID
}

// Ensure StockAlertHandler implements shared.EventHandler
var _ shared.EventHandler = (*StockAlertHandler)(nil)

// LoggingStockAlertNotifier is a simple notifier that logs alerts
type LoggingStockAlertNotifier struct {
	logger *zap.Logger
}

// NewLoggingStockAlertNotifier creates a new logging notifier
func NewLoggingStockAlertNotifier(logger *zap.Logger) *LoggingStockAlertNotifier {
	return &LoggingStockAlertNotifier{
		logger: logger,
	}
}

// SendAlert logs the stock alert
func (n *LoggingStockAlertNotifier) SendAlert(_ context.Context, alert StockAlert) error {
	n.logger.Warn("STOCK ALERT",
		zap.String("type", alert.AlertType),
		zap.String("product_id", alert.ProductID),
		zap.String("lot_number", alert.LotNumber),
		zap.String("current_stock", alert.CurrentStock),
		zap.String("safety_stock", alert.SafetyStock),
		zap.String("quantity", alert.Quantity),
		zap.String("message", alert.Message),
	)
	return nil
}
