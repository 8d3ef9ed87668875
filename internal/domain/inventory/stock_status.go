package inventory

import "github.com/shopspring/decimal"

// StockStatus classifies current stock against the safety-stock threshold
type StockStatus string

const (
	StockStatusOK       StockStatus = "ok"
	StockStatusLow      StockStatus = "low"
	StockStatusCritical StockStatus = "critical"
	StockStatusOut      StockStatus = "out"
)

var (
	criticalRatio = decimal.NewFromFloat(0.5)
	lowRatio      = decimal.NewFromInt(1)
)

// String returns the string representation of StockStatus
func (s StockStatus) String() string {
	return string(s)
}

// Severity orders statuses from ok (0) to out (3)
func (s StockStatus) Severity() int {
	switch s {
	case StockStatusLow:
		return 1
	case StockStatusCritical:
		return 2
	case StockStatusOut:
		return 3
	default:
		return 0
	}
}

// NeedsAttention returns true for any status other than ok
func (s StockStatus) NeedsAttention() bool {
	return s != StockStatusOK
}

// EvaluateStockStatus is the safety-stock monitor.
// A non-positive current stock is out; a zero safety stock is ok otherwise.
func EvaluateStockStatus(current, safety decimal.Decimal) StockStatus {
	if !current.IsPositive() {
		return StockStatusOut
	}
	if !safety.IsPositive() {
		return StockStatusOK
	}
	ratio := current.Div(safety)
	switch {
	case ratio.LessThan(criticalRatio):
		return StockStatusCritical
	case ratio.LessThan(lowRatio):
		return StockStatusLow
	default:
		return StockStatusOK
	}
}
