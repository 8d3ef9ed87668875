package inventory

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// LotTake is the planned deduction from a single lot
type LotTake struct {
	LotID              uuid.UUID
	LotNumber          string
	Sequence           int64
	Amount             decimal.Decimal
	RemainingInLot     decimal.Decimal
	FullyConsumed      bool
	ExpiryDate         time.Time
	TraceabilityNumber string
}

// AllocationPlan is the outcome of walking active lots oldest first
type AllocationPlan struct {
	Takes     []LotTake
	Allocated decimal.Decimal
	Shortage  decimal.Decimal
}

// FullyCovered returns true if the active lots covered the whole request
func (p *AllocationPlan) FullyCovered() bool {
	return p.Shortage.IsZero()
}

// PlanFIFO computes how much to take from each active lot, oldest receipt first.
// Lots that are not active or hold no quantity are skipped. Whatever the lots
// cannot cover is reported as Shortage; the walk itself never fails for it.
func PlanFIFO(requested decimal.Decimal, lots []StockLot) (*AllocationPlan, error) {
	if !requested.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Requested quantity must be positive")
	}

	ordered := SortLotsFIFO(filterAllocatable(lots))

	plan := &AllocationPlan{
		Takes:     make([]LotTake, 0, len(ordered)),
		Allocated: decimal.Zero,
	}
	remaining := requested
	for _, lot := range ordered {
		if remaining.IsZero() {
			break
		}
		take := decimal.Min(remaining, lot.RemainingQuantity)
		left := lot.RemainingQuantity.Sub(take)
		plan.Takes = append(plan.Takes, LotTake{
			LotID:              lot.ID,
			LotNumber:          lot.LotNumber,
			Sequence:           lot.Sequence,
			Amount:             take,
			RemainingInLot:     left,
			FullyConsumed:      left.IsZero(),
			ExpiryDate:         lot.ExpiryDate,
			TraceabilityNumber: lot.TraceabilityNumber,
		})
		plan.Allocated = plan.Allocated.Add(take)
		remaining = remaining.Sub(take)
	}
	plan.Shortage = remaining
	return plan, nil
}

// SortLotsFIFO orders lots by receipt sequence, falling back to receipt time
func SortLotsFIFO(lots []StockLot) []StockLot {
	sorted := make([]StockLot, len(lots))
	copy(sorted, lots)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Sequence != sorted[j].Sequence {
			return sorted[i].Sequence < sorted[j].Sequence
		}
		return sorted[i].ReceivedAt.Before(sorted[j].ReceivedAt)
	})
	return sorted
}

func filterAllocatable(lots []StockLot) []StockLot {
	available := make([]StockLot, 0, len(lots))
	for _, lot := range lots {
		if lot.IsActive() && lot.HasStock() {
			available = append(available, lot)
		}
	}
	return available
}
