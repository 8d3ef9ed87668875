package persistence

import (
	"context"
	"slices"

	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormStockMovementRepository implements the append-only ledger using GORM.
// It exposes no update or delete.
type GormStockMovementRepository struct {
	db *gorm.DB
}

// NewGormStockMovementRepository creates a new GormStockMovementRepository
func NewGormStockMovementRepository(db *gorm.DB) *GormStockMovementRepository {
	return &GormStockMovementRepository{db: db}
}

// Append inserts a movement
func (r *GormStockMovementRepository) Append(ctx context.Context, movement *inventory.StockMovement) error {
	return mapError("movement.append", r.db.WithContext(ctx).Create(models.StockMovementModelFromDomain(movement)).Error)
}

// FindByProduct returns movements oldest first. With a limit, only the most
// recent entries are kept.
func (r *GormStockMovementRepository) FindByProduct(ctx context.Context, productID string, query inventory.MovementQuery) ([]inventory.StockMovement, error) {
	q := r.db.WithContext(ctx).Where("product_id = ?", productID)
	if query.Since != nil {
		q = q.Where("created_at >= ?", *query.Since)
	}
	if query.Limit > 0 {
		q = q.Order("seq DESC").Limit(query.Limit)
	} else {
		q = q.Order("seq ASC")
	}

	var rows []models.StockMovementModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, mapError("movement.find_by_product", err)
	}
	if query.Limit > 0 {
		slices.Reverse(rows)
	}
	return toMovements(rows), nil
}

// FindByReference returns a product's movements recorded for ref
func (r *GormStockMovementRepository) FindByReference(ctx context.Context, productID string, ref inventory.Reference) ([]inventory.StockMovement, error) {
	if ref.Key() == "" {
		return []inventory.StockMovement{}, nil
	}
	var rows []models.StockMovementModel
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND reference_type = ? AND reference_id = ?", productID, string(ref.Type), ref.ID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, mapError("movement.find_by_reference", err)
	}
	return toMovements(rows), nil
}

// NextSequence returns max(seq)+1 for the product
func (r *GormStockMovementRepository) NextSequence(ctx context.Context, productID string) (int64, error) {
	return nextSequence(ctx, r.db, &models.StockMovementModel{}, productID, "movement.next_sequence")
}

// SumDeltas returns the signed sum of a product's deltas and the movement count
func (r *GormStockMovementRepository) SumDeltas(ctx context.Context, productID string) (decimal.Decimal, int64, error) {
	var row struct {
		Total decimal.Decimal
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.StockMovementModel{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(delta), 0) AS total, COUNT(*) AS count").
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, 0, mapError("movement.sum_deltas", err)
	}
	return row.Total, row.Count, nil
}

func toMovements(rows []models.StockMovementModel) []inventory.StockMovement {
	out := make([]inventory.StockMovement, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

var _ inventory.StockMovementRepository = (*GormStockMovementRepository)(nil)
