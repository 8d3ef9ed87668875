package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/meatco/stockledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStockLotRepository implements StockLotRepository using GORM
type GormStockLotRepository struct {
	db *gorm.DB
}

// NewGormStockLotRepository creates a new GormStockLotRepository
func NewGormStockLotRepository(db *gorm.DB) *GormStockLotRepository {
	return &GormStockLotRepository{db: db}
}

// Create inserts a new lot
func (r *GormStockLotRepository) Create(ctx context.Context, lot *inventory.StockLot) error {
	err := r.db.WithContext(ctx).Create(models.StockLotModelFromDomain(lot)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.NewDomainError(shared.CodeAlreadyExists, fmt.Sprintf("Lot number %s already exists", lot.LotNumber))
	}
	return mapError("lot.create", err)
}

// Save persists remaining quantity and status of an existing lot
func (r *GormStockLotRepository) Save(ctx context.Context, lot *inventory.StockLot) error {
	result := r.db.WithContext(ctx).
		Model(&models.StockLotModel{}).
		Where("id = ?", lot.ID).
		Updates(map[string]any{
			"remaining_quantity": lot.RemainingQuantity,
			"status":             string(lot.Status),
			"updated_at":         lot.UpdatedAt,
		})
	if result.Error != nil {
		return mapError("lot.save", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a lot by its ID
func (r *GormStockLotRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.StockLot, error) {
	var m models.StockLotModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, mapError("lot.find_by_id", err)
	}
	return m.ToDomain(), nil
}

// FindByIDForUpdate takes SELECT ... FOR UPDATE on the lot row so a second
// writer whose product lease lapsed cannot draw the same stock. sqlite drops
// the locking clause.
func (r *GormStockLotRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*inventory.StockLot, error) {
	var m models.StockLotModel
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, "id = ?", id).Error; err != nil {
		return nil, mapError("lot.find_for_update", err)
	}
	return m.ToDomain(), nil
}

// FindByLotNumber finds a lot by its unique lot number
func (r *GormStockLotRepository) FindByLotNumber(ctx context.Context, lotNumber string) (*inventory.StockLot, error) {
	var m models.StockLotModel
	if err := r.db.WithContext(ctx).First(&m, "lot_number = ?", lotNumber).Error; err != nil {
		return nil, mapError("lot.find_by_number", err)
	}
	return m.ToDomain(), nil
}

// FindActiveByProduct returns active lots of a product in receipt order
func (r *GormStockLotRepository) FindActiveByProduct(ctx context.Context, productID string) ([]inventory.StockLot, error) {
	return r.find(ctx, "lot.find_active",
		r.db.WithContext(ctx).
			Where("product_id = ? AND status = ?", productID, string(inventory.LotStatusActive)).
			Order("seq ASC"))
}

// FindActivePastExpiry returns active lots whose expiry date is before today
func (r *GormStockLotRepository) FindActivePastExpiry(ctx context.Context, today time.Time) ([]inventory.StockLot, error) {
	return r.find(ctx, "lot.find_past_expiry",
		r.db.WithContext(ctx).
			Where("status = ? AND expiry_date < ?", string(inventory.LotStatusActive), inventory.NormalizeDate(today)).
			Order("product_id ASC").Order("seq ASC"))
}

// FindActiveExpiringBetween returns active lots with stock expiring in [from, to]
func (r *GormStockLotRepository) FindActiveExpiringBetween(ctx context.Context, from, to time.Time) ([]inventory.StockLot, error) {
	return r.find(ctx, "lot.find_expiring",
		r.db.WithContext(ctx).
			Where("status = ? AND remaining_quantity > 0 AND expiry_date >= ? AND expiry_date <= ?",
				string(inventory.LotStatusActive), inventory.NormalizeDate(from), inventory.NormalizeDate(to)).
			Order("expiry_date ASC").Order("seq ASC"))
}

// NextSequence returns max(seq)+1 for the product
func (r *GormStockLotRepository) NextSequence(ctx context.Context, productID string) (int64, error) {
	return nextSequence(ctx, r.db, &models.StockLotModel{}, productID, "lot.next_sequence")
}

func (r *GormStockLotRepository) find(_ context.Context, op string, query *gorm.DB) ([]inventory.StockLot, error) {
	var rows []models.StockLotModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, mapError(op, err)
	}
	lots := make([]inventory.StockLot, len(rows))
	for i := range rows {
		lots[i] = *rows[i].ToDomain()
	}
	return lots, nil
}

// nextSequence reads the per-product maximum of the seq column. The unique
// (product_id, seq) index turns a racing writer into an error rather than a
// duplicate sequence.
func nextSequence(ctx context.Context, db *gorm.DB, model any, productID, op string) (int64, error) {
	var maxSeq int64
	err := db.WithContext(ctx).
		Model(model).
		Where("product_id = ?", productID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error
	if err != nil {
		return 0, mapError(op, err)
	}
	return maxSeq + 1, nil
}

var _ inventory.StockLotRepository = (*GormStockLotRepository)(nil)
