package persistence

import (
	"context"
	"errors"

	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/meatco/stockledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProductInventoryRepository implements the projection repository using GORM
type GormProductInventoryRepository struct {
	db *gorm.DB
}

// NewGormProductInventoryRepository creates a new GormProductInventoryRepository
func NewGormProductInventoryRepository(db *gorm.DB) *GormProductInventoryRepository {
	return &GormProductInventoryRepository{db: db}
}

// FindByProduct finds the projection row of a product
func (r *GormProductInventoryRepository) FindByProduct(ctx context.Context, productID string) (*inventory.ProductInventory, error) {
	return r.findOne(r.db.WithContext(ctx), productID, "inventory.find")
}

// FindByProductForUpdate takes SELECT ... FOR UPDATE on the row. The sqlite
// dialect drops the locking clause; the product lock still serializes writers.
func (r *GormProductInventoryRepository) FindByProductForUpdate(ctx context.Context, productID string) (*inventory.ProductInventory, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), productID, "inventory.find_for_update")
}

// Save inserts a new projection row or updates an existing one guarded by its version
func (r *GormProductInventoryRepository) Save(ctx context.Context, inv *inventory.ProductInventory) error {
	db := r.db.WithContext(ctx)
	m := models.ProductInventoryModelFromDomain(inv)

	result := db.Model(&models.ProductInventoryModel{}).
		Where("product_id = ? AND version = ?", inv.ProductID, inv.Version).
		Updates(map[string]any{
			"current_stock": m.CurrentStock,
			"safety_stock":  m.SafetyStock,
			"location":      m.Location,
			"last_updated":  m.LastUpdated,
			"updated_at":    m.UpdatedAt,
			"version":       gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return mapError("inventory.save", result.Error)
	}
	if result.RowsAffected == 1 {
		inv.IncrementVersion()
		return nil
	}

	var count int64
	if err := db.Model(&models.ProductInventoryModel{}).Where("product_id = ?", inv.ProductID).Count(&count).Error; err != nil {
		return mapError("inventory.save", err)
	}
	if count > 0 {
		return shared.ErrConcurrencyConflict
	}
	if err := db.Create(m).Error; err != nil {
		if err = mapError("inventory.save", err); errors.Is(err, shared.ErrAlreadyExists) {
			// another writer created the row between the update and the insert
			return shared.ErrConcurrencyConflict
		}
		return err
	}
	return nil
}

// FindAll returns every tracked product ordered by product ID
func (r *GormProductInventoryRepository) FindAll(ctx context.Context) ([]inventory.ProductInventory, error) {
	var rows []models.ProductInventoryModel
	if err := r.db.WithContext(ctx).Order("product_id ASC").Find(&rows).Error; err != nil {
		return nil, mapError("inventory.find_all", err)
	}
	out := make([]inventory.ProductInventory, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

func (r *GormProductInventoryRepository) findOne(db *gorm.DB, productID, op string) (*inventory.ProductInventory, error) {
	var m models.ProductInventoryModel
	if err := db.Where("product_id = ?", productID).First(&m).Error; err != nil {
		return nil, mapError(op, err)
	}
	return m.ToDomain(), nil
}

var _ inventory.ProductInventoryRepository = (*GormProductInventoryRepository)(nil)
