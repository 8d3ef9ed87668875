package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	domain "github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockGormDB opens gorm on a postgres dialect backed by sqlmock
func newMockGormDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func TestGormProductInventoryRepository_ForUpdate(t *testing.T) {
	db, mock, mockDB := newMockGormDB(t)
	defer mockDB.Close()
	repo := NewGormProductInventoryRepository(db)

	rows := sqlmock.NewRows([]string{"id", "product_id", "current_stock", "safety_stock", "location", "version"}).
		AddRow("6f1c0d2e-3a4b-4c5d-8e9f-0a1b2c3d4e5f", "beef-001", "40", "30", "cold", 3)
	mock.ExpectQuery(`SELECT \* FROM "product_inventories" WHERE product_id = \$1 .*FOR UPDATE`).
		WithArgs("beef-001", 1).
		WillReturnRows(rows)

	inv, err := repo.FindByProductForUpdate(context.Background(), "beef-001")
	require.NoError(t, err)
	assert.Equal(t, "beef-001", inv.ProductID)
	assert.Equal(t, 3, inv.Version)
	assert.Equal(t, domain.StockStatusOK, inv.Status())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStockLotRepository_ForUpdate(t *testing.T) {
	db, mock, mockDB := newMockGormDB(t)
	defer mockDB.Close()
	repo := NewGormStockLotRepository(db)

	rows := sqlmock.NewRows([]string{"id", "product_id", "lot_number", "remaining_quantity", "status"}).
		AddRow("0b9e3c4d-5f6a-4b7c-8d9e-1f2a3b4c5d6e", "beef-001", "LOT-20240301-001", "12.5", "active")
	mock.ExpectQuery(`SELECT \* FROM "stock_lots" WHERE id = \$1 .*FOR UPDATE`).
		WithArgs(sqlmock.AnyArg(), 1).
		WillReturnRows(rows)

	lot, err := repo.FindByIDForUpdate(context.Background(), uuid.MustParse("0b9e3c4d-5f6a-4b7c-8d9e-1f2a3b4c5d6e"))
	require.NoError(t, err)
	assert.Equal(t, "LOT-20240301-001", lot.LotNumber)
	assert.True(t, lot.RemainingQuantity.Equal(decimal.RequireFromString("12.5")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormProductInventoryRepository_SaveConflict(t *testing.T) {
	db, mock, mockDB := newMockGormDB(t)
	defer mockDB.Close()
	repo := NewGormProductInventoryRepository(db)

	inv, err := domain.NewProductInventory("beef-001", domain.DefaultTrackingSettings(), day0)
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE "product_inventories" SET .*version"=version \+ 1.* WHERE product_id = \$\d+ AND version = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "product_inventories" WHERE product_id = \$1`).
		WithArgs("beef-001").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err = repo.Save(context.Background(), inv)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Equal(t, 1, inv.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRepositories_StorageFailure(t *testing.T) {
	db, mock, mockDB := newMockGormDB(t)
	defer mockDB.Close()

	driverErr := errors.New("connection reset by peer")
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq\), 0\) FROM "stock_movements" WHERE product_id = \$1`).
		WithArgs("beef-001").
		WillReturnError(driverErr)

	_, err := NewGormStockMovementRepository(db).NextSequence(context.Background(), "beef-001")
	assert.ErrorIs(t, err, shared.ErrStorageFailure)
	assert.ErrorIs(t, err, driverErr)

	var storageErr *shared.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "movement.next_sequence", storageErr.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}
