package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/domain/allocation"
	"github.com/channelsync/backend/internal/domain/shared"
)

// newMockAllocationRepository creates a GormAllocationRepository with a mocked SQL connection
func newMockAllocationRepository(t *testing.T) (*GormAllocationRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormAllocationRepository(gormDB), mock, mockDB
}

func testAllocation(t *testing.T) *allocation.InventoryAllocation {
	t.Helper()
	a, err := allocation.NewInventoryAllocation(uuid.New(), uuid.New(),
		decimal.NewFromInt(100), decimal.NewFromInt(10))
	require.NoError(t, err)
	return a
}

func TestGormAllocationRepository_FindByProduct(t *testing.T) {
	t.Run("finds existing allocation", func(t *testing.T) {
		repo, mock, mockDB := newMockAllocationRepository(t)
		defer mockDB.Close()

		allocationID := uuid.New()
		storeID := uuid.New()
		productID := uuid.New()

		rows := sqlmock.NewRows([]string{"id", "store_id", "product_id", "physical_stock", "buffer_percent", "lines", "reservations", "version"}).
			AddRow(allocationID, storeID, productID, decimal.NewFromInt(100), decimal.NewFromInt(10), `[]`, `[]`, 3)

		mock.ExpectQuery(`SELECT \* FROM "inventory_allocations" WHERE store_id = \$1 AND product_id = \$2 ORDER BY .* LIMIT .*`).
			WithArgs(storeID, productID, 1).
			WillReturnRows(rows)

		a, err := repo.FindByProduct(context.Background(), storeID, productID)
		require.NoError(t, err)
		assert.Equal(t, allocationID, a.ID)
		assert.Equal(t, 3, a.Version)
		assert.True(t, a.PhysicalStock.Equal(decimal.NewFromInt(100)))
	})

	t.Run("maps missing row to domain error", func(t *testing.T) {
		repo, mock, mockDB := newMockAllocationRepository(t)
		defer mockDB.Close()

		storeID := uuid.New()
		productID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "inventory_allocations"`).
			WithArgs(storeID, productID, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.FindByProduct(context.Background(), storeID, productID)
		assert.ErrorIs(t, err, allocation.ErrAllocationNotFound)
	})
}

func TestGormAllocationRepository_SaveWithVersion(t *testing.T) {
	t.Run("bumps version on matching row", func(t *testing.T) {
		repo, mock, mockDB := newMockAllocationRepository(t)
		defer mockDB.Close()

		a := testAllocation(t)

		mock.ExpectExec(`UPDATE "inventory_allocations" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SaveWithVersion(context.Background(), a, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, a.Version)
	})

	t.Run("stale version returns concurrency conflict", func(t *testing.T) {
		repo, mock, mockDB := newMockAllocationRepository(t)
		defer mockDB.Close()

		a := testAllocation(t)

		mock.ExpectExec(`UPDATE "inventory_allocations" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SaveWithVersion(context.Background(), a, 1)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 1, a.Version)
	})
}
