package catalog

import (
	"context"
	"testing"

	"github.com/angelmondragon/marketcore-backend/internal/testsupport/sqlitetest"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecrementStockGuardsAvailableQuantity(t *testing.T) {
	client := sqlitetest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	product := &models.Product{VendorID: uuid.New(), Name: "Lamp", PriceCents: 2500, Stock: 3, IsActive: true}
	require.NoError(t, repo.Create(ctx, product))

	ok, err := repo.DecrementStock(ctx, product.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DecrementStock(ctx, product.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	reloaded, err := repo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Stock)
}

func TestDecrementStockSkipsInactiveProducts(t *testing.T) {
	client := sqlitetest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	product := &models.Product{VendorID: uuid.New(), Name: "Retired", PriceCents: 100, Stock: 10}
	require.NoError(t, repo.Create(ctx, product))

	ok, err := repo.DecrementStock(ctx, product.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindByIDsReturnsKnownProducts(t *testing.T) {
	client := sqlitetest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	product := &models.Product{VendorID: uuid.New(), Name: "Mug", PriceCents: 900, Stock: 1, IsActive: true}
	require.NoError(t, repo.Create(ctx, product))

	found, err := repo.FindByIDs(ctx, []uuid.UUID{product.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(900), found[product.ID].PriceCents)
}
