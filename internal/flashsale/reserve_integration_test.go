//go:build integration

package flashsale

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/marketcore-backend/internal/testsupport/pgtest"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentReservesNeverOversell(t *testing.T) {
	client := pgtest.Open(t)
	ctx := context.Background()
	now := time.Now().UTC()

	product := &models.Product{VendorID: uuid.New(), Name: "Drop", PriceCents: 2000, Stock: 1000, IsActive: true}
	require.NoError(t, client.DB().Create(product).Error)

	const capacity, buyers = 10, 48
	limit := capacity
	allocation := &models.FlashSaleAllocation{
		FlashSaleID:    uuid.New(),
		ProductID:      product.ID,
		SalePriceCents: 1000,
		MaxQuantity:    &limit,
		StartTime:      now.Add(-time.Minute),
		EndTime:        now.Add(time.Hour),
	}
	require.NoError(t, client.DB().Create(allocation).Error)

	svc, err := NewService(NewRepository(client.DB()), client, &recordingOutbox{}, nil, nil)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
		unknown   []error
	)
	start := make(chan struct{})
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Reserve(ctx, nil, ReserveInput{FlashSaleID: &allocation.FlashSaleID, ProductID: product.ID, Quantity: 1, At: now})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case pkgerrors.IsCode(err, pkgerrors.CodeSoldOut), pkgerrors.IsCode(err, pkgerrors.CodeInsufficientRemaining):
				rejected++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, unknown)
	assert.Equal(t, capacity, successes)
	assert.Equal(t, buyers-capacity, rejected)

	var reloaded models.FlashSaleAllocation
	require.NoError(t, client.DB().Where("id = ?", allocation.ID).First(&reloaded).Error)
	assert.Equal(t, capacity, reloaded.SoldCount)

	var reservations int64
	require.NoError(t, client.DB().Model(&models.FlashSaleReservation{}).Where("allocation_id = ?", allocation.ID).Count(&reservations).Error)
	assert.EqualValues(t, capacity, reservations)
}
