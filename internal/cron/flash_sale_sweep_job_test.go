package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/marketcore-backend/internal/flashsale"
	"github.com/angelmondragon/marketcore-backend/internal/testsupport/sqlitetest"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type discardOutbox struct{}

func (discardOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	return nil
}

func TestFlashSaleSweepJobExpiresEndedAllocations(t *testing.T) {
	client := sqlitetest.Open(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	ended := &models.FlashSaleAllocation{
		FlashSaleID:    uuid.New(),
		ProductID:      uuid.New(),
		SalePriceCents: 500,
		StartTime:      now.Add(-2 * time.Hour),
		EndTime:        now.Add(-time.Minute),
	}
	running := &models.FlashSaleAllocation{
		FlashSaleID:    uuid.New(),
		ProductID:      uuid.New(),
		SalePriceCents: 500,
		StartTime:      now.Add(-time.Hour),
		EndTime:        now.Add(time.Hour),
	}
	require.NoError(t, client.DB().Create(ended).Error)
	require.NoError(t, client.DB().Create(running).Error)

	lapsedAt := now.Add(-time.Minute)
	freshAt := now.Add(time.Minute)
	lapsed := &models.FlashSaleReservation{AllocationID: running.ID, Quantity: 2, ExpiresAt: &lapsedAt}
	fresh := &models.FlashSaleReservation{AllocationID: running.ID, Quantity: 1, ExpiresAt: &freshAt}
	require.NoError(t, client.DB().Create(lapsed).Error)
	require.NoError(t, client.DB().Create(fresh).Error)
	require.NoError(t, client.DB().Model(running).Update("sold_count", 3).Error)

	flashSales, err := flashsale.NewService(flashsale.NewRepository(client.DB()), client, discardOutbox{}, nil, nil)
	require.NoError(t, err)
	jobIface, err := NewFlashSaleSweepJob(FlashSaleSweepJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		FlashSales: flashSales,
	})
	require.NoError(t, err)
	job := jobIface.(*flashSaleSweepJob)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	var endedRow models.FlashSaleAllocation
	require.NoError(t, client.DB().Where("id = ?", ended.ID).First(&endedRow).Error)
	assert.Equal(t, enums.FlashSaleStatusExpired, endedRow.Status)

	var runningRow models.FlashSaleAllocation
	require.NoError(t, client.DB().Where("id = ?", running.ID).First(&runningRow).Error)
	assert.Equal(t, enums.FlashSaleStatusActive, runningRow.Status)
	assert.Equal(t, 1, runningRow.SoldCount)

	var lapsedRow models.FlashSaleReservation
	require.NoError(t, client.DB().Where("id = ?", lapsed.ID).First(&lapsedRow).Error)
	assert.NotNil(t, lapsedRow.ReleasedAt)

	var freshRow models.FlashSaleReservation
	require.NoError(t, client.DB().Where("id = ?", fresh.ID).First(&freshRow).Error)
	assert.Nil(t, freshRow.ReleasedAt)
}

type failingExpirer struct {
	holdsChecked bool
}

func (f *failingExpirer) ExpireEnded(ctx context.Context, at time.Time) (int, error) {
	return 0, errors.New("boom")
}

func (f *failingExpirer) ReleaseExpiredHolds(ctx context.Context, at time.Time) (int, error) {
	f.holdsChecked = true
	return 0, nil
}

func TestFlashSaleSweepJobPropagatesError(t *testing.T) {
	expirer := &failingExpirer{}
	job, err := NewFlashSaleSweepJob(FlashSaleSweepJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		FlashSales: expirer,
	})
	require.NoError(t, err)
	assert.ErrorContains(t, job.Run(context.Background()), "boom")
	assert.True(t, expirer.holdsChecked)
}
