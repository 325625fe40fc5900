//go:build integration

package payouts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/marketcore-backend/internal/ledger"
	"github.com/angelmondragon/marketcore-backend/internal/testsupport/pgtest"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentPayoutRequestsReserveBalanceOnce(t *testing.T) {
	client := pgtest.Open(t)
	ctx := context.Background()
	box := &recordingOutbox{}

	led, err := ledger.NewService(ledger.NewRepository(client.DB()), floorResolver{}, box, nil)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(client.DB()), client, led, box, nil, decisions{})
	require.NoError(t, err)

	vendorID := uuid.New()
	require.NoError(t, client.DB().Create(&models.VendorAccount{VendorID: vendorID}).Error)

	// One delivered order worth 90.00 to the vendor after commission.
	order := &models.Order{BuyerID: uuid.New(), Status: enums.OrderStatusDelivered, PaymentStatus: enums.PaymentStatusPaid, TotalCents: 10000}
	require.NoError(t, client.DB().Omit("Lines", "History").Create(order).Error)
	line := &models.OrderLine{OrderID: order.ID, ProductID: uuid.New(), ProductName: "Widget", VendorID: vendorID, Quantity: 1, UnitPriceCents: 10000, SubtotalCents: 10000}
	require.NoError(t, client.DB().Create(line).Error)
	availableAt := time.Now().UTC()
	require.NoError(t, client.DB().Create(&models.Earning{
		OrderID:           order.ID,
		OrderLineID:       line.ID,
		VendorID:          vendorID,
		OrderAmountCents:  10000,
		CommissionRate:    decimal.RequireFromString("0.10"),
		CommissionCents:   1000,
		VendorAmountCents: 9000,
		Status:            enums.EarningStatusAvailable,
		AvailableAt:       &availableAt,
	}).Error)

	const requests = 12
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		successes    int
		insufficient int
		unknown      []error
	)
	start := make(chan struct{})
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.RequestPayout(ctx, RequestPayoutInput{
				VendorID:      vendorID,
				ActorID:       uuid.New(),
				AmountCents:   6000,
				PaymentMethod: "bank_transfer",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance):
				insufficient++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, unknown)
	assert.Equal(t, 1, successes)
	assert.Equal(t, requests-1, insufficient)

	snapshot, err := led.Snapshot(ctx, client.DB(), vendorID)
	require.NoError(t, err)
	assert.EqualValues(t, 3000, snapshot.AvailableBalance)
	assert.GreaterOrEqual(t, snapshot.AvailableBalance, int64(0))
}
