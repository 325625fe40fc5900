package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/marketcore-backend/internal/catalog"
	"github.com/angelmondragon/marketcore-backend/internal/checkout/helpers"
	"github.com/angelmondragon/marketcore-backend/internal/flashsale"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/internal/testsupport/sqlitetest"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type fixture struct {
	svc       Service
	allocator flashsale.Service
	db        *gorm.DB
	catalog   catalog.Repository
	outbox    *recordingOutbox
	buyer     uuid.UUID
	vendor    uuid.UUID
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := sqlitetest.Open(t)
	box := &recordingOutbox{}
	catalogRepo := catalog.NewRepository(client.DB())

	allocator, err := flashsale.NewService(flashsale.NewRepository(client.DB()), client, box, nil, nil)
	require.NoError(t, err)
	svc, err := NewService(client, catalogRepo, orders.NewRepository(client.DB()), allocator, box, nil)
	require.NoError(t, err)

	return &fixture{
		svc:       svc,
		allocator: allocator,
		db:        client.DB(),
		catalog:   catalogRepo,
		outbox:    box,
		buyer:     uuid.New(),
		vendor:    uuid.New(),
		now:       time.Now().UTC(),
	}
}

func (f *fixture) product(t *testing.T, price int64, stock int) *models.Product {
	t.Helper()
	p := &models.Product{VendorID: f.vendor, Name: "Widget", PriceCents: price, Stock: stock, IsActive: true}
	require.NoError(t, f.catalog.Create(context.Background(), p))
	return p
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := f.catalog.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) orderCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&n).Error)
	return n
}

func TestCreateOrderCapturesPricesAndDecrementsStock(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, 1000, 5)
	b := f.product(t, 250, 5)

	view, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: f.buyer,
		Lines: []helpers.LineRequest{
			{ProductID: a.ID, Quantity: 1},
			{ProductID: b.ID, Quantity: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, view.Status)
	assert.Equal(t, enums.PaymentStatusUnpaid, view.PaymentStatus)
	assert.EqualValues(t, 1500, view.TotalCents)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, f.vendor, view.Lines[0].VendorID)

	assert.Equal(t, 4, f.stock(t, a.ID))
	assert.Equal(t, 3, f.stock(t, b.ID))

	var history []models.OrderStatusHistory
	require.NoError(t, f.db.Where("order_id = ?", view.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, enums.OrderStatusPending, history[0].Status)

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventOrderCreated, f.outbox.events[0].EventType)
}

func TestCreateOrderRejectsInsufficientStock(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, 1000, 5)
	b := f.product(t, 250, 1)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: f.buyer,
		Lines: []helpers.LineRequest{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 2},
		},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	assert.Equal(t, 5, f.stock(t, a.ID), "earlier decrement must roll back")
	assert.Equal(t, 1, f.stock(t, b.ID))
	assert.Zero(t, f.orderCount(t))
}

func TestCreateOrderRejectsUnknownProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: f.buyer,
		Lines:   []helpers.LineRequest{{ProductID: uuid.New(), Quantity: 1}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreateOrderReservesFlashSaleQuantity(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, 1000, 10)
	limit := 3
	allocation := &models.FlashSaleAllocation{
		FlashSaleID:     uuid.New(),
		ProductID:       p.ID,
		SalePriceCents:  600,
		DiscountPercent: 40,
		MaxQuantity:     &limit,
		StartTime:       f.now.Add(-time.Hour),
		EndTime:         f.now.Add(time.Hour),
	}
	require.NoError(t, f.db.Create(allocation).Error)

	view, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: f.buyer,
		Lines:   []helpers.LineRequest{{ProductID: p.ID, Quantity: 2, FlashSaleID: &allocation.FlashSaleID}},
		At:      f.now,
	})
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.EqualValues(t, 600, view.Lines[0].UnitPriceCents)
	assert.EqualValues(t, 1200, view.TotalCents)
	require.NotNil(t, view.Lines[0].FlashSaleReservationID)

	var reservation models.FlashSaleReservation
	require.NoError(t, f.db.Where("id = ?", *view.Lines[0].FlashSaleReservationID).First(&reservation).Error)
	require.NotNil(t, reservation.OrderLineID)
	assert.Equal(t, view.Lines[0].ID, *reservation.OrderLineID)
	require.NotNil(t, reservation.BuyerID)
	assert.Equal(t, f.buyer, *reservation.BuyerID)
	assert.Nil(t, reservation.ExpiresAt, "an attached reservation never lapses")

	_, err = f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: f.buyer,
		Lines:   []helpers.LineRequest{{ProductID: p.ID, Quantity: 2, FlashSaleID: &allocation.FlashSaleID}},
		At:      f.now,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientRemaining))

	var reloaded models.FlashSaleAllocation
	require.NoError(t, f.db.Where("id = ?", allocation.ID).First(&reloaded).Error)
	assert.Equal(t, 2, reloaded.SoldCount)
	assert.Equal(t, 8, f.stock(t, p.ID))
}

func TestCreateOrderValidatesInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{Lines: []helpers.LineRequest{{ProductID: uuid.New(), Quantity: 1}}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreateOrder(context.Background(), CreateOrderInput{BuyerID: f.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestOrderedFlashSaleUnitCannotBeReleasedByHand(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, 1000, 10)
	limit := 1
	allocation := &models.FlashSaleAllocation{
		FlashSaleID:    uuid.New(),
		ProductID:      p.ID,
		SalePriceCents: 500,
		MaxQuantity:    &limit,
		StartTime:      f.now.Add(-time.Hour),
		EndTime:        f.now.Add(time.Hour),
	}
	require.NoError(t, f.db.Create(allocation).Error)

	view, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: f.buyer,
		Lines:   []helpers.LineRequest{{ProductID: p.ID, Quantity: 1, FlashSaleID: &allocation.FlashSaleID}},
		At:      f.now,
	})
	require.NoError(t, err)
	reservationID := *view.Lines[0].FlashSaleReservationID

	for _, caller := range []flashsale.ReleaseHoldInput{
		{ReservationID: reservationID, ActorID: f.buyer, ActorRole: enums.ActorRoleBuyer},
		{ReservationID: reservationID, ActorID: uuid.New(), ActorRole: enums.ActorRoleAdmin},
	} {
		_, err := f.allocator.ReleaseHold(context.Background(), caller)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "role %s", caller.ActorRole)
	}
	_, err = f.allocator.ReleaseHold(context.Background(), flashsale.ReleaseHoldInput{
		ReservationID: reservationID, ActorID: uuid.New(), ActorRole: enums.ActorRoleBuyer,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: uuid.New(),
		Lines:   []helpers.LineRequest{{ProductID: p.ID, Quantity: 1, FlashSaleID: &allocation.FlashSaleID}},
		At:      f.now,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSoldOut))

	var reloaded models.FlashSaleAllocation
	require.NoError(t, f.db.Where("id = ?", allocation.ID).First(&reloaded).Error)
	assert.Equal(t, 1, reloaded.SoldCount)
}
