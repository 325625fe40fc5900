package flashsale

import (
	"context"
	"testing"
	"time"

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

type outcomes map[string]int

func (o outcomes) ObserveReservation(outcome string) { o[outcome]++ }

type fixture struct {
	svc      Service
	db       *gorm.DB
	outbox   *recordingOutbox
	outcomes outcomes
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := sqlitetest.Open(t)
	box := &recordingOutbox{}
	seen := outcomes{}
	svc, err := NewService(NewRepository(client.DB()), client, box, nil, seen)
	require.NoError(t, err)
	return &fixture{svc: svc, db: client.DB(), outbox: box, outcomes: seen, now: time.Now().UTC()}
}

func (f *fixture) allocation(t *testing.T, max *int, sold int) *models.FlashSaleAllocation {
	t.Helper()
	a := &models.FlashSaleAllocation{
		FlashSaleID:    uuid.New(),
		ProductID:      uuid.New(),
		SalePriceCents: 799,
		MaxQuantity:    max,
		SoldCount:      sold,
		StartTime:      f.now.Add(-time.Hour),
		EndTime:        f.now.Add(time.Hour),
	}
	require.NoError(t, f.db.Create(a).Error)
	return a
}

func (f *fixture) soldCount(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var a models.FlashSaleAllocation
	require.NoError(t, f.db.Where("id = ?", id).First(&a).Error)
	return a.SoldCount
}

func intPtr(v int) *int { return &v }

func TestReserveIncrementsSoldCount(t *testing.T) {
	f := newFixture(t)
	a := f.allocation(t, intPtr(10), 0)

	res, err := f.svc.Reserve(context.Background(), nil, ReserveInput{ProductID: a.ProductID, Quantity: 3, At: f.now})
	require.NoError(t, err)
	assert.Equal(t, a.ID, res.AllocationID)
	assert.EqualValues(t, 799, res.SalePriceCents)
	require.NotNil(t, res.Remaining)
	assert.Equal(t, 7, *res.Remaining)
	assert.Equal(t, 3, f.soldCount(t, a.ID))
	assert.Equal(t, 1, f.outcomes[outcomeReserved])
}

func TestReserveSoldOutLeavesCountUnchanged(t *testing.T) {
	f := newFixture(t)
	a := f.allocation(t, intPtr(10), 10)

	_, err := f.svc.Reserve(context.Background(), nil, ReserveInput{FlashSaleID: &a.FlashSaleID, ProductID: a.ProductID, Quantity: 1, At: f.now})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSoldOut))
	assert.Equal(t, 10, f.soldCount(t, a.ID))
	assert.Equal(t, 1, f.outcomes[outcomeSoldOut])
}

func TestReserveInsufficientRemainingExposesRemaining(t *testing.T) {
	f := newFixture(t)
	a := f.allocation(t, intPtr(10), 8)

	_, err := f.svc.Reserve(context.Background(), nil, ReserveInput{ProductID: a.ProductID, Quantity: 5, At: f.now})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientRemaining, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, details["remaining"])
	assert.Equal(t, 8, f.soldCount(t, a.ID))
}

func TestReserveOutsideWindow(t *testing.T) {
	f := newFixture(t)
	a := f.allocation(t, intPtr(10), 0)

	_, err := f.svc.Reserve(context.Background(), nil, ReserveInput{FlashSaleID: &a.FlashSaleID, ProductID: a.ProductID, Quantity: 1, At: f.now.Add(2 * time.Hour)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSaleNotActive))

	_, err = f.svc.Reserve(context.Background(), nil, ReserveInput{ProductID: a.ProductID, Quantity: 1, At: f.now.Add(-2 * time.Hour)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSaleNotActive))
	assert.Zero(t, f.soldCount(t, a.ID))
}

func TestReserveUnlimitedAllocation(t *testing.T) {
	f := newFixture(t)
	a := f.allocation(t, nil, 0)

	for i := 0; i < 5; i++ {
		res, err := f.svc.Reserve(context.Background(), nil, ReserveInput{ProductID: a.ProductID, Quantity: 100, At: f.now})
		require.NoError(t, err)
		assert.Nil(t, res.Remaining)
	}
	assert.Equal(t, 500, f.soldCount(t, a.ID))
}

func TestReserveExactlyCapacityThenSoldOut(t *testing.T) {
	f := newFixture(t)
	a := f.allocation(t, intPtr(4), 0)

	successes := 0
	for i := 0; i < 10; i++ {
		if _, err := f.svc.Reserve(context.Background(), nil, ReserveInput{ProductID: a.ProductID, Quantity: 1, At: f.now}); err == nil {
			successes++
		} else {
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSoldOut))
		}
	}
	assert.Equal(t, 4, successes)
	assert.Equal(t, 4, f.soldCount(t, a.ID))
}

func TestReleaseIsAppliedOnce(t *testing.T) {
	f := newFixture(t)
	a := f.allocation(t, intPtr(10), 0)
	res, err := f.svc.Reserve(context.Background(), nil, ReserveInput{ProductID: a.ProductID, Quantity: 4, At: f.now})
	require.NoError(t, err)

	first, err := f.svc.Release(context.Background(), nil, res.ID)
	require.NoError(t, err)
	assert.False(t, first.AlreadyReleased)
	assert.Zero(t, f.soldCount(t, a.ID))

	second, err := f.svc.Release(context.Background(), nil, res.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyReleased)
	assert.Zero(t, f.soldCount(t, a.ID))

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventFlashSaleReleased, f.outbox.events[0].EventType)
}

func TestReleaseNeverDrivesCountNegative(t *testing.T) {
	f := newFixture(t)
	a := f.allocation(t, intPtr(10), 1)
	reservation := &models.FlashSaleReservation{AllocationID: a.ID, Quantity: 5}
	require.NoError(t, f.db.Create(reservation).Error)

	_, err := f.svc.Release(context.Background(), nil, reservation.ID)
	require.NoError(t, err)
	assert.Zero(t, f.soldCount(t, a.ID))
}

func TestCreateAllocationValidatesWindow(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateAllocation(context.Background(), CreateAllocationInput{
		FlashSaleID: uuid.New(),
		ProductID:   uuid.New(),
		StartTime:   f.now,
		EndTime:     f.now,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	input := CreateAllocationInput{
		FlashSaleID:     uuid.New(),
		ProductID:       uuid.New(),
		SalePriceCents:  500,
		DiscountPercent: 50,
		MaxQuantity:     intPtr(20),
		StartTime:       f.now.Add(-time.Minute),
		EndTime:         f.now.Add(time.Hour),
	}
	view, err := f.svc.CreateAllocation(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 20, *view.Remaining)

	_, err = f.svc.CreateAllocation(context.Background(), input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	active, err := f.svc.ListActive(context.Background(), f.now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 0, *active[0].ProgressPercent)
}

func TestExpireEndedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ended := &models.FlashSaleAllocation{
		FlashSaleID: uuid.New(),
		ProductID:   uuid.New(),
		StartTime:   f.now.Add(-2 * time.Hour),
		EndTime:     f.now.Add(-time.Hour),
	}
	require.NoError(t, f.db.Create(ended).Error)
	f.allocation(t, intPtr(5), 0)

	n, err := f.svc.ExpireEnded(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.ExpireEnded(context.Background(), f.now)
	require.NoError(t, err)
	assert.Zero(t, n)

	var reloaded models.FlashSaleAllocation
	require.NoError(t, f.db.Where("id = ?", ended.ID).First(&reloaded).Error)
	assert.Equal(t, enums.FlashSaleStatusExpired, reloaded.Status)
}

func TestReleaseHoldChecksOwnerAndAttachment(t *testing.T) {
	f := newFixture(t)
	a := f.allocation(t, intPtr(10), 0)
	buyer := uuid.New()
	ctx := context.Background()

	hold, err := f.svc.Reserve(ctx, nil, ReserveInput{ProductID: a.ProductID, BuyerID: buyer, Quantity: 2, At: f.now})
	require.NoError(t, err)
	assert.WithinDuration(t, f.now.Add(defaultHoldTTL), hold.ExpiresAt, time.Second)

	_, err = f.svc.ReleaseHold(ctx, ReleaseHoldInput{ReservationID: hold.ID, ActorID: uuid.New(), ActorRole: enums.ActorRoleBuyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.ReleaseHold(ctx, ReleaseHoldInput{ReservationID: hold.ID, ActorID: buyer, ActorRole: enums.ActorRoleVendor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, 2, f.soldCount(t, a.ID))

	res, err := f.svc.ReleaseHold(ctx, ReleaseHoldInput{ReservationID: hold.ID, ActorID: buyer, ActorRole: enums.ActorRoleBuyer})
	require.NoError(t, err)
	assert.False(t, res.AlreadyReleased)
	assert.Zero(t, f.soldCount(t, a.ID))

	ordered, err := f.svc.Reserve(ctx, nil, ReserveInput{ProductID: a.ProductID, BuyerID: buyer, Quantity: 1, At: f.now})
	require.NoError(t, err)
	require.NoError(t, f.svc.AttachOrderLine(ctx, nil, ordered.ID, uuid.New()))

	_, err = f.svc.ReleaseHold(ctx, ReleaseHoldInput{ReservationID: ordered.ID, ActorID: buyer, ActorRole: enums.ActorRoleBuyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	_, err = f.svc.ReleaseHold(ctx, ReleaseHoldInput{ReservationID: ordered.ID, ActorID: uuid.New(), ActorRole: enums.ActorRoleAdmin})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 1, f.soldCount(t, a.ID))
}

func TestAttachOrderLineRejectsReleasedHold(t *testing.T) {
	f := newFixture(t)
	a := f.allocation(t, intPtr(10), 0)
	ctx := context.Background()

	hold, err := f.svc.Reserve(ctx, nil, ReserveInput{ProductID: a.ProductID, Quantity: 1, At: f.now})
	require.NoError(t, err)
	_, err = f.svc.Release(ctx, nil, hold.ID)
	require.NoError(t, err)

	err = f.svc.AttachOrderLine(ctx, nil, hold.ID, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestReleaseExpiredHoldsReturnsLapsedQuantity(t *testing.T) {
	client := sqlitetest.Open(t)
	box := &recordingOutbox{}
	svc, err := NewService(NewRepository(client.DB()), client, box, nil, nil, WithHoldTTL(time.Minute))
	require.NoError(t, err)
	f := &fixture{svc: svc, db: client.DB(), outbox: box, now: time.Now().UTC()}
	a := f.allocation(t, intPtr(5), 0)
	ctx := context.Background()

	lapsed, err := svc.Reserve(ctx, nil, ReserveInput{ProductID: a.ProductID, Quantity: 2, At: f.now})
	require.NoError(t, err)
	ordered, err := svc.Reserve(ctx, nil, ReserveInput{ProductID: a.ProductID, Quantity: 1, At: f.now})
	require.NoError(t, err)
	require.NoError(t, svc.AttachOrderLine(ctx, nil, ordered.ID, uuid.New()))
	fresh, err := svc.Reserve(ctx, nil, ReserveInput{ProductID: a.ProductID, Quantity: 1, At: f.now.Add(30 * time.Minute)})
	require.NoError(t, err)

	n, err := svc.ReleaseExpiredHolds(ctx, f.now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, f.soldCount(t, a.ID))

	n, err = svc.ReleaseExpiredHolds(ctx, f.now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	var freshRow models.FlashSaleReservation
	require.NoError(t, f.db.Where("id = ?", fresh.ID).First(&freshRow).Error)
	assert.Nil(t, freshRow.ReleasedAt)
	var lapsedRow models.FlashSaleReservation
	require.NoError(t, f.db.Where("id = ?", lapsed.ID).First(&lapsedRow).Error)
	assert.NotNil(t, lapsedRow.ReleasedAt)
}
