package commission

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/marketcore-backend/internal/testsupport/sqlitetest"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubRepo struct {
	Repository
	override *models.CommissionRate
	def      *models.CommissionRate
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) FindStoreOverride(ctx context.Context, storeID uuid.UUID, at time.Time) (*models.CommissionRate, error) {
	return s.override, nil
}

func (s *stubRepo) FindActiveDefault(ctx context.Context) (*models.CommissionRate, error) {
	return s.def, nil
}

type countingFallback struct{ n int }

func (c *countingFallback) IncCommissionFallback() { c.n++ }

func mustRate(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse rate %q: %v", value, err)
	}
	return d
}

func TestSplitSumsExactly(t *testing.T) {
	cases := []struct {
		amount     int64
		rate       string
		commission int64
		vendor     int64
	}{
		{1000, "0.10", 100, 900},
		{500, "0.10", 50, 450},
		{999, "0.125", 125, 874},
		{5, "0.10", 1, 4},
		{4, "0.125", 1, 3},
		{1, "1", 1, 0},
		{12345, "0.0001", 1, 12344},
	}
	for _, tc := range cases {
		commission, vendor := Split(tc.amount, mustRate(t, tc.rate))
		if commission != tc.commission || vendor != tc.vendor {
			t.Fatalf("Split(%d, %s) = %d/%d, want %d/%d", tc.amount, tc.rate, commission, vendor, tc.commission, tc.vendor)
		}
	}

	for _, rate := range []string{"0.0001", "0.0333", "0.1", "0.175", "0.5", "0.9999", "1"} {
		for amount := int64(0); amount <= 2000; amount += 7 {
			commission, vendor := Split(amount, mustRate(t, rate))
			if commission+vendor != amount || commission < 0 || vendor < 0 {
				t.Fatalf("split of %d at %s broke the sum: %d + %d", amount, rate, commission, vendor)
			}
		}
	}
}

func TestValidateRate(t *testing.T) {
	for _, bad := range []string{"0", "-0.1", "1.0001", "2"} {
		err := ValidateRate(mustRate(t, bad))
		if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
			t.Fatalf("expected validation error for %s, got %v", bad, err)
		}
	}
	for _, ok := range []string{"0.0001", "0.5", "1"} {
		if err := ValidateRate(mustRate(t, ok)); err != nil {
			t.Fatalf("rate %s should be valid: %v", ok, err)
		}
	}
}

func TestResolvePrefersStoreOverride(t *testing.T) {
	overrideID := uuid.New()
	repo := &stubRepo{
		override: &models.CommissionRate{ID: overrideID, Rate: mustRate(t, "0.05")},
		def:      &models.CommissionRate{ID: uuid.New(), Rate: mustRate(t, "0.10")},
	}
	svc, err := NewService(repo, stubTxRunner{}, &stubOutbox{}, mustRate(t, "0.15"), nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	res, err := svc.Resolve(context.Background(), nil, uuid.New(), time.Now())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Source != SourceStoreOverride || res.RateID == nil || *res.RateID != overrideID {
		t.Fatalf("expected store override, got %+v", res)
	}
}

func TestResolveFallsBackToFloor(t *testing.T) {
	fallback := &countingFallback{}
	svc, err := NewService(&stubRepo{}, stubTxRunner{}, &stubOutbox{}, mustRate(t, "0.15"), nil, fallback)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	res, err := svc.Resolve(context.Background(), nil, uuid.New(), time.Now())
	if err != nil {
		t.Fatalf("floor resolution must not fail: %v", err)
	}
	if res.Source != SourceFloor || res.RateID != nil || !res.Rate.Equal(mustRate(t, "0.15")) {
		t.Fatalf("expected floor rate, got %+v", res)
	}
	if fallback.n != 1 {
		t.Fatalf("expected fallback to be counted once, got %d", fallback.n)
	}
}

func TestNewServiceRejectsInvalidFloor(t *testing.T) {
	if _, err := NewService(&stubRepo{}, stubTxRunner{}, &stubOutbox{}, decimal.Zero, nil, nil); err == nil {
		t.Fatal("expected error for zero floor rate")
	}
}

func newSQLiteService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	client := sqlitetest.Open(t)
	svc, err := NewService(
		NewRepository(client.DB()),
		client,
		outbox.NewService(outbox.NewRepository(client.DB()), nil),
		decimal.RequireFromString("0.10"),
		nil,
		nil,
	)
	require.NoError(t, err)
	return svc, client.DB()
}

func TestCreateDefaultReplacesPreviousDefault(t *testing.T) {
	svc, conn := newSQLiteService(t)
	ctx := context.Background()
	admin := uuid.New()

	first, err := svc.CreateRate(ctx, CreateRateInput{Name: "Standard", Rate: decimal.RequireFromString("0.10"), IsDefault: true, ActorID: admin})
	require.NoError(t, err)
	second, err := svc.CreateRate(ctx, CreateRateInput{Name: "Promo", Rate: decimal.RequireFromString("0.08"), IsDefault: true, ActorID: admin})
	require.NoError(t, err)

	var defaults []models.CommissionRate
	require.NoError(t, conn.Where("is_default = ? AND is_active = ?", true, true).Find(&defaults).Error)
	require.Len(t, defaults, 1)
	assert.Equal(t, second.ID, defaults[0].ID)

	res, err := svc.Resolve(ctx, nil, uuid.New(), time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, res.Source)
	assert.True(t, res.Rate.Equal(decimal.RequireFromString("0.08")))

	_, err = svc.SetDefault(ctx, first.ID, admin)
	require.NoError(t, err)
	res, err = svc.Resolve(ctx, nil, uuid.Nil, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, res.RateID)
	assert.Equal(t, first.ID, *res.RateID)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventCommissionRateChanged).Count(&events).Error)
	assert.EqualValues(t, 3, events)
}

func TestResolveIgnoresOverridesCreatedAfterInstant(t *testing.T) {
	svc, _ := newSQLiteService(t)
	ctx := context.Background()
	store := uuid.New()

	_, err := svc.CreateRate(ctx, CreateRateInput{Name: "Standard", Rate: decimal.RequireFromString("0.10"), IsDefault: true})
	require.NoError(t, err)
	before := time.Now().UTC().Add(-time.Minute)
	override, err := svc.CreateRate(ctx, CreateRateInput{Name: "Partner", Rate: decimal.RequireFromString("0.03"), StoreID: &store})
	require.NoError(t, err)

	res, err := svc.Resolve(ctx, nil, store, before)
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, res.Source)

	res, err = svc.Resolve(ctx, nil, store, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, SourceStoreOverride, res.Source)
	assert.Equal(t, override.ID, *res.RateID)

	_, err = svc.Deactivate(ctx, override.ID, uuid.New())
	require.NoError(t, err)
	res, err = svc.Resolve(ctx, nil, store, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, res.Source)
}

func TestCreateRateValidation(t *testing.T) {
	svc, _ := newSQLiteService(t)
	store := uuid.New()
	_, err := svc.CreateRate(context.Background(), CreateRateInput{Name: "x", Rate: decimal.RequireFromString("0.1"), StoreID: &store, IsDefault: true})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.CreateRate(context.Background(), CreateRateInput{Name: " ", Rate: decimal.RequireFromString("0.1")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListPagesNewestFirst(t *testing.T) {
	svc, _ := newSQLiteService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.CreateRate(ctx, CreateRateInput{Name: "rate", Rate: decimal.RequireFromString("0.2")})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, ListParams{Params: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.List(ctx, ListParams{Params: pagination.Params{Limit: 2, Cursor: page.NextCursor}})
	require.NoError(t, err)
	assert.Len(t, next.Items, 1)
	assert.Empty(t, next.NextCursor)
}
