package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/api/middleware"
	"github.com/angelmondragon/marketcore-backend/internal/flashsale"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

type stubFlashSales struct {
	reserve func(ctx context.Context, input flashsale.ReserveInput) (*flashsale.Reservation, error)
	release func(ctx context.Context, input flashsale.ReleaseHoldInput) (*flashsale.ReleaseResult, error)
	create  func(ctx context.Context, input flashsale.CreateAllocationInput) (*flashsale.AllocationView, error)
}

func (s *stubFlashSales) Reserve(ctx context.Context, tx *gorm.DB, input flashsale.ReserveInput) (*flashsale.Reservation, error) {
	return s.reserve(ctx, input)
}

func (s *stubFlashSales) Release(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) (*flashsale.ReleaseResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "internal release is not reachable from handlers")
}

func (s *stubFlashSales) ReleaseHold(ctx context.Context, input flashsale.ReleaseHoldInput) (*flashsale.ReleaseResult, error) {
	return s.release(ctx, input)
}

func (s *stubFlashSales) AttachOrderLine(ctx context.Context, tx *gorm.DB, reservationID, orderLineID uuid.UUID) error {
	return nil
}

func (s *stubFlashSales) CreateAllocation(ctx context.Context, input flashsale.CreateAllocationInput) (*flashsale.AllocationView, error) {
	return s.create(ctx, input)
}

func (s *stubFlashSales) ListActive(ctx context.Context, at time.Time) ([]flashsale.AllocationView, error) {
	return []flashsale.AllocationView{}, nil
}

func (s *stubFlashSales) ExpireEnded(ctx context.Context, at time.Time) (int, error) {
	return 0, nil
}

func (s *stubFlashSales) ReleaseExpiredHolds(ctx context.Context, at time.Time) (int, error) {
	return 0, nil
}

func asBuyer(req *http.Request, buyerID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithPrincipal(req.Context(), middleware.Principal{
		UserID: buyerID.String(),
		Role:   string(enums.ActorRoleBuyer),
	}))
}

func TestReserveFlashSaleSoldOut(t *testing.T) {
	svc := &stubFlashSales{reserve: func(ctx context.Context, input flashsale.ReserveInput) (*flashsale.Reservation, error) {
		if input.Quantity != 1 {
			t.Fatalf("unexpected quantity %d", input.Quantity)
		}
		return nil, pkgerrors.New(pkgerrors.CodeSoldOut, "flash sale sold out")
	}}

	body := `{"product_id":"` + uuid.NewString() + `","quantity":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/flash-sales/reserve", strings.NewReader(body))
	resp := httptest.NewRecorder()
	ReserveFlashSale(svc, discardLogger())(resp, asBuyer(req, uuid.New()))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestReleaseFlashSaleReportsAlreadyReleased(t *testing.T) {
	reservationID := uuid.New()
	buyerID := uuid.New()
	svc := &stubFlashSales{release: func(ctx context.Context, input flashsale.ReleaseHoldInput) (*flashsale.ReleaseResult, error) {
		if input.ReservationID != reservationID {
			t.Fatalf("unexpected reservation %s", input.ReservationID)
		}
		if input.ActorID != buyerID || input.ActorRole != enums.ActorRoleBuyer {
			t.Fatalf("unexpected caller %s/%s", input.ActorID, input.ActorRole)
		}
		return &flashsale.ReleaseResult{ReservationID: input.ReservationID, Quantity: 2, AlreadyReleased: true}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/flash-sales/release", strings.NewReader(`{"reservation_id":"`+reservationID.String()+`"}`))
	resp := httptest.NewRecorder()
	ReleaseFlashSale(svc, discardLogger())(resp, asBuyer(req, buyerID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data flashsale.ReleaseResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data.AlreadyReleased {
		t.Fatal("expected already_released")
	}
}

func TestCreateAllocationRejectsInvertedWindow(t *testing.T) {
	svc := &stubFlashSales{create: func(ctx context.Context, input flashsale.CreateAllocationInput) (*flashsale.AllocationView, error) {
		t.Fatal("service should not be called")
		return nil, nil
	}}

	body := `{"flash_sale_id":"` + uuid.NewString() + `","product_id":"` + uuid.NewString() + `","sale_price_cents":500,"discount_percent":10,"start_time":"2026-05-02T00:00:00Z","end_time":"2026-05-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/flash-sales", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreateFlashSaleAllocation(svc, discardLogger())(resp, asAdmin(req, uuid.New()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestReleaseFlashSaleRefusesAttachedReservation(t *testing.T) {
	svc := &stubFlashSales{release: func(ctx context.Context, input flashsale.ReleaseHoldInput) (*flashsale.ReleaseResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "reservation backs an order; cancel the order to release it")
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/flash-sales/release", strings.NewReader(`{"reservation_id":"`+uuid.NewString()+`"}`))
	resp := httptest.NewRecorder()
	ReleaseFlashSale(svc, discardLogger())(resp, asBuyer(req, uuid.New()))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}
