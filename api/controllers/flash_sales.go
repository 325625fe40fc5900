package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/marketcore-backend/api/middleware"
	"github.com/angelmondragon/marketcore-backend/api/responses"
	"github.com/angelmondragon/marketcore-backend/api/validators"
	"github.com/angelmondragon/marketcore-backend/internal/flashsale"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

type reserveRequest struct {
	FlashSaleID *uuid.UUID `json:"flash_sale_id,omitempty"`
	ProductID   uuid.UUID  `json:"product_id" validate:"required"`
	Quantity    int        `json:"quantity" validate:"required,min=1"`
}

type releaseRequest struct {
	ReservationID uuid.UUID `json:"reservation_id" validate:"required"`
}

type createAllocationRequest struct {
	FlashSaleID     uuid.UUID `json:"flash_sale_id" validate:"required"`
	ProductID       uuid.UUID `json:"product_id" validate:"required"`
	SalePriceCents  int64     `json:"sale_price_cents" validate:"gt=0"`
	DiscountPercent int       `json:"discount_percent" validate:"min=0,max=100"`
	MaxQuantity     *int      `json:"max_quantity,omitempty" validate:"omitempty,min=0"`
	StartTime       time.Time `json:"start_time" validate:"required"`
	EndTime         time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

// ActiveFlashSales lists allocations whose window contains now. Remaining
// counts are informational and may lag concurrent reservations.
func ActiveFlashSales(svc flashsale.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "flash sale service unavailable"))
			return
		}

		views, err := svc.ListActive(r.Context(), time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views)
	}
}

// ReserveFlashSale places a hold on quantity from an active allocation. The
// hold lapses unless checkout attaches it to an order line first.
func ReserveFlashSale(svc flashsale.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "flash sale service unavailable"))
			return
		}

		buyerID, err := actorcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reserveRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reservation, err := svc.Reserve(r.Context(), nil, flashsale.ReserveInput{
			FlashSaleID: payload.FlashSaleID,
			ProductID:   payload.ProductID,
			BuyerID:     buyerID,
			Quantity:    payload.Quantity,
			At:          time.Now().UTC(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, reservation)
	}
}

// ReleaseFlashSale returns the caller's own unattached hold. Repeated calls
// with the same reservation report already_released and change nothing.
func ReleaseFlashSale(svc flashsale.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "flash sale service unavailable"))
			return
		}

		callerID, err := actorcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload releaseRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ReleaseHold(r.Context(), flashsale.ReleaseHoldInput{
			ReservationID: payload.ReservationID,
			ActorID:       callerID,
			ActorRole:     enums.ActorRole(middleware.RoleFromContext(r.Context())),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CreateFlashSaleAllocation schedules a product into a flash sale.
func CreateFlashSaleAllocation(svc flashsale.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "flash sale service unavailable"))
			return
		}

		adminID, err := actorcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createAllocationRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.CreateAllocation(r.Context(), flashsale.CreateAllocationInput{
			FlashSaleID:     payload.FlashSaleID,
			ProductID:       payload.ProductID,
			SalePriceCents:  payload.SalePriceCents,
			DiscountPercent: payload.DiscountPercent,
			MaxQuantity:     payload.MaxQuantity,
			StartTime:       payload.StartTime.UTC(),
			EndTime:         payload.EndTime.UTC(),
			ActorID:         adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}
