package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/marketcore-backend/api/responses"
	"github.com/angelmondragon/marketcore-backend/api/validators"
	"github.com/angelmondragon/marketcore-backend/internal/commission"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

// Rate accepts a JSON number or string. The service repeats the range check
// with exact decimal arithmetic.
type createCommissionRateRequest struct {
	Name        string          `json:"name" validate:"required,notblank,max=120"`
	Rate        decimal.Decimal `json:"rate" validate:"dgt=0,dlte=1"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=500"`
	StoreID     *uuid.UUID      `json:"store_id,omitempty" validate:"excluded_if=IsDefault true"`
	IsDefault   bool            `json:"is_default"`
}

// CreateCommissionRate adds a rate, either store-specific or as the new default.
func CreateCommissionRate(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission service unavailable"))
			return
		}

		adminID, err := actorcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createCommissionRateRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := commission.CreateRateInput{
			Name:      validators.SanitizeString(payload.Name, 120),
			Rate:      payload.Rate,
			StoreID:   payload.StoreID,
			IsDefault: payload.IsDefault,
			ActorID:   adminID,
		}
		if payload.Description != nil {
			if desc := validators.SanitizeString(*payload.Description, 500); desc != "" {
				input.Description = &desc
			}
		}

		rate, err := svc.CreateRate(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, commission.NewRateView(*rate))
	}
}

// ListCommissionRates pages through rates; inactive ones only with includeInactive=true.
func ListCommissionRates(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission service unavailable"))
			return
		}

		page, err := actorcontext.PageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		includeInactive, err := validators.ParseQueryBool(r, "includeInactive", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := commission.ListParams{Params: page, IncludeInactive: includeInactive}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SetDefaultCommissionRate makes the rate the marketplace default.
func SetDefaultCommissionRate(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return rateAction(svc, logg, func(r *http.Request, rateID, adminID uuid.UUID) (*models.CommissionRate, error) {
		return svc.SetDefault(r.Context(), rateID, adminID)
	})
}

// DeactivateCommissionRate retires a rate; resolution falls through to the next candidate.
func DeactivateCommissionRate(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return rateAction(svc, logg, func(r *http.Request, rateID, adminID uuid.UUID) (*models.CommissionRate, error) {
		return svc.Deactivate(r.Context(), rateID, adminID)
	})
}

func rateAction(svc commission.Service, logg *logger.Logger, apply func(r *http.Request, rateID, adminID uuid.UUID) (*models.CommissionRate, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission service unavailable"))
			return
		}

		adminID, err := actorcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rateID, err := actorcontext.PathUUID(r, "rateId", "rate id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rate, err := apply(r, rateID, adminID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, commission.NewRateView(*rate))
	}
}
