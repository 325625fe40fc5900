package commission

import (
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/google/uuid"
)

// RateView is the admin-facing projection of a commission rate.
type RateView struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Rate        string     `json:"rate"`
	Description *string    `json:"description,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsDefault   bool       `json:"is_default"`
	StoreID     *uuid.UUID `json:"store_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewRateView maps a persisted rate to its API shape.
func NewRateView(rate models.CommissionRate) RateView {
	return RateView{
		ID:          rate.ID,
		Name:        rate.Name,
		Rate:        rate.Rate.StringFixed(4),
		Description: rate.Description,
		IsActive:    rate.IsActive,
		IsDefault:   rate.IsDefault,
		StoreID:     rate.StoreID,
		CreatedAt:   rate.CreatedAt,
	}
}
