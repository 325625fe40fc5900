package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionRate is either the platform default or an override assigned to a
// store. Rates are deactivated, never deleted, once earnings reference them.
type CommissionRate struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name        string          `gorm:"column:name;not null"`
	Rate        decimal.Decimal `gorm:"column:rate;type:numeric(5,4);not null"`
	Description *string         `gorm:"column:description"`
	IsActive    bool            `gorm:"column:is_active;not null"`
	IsDefault   bool            `gorm:"column:is_default;not null;uniqueIndex:ux_commission_rates_single_default,where:is_default = true AND is_active = true"`
	StoreID     *uuid.UUID      `gorm:"column:store_id;type:uuid;index"`
	CreatedAt   time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *CommissionRate) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}
