package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// Earning is a vendor's share of one order line. Commission fields are
// captured at settlement and never rewritten.
type Earning struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	OrderLineID       uuid.UUID           `gorm:"column:order_line_id;type:uuid;not null;uniqueIndex:ux_earnings_line_vendor,priority:1"`
	VendorID          uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:ux_earnings_line_vendor,priority:2;index"`
	OrderAmountCents  int64               `gorm:"column:order_amount_cents;not null"`
	CommissionRate    decimal.Decimal     `gorm:"column:commission_rate;type:numeric(5,4);not null"`
	CommissionRateID  *uuid.UUID          `gorm:"column:commission_rate_id;type:uuid"`
	CommissionCents   int64               `gorm:"column:commission_cents;not null"`
	VendorAmountCents int64               `gorm:"column:vendor_amount_cents;not null"`
	Status            enums.EarningStatus `gorm:"column:status;type:text;not null"`
	PayoutID          *uuid.UUID          `gorm:"column:payout_id;type:uuid"`
	AvailableAt       *time.Time          `gorm:"column:available_at"`
	PaidAt            *time.Time          `gorm:"column:paid_at"`
	ReversedAt        *time.Time          `gorm:"column:reversed_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *Earning) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
