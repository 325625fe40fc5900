package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// FlashSaleAllocation bounds how many units of a product sell at the sale price.
// SoldCount is only changed by the allocator's guarded updates.
type FlashSaleAllocation struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	FlashSaleID     uuid.UUID             `gorm:"column:flash_sale_id;type:uuid;not null;uniqueIndex:ux_flash_sale_product,priority:1"`
	ProductID       uuid.UUID             `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_flash_sale_product,priority:2"`
	SalePriceCents  int64                 `gorm:"column:sale_price_cents;not null"`
	DiscountPercent int                   `gorm:"column:discount_percent;not null"`
	MaxQuantity     *int                  `gorm:"column:max_quantity"`
	SoldCount       int                   `gorm:"column:sold_count;not null"`
	Status          enums.FlashSaleStatus `gorm:"column:status;type:text;not null"`
	StartTime       time.Time             `gorm:"column:start_time;not null"`
	EndTime         time.Time             `gorm:"column:end_time;not null"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *FlashSaleAllocation) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	if a.Status == "" {
		a.Status = enums.FlashSaleStatusActive
	}
	return nil
}

// Remaining returns the unsold quantity, or nil when the allocation is unlimited.
func (a FlashSaleAllocation) Remaining() *int {
	if a.MaxQuantity == nil {
		return nil
	}
	remaining := *a.MaxQuantity - a.SoldCount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// FlashSaleReservation records one successful reserve so release is applied at most once.
// An unattached reservation is a hold that lapses at ExpiresAt; attaching an
// order line clears ExpiresAt and from then on only cancellation releases it.
type FlashSaleReservation struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	AllocationID uuid.UUID  `gorm:"column:allocation_id;type:uuid;not null;index"`
	BuyerID      *uuid.UUID `gorm:"column:buyer_id;type:uuid"`
	Quantity     int        `gorm:"column:quantity;not null"`
	OrderLineID  *uuid.UUID `gorm:"column:order_line_id;type:uuid"`
	ExpiresAt    *time.Time `gorm:"column:expires_at"`
	ReleasedAt   *time.Time `gorm:"column:released_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// Attached reports whether the reservation backs an order line.
func (r FlashSaleReservation) Attached() bool {
	return r.OrderLineID != nil
}

func (r *FlashSaleReservation) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
