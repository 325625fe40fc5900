package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// Payout is a vendor's request to withdraw available balance.
type Payout struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	VendorID        uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null;index"`
	AmountCents     int64              `gorm:"column:amount_cents;not null"`
	Status          enums.PayoutStatus `gorm:"column:status;type:text;not null"`
	PaymentMethod   string             `gorm:"column:payment_method;not null"`
	Notes           *string            `gorm:"column:notes"`
	TransactionID   *string            `gorm:"column:transaction_id"`
	RejectionReason *string            `gorm:"column:rejection_reason"`
	ProcessedBy     *uuid.UUID         `gorm:"column:processed_by;type:uuid"`
	ProcessedAt     *time.Time         `gorm:"column:processed_at"`
	RequestedAt     time.Time          `gorm:"column:requested_at;not null"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payout) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	if p.RequestedAt.IsZero() {
		p.RequestedAt = time.Now().UTC()
	}
	return nil
}
