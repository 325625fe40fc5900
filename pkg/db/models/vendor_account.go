package models

import (
	"time"

	"github.com/google/uuid"
)

// VendorAccount is the per-vendor row locked while balance-affecting writes run.
type VendorAccount struct {
	VendorID  uuid.UUID `gorm:"column:vendor_id;type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
