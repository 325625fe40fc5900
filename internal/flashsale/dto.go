package flashsale

import (
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/google/uuid"
)

// ReserveInput requests qty units of a product at the sale price. When
// FlashSaleID is nil the allocation active for the product at At is used.
type ReserveInput struct {
	FlashSaleID *uuid.UUID
	ProductID   uuid.UUID
	BuyerID     uuid.UUID
	Quantity    int
	At          time.Time
}

// Reservation is a successful reserve. Its ID is what release takes.
type Reservation struct {
	ID             uuid.UUID `json:"reservation_id"`
	AllocationID   uuid.UUID `json:"allocation_id"`
	FlashSaleID    uuid.UUID `json:"flash_sale_id"`
	ProductID      uuid.UUID `json:"product_id"`
	Quantity       int       `json:"quantity"`
	SalePriceCents int64     `json:"sale_price_cents"`
	Remaining      *int      `json:"remaining,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// ReleaseHoldInput is a caller-initiated release. Buyers may only release
// their own unattached holds; admins may release any unattached hold.
type ReleaseHoldInput struct {
	ReservationID uuid.UUID
	ActorID       uuid.UUID
	ActorRole     enums.ActorRole
}

// ReleaseResult reports what a release call did.
type ReleaseResult struct {
	ReservationID   uuid.UUID `json:"reservation_id"`
	Quantity        int       `json:"quantity"`
	AlreadyReleased bool      `json:"already_released"`
}

// CreateAllocationInput describes a product's slot in a flash sale.
type CreateAllocationInput struct {
	FlashSaleID     uuid.UUID
	ProductID       uuid.UUID
	SalePriceCents  int64
	DiscountPercent int
	MaxQuantity     *int
	StartTime       time.Time
	EndTime         time.Time
	ActorID         uuid.UUID
}

// AllocationView is a display projection. Remaining is read without locks and
// may lag concurrent reservations; it never gates a reserve.
type AllocationView struct {
	ID              uuid.UUID             `json:"id"`
	FlashSaleID     uuid.UUID             `json:"flash_sale_id"`
	ProductID       uuid.UUID             `json:"product_id"`
	SalePriceCents  int64                 `json:"sale_price_cents"`
	DiscountPercent int                   `json:"discount_percent"`
	MaxQuantity     *int                  `json:"max_quantity,omitempty"`
	SoldCount       int                   `json:"sold_count"`
	Remaining       *int                  `json:"remaining,omitempty"`
	ProgressPercent *int                  `json:"progress_percent,omitempty"`
	Status          enums.FlashSaleStatus `json:"status"`
	StartTime       time.Time             `json:"start_time"`
	EndTime         time.Time             `json:"end_time"`
}

func newAllocationView(a models.FlashSaleAllocation) AllocationView {
	view := AllocationView{
		ID:              a.ID,
		FlashSaleID:     a.FlashSaleID,
		ProductID:       a.ProductID,
		SalePriceCents:  a.SalePriceCents,
		DiscountPercent: a.DiscountPercent,
		MaxQuantity:     a.MaxQuantity,
		SoldCount:       a.SoldCount,
		Remaining:       a.Remaining(),
		Status:          a.Status,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
	}
	if a.MaxQuantity != nil && *a.MaxQuantity > 0 {
		progress := a.SoldCount * 100 / *a.MaxQuantity
		if progress > 100 {
			progress = 100
		}
		view.ProgressPercent = &progress
	}
	return view
}
