package ledger

import (
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/google/uuid"
)

// Snapshot is the derived ledger position of one vendor. It is computed on
// every read and never cached.
type Snapshot struct {
	VendorID           uuid.UUID `json:"vendor_id"`
	PendingEarnings    int64     `json:"pending_earnings_cents"`
	AvailableBalance   int64     `json:"available_balance_cents"`
	OutstandingPayouts int64     `json:"outstanding_payouts_cents"`
	PaidAmount         int64     `json:"paid_amount_cents"`
	TotalEarned        int64     `json:"total_earned_cents"`
}

// EarningView is the vendor-facing projection of an earning.
type EarningView struct {
	ID                uuid.UUID           `json:"id"`
	OrderID           uuid.UUID           `json:"order_id"`
	OrderLineID       uuid.UUID           `json:"order_line_id"`
	OrderAmountCents  int64               `json:"order_amount_cents"`
	CommissionRate    string              `json:"commission_rate"`
	CommissionCents   int64               `json:"commission_cents"`
	VendorAmountCents int64               `json:"vendor_amount_cents"`
	Status            enums.EarningStatus `json:"status"`
	PayoutID          *uuid.UUID          `json:"payout_id,omitempty"`
	AvailableAt       *time.Time          `json:"available_at,omitempty"`
	PaidAt            *time.Time          `json:"paid_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
}

func newEarningView(e models.Earning) EarningView {
	return EarningView{
		ID:                e.ID,
		OrderID:           e.OrderID,
		OrderLineID:       e.OrderLineID,
		OrderAmountCents:  e.OrderAmountCents,
		CommissionRate:    e.CommissionRate.StringFixed(4),
		CommissionCents:   e.CommissionCents,
		VendorAmountCents: e.VendorAmountCents,
		Status:            e.Status,
		PayoutID:          e.PayoutID,
		AvailableAt:       e.AvailableAt,
		PaidAt:            e.PaidAt,
		CreatedAt:         e.CreatedAt,
	}
}

// Result summarises one ledger movement for an order.
type Result struct {
	OrderID  uuid.UUID
	Earnings []models.Earning
	Changed  int
}
