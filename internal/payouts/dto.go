package payouts

import (
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/google/uuid"
)

// PayoutView is the API projection of a payout.
type PayoutView struct {
	ID              uuid.UUID          `json:"id"`
	VendorID        uuid.UUID          `json:"vendor_id"`
	AmountCents     int64              `json:"amount_cents"`
	Status          enums.PayoutStatus `json:"status"`
	PaymentMethod   string             `json:"payment_method"`
	Notes           *string            `json:"notes,omitempty"`
	TransactionID   *string            `json:"transaction_id,omitempty"`
	RejectionReason *string            `json:"rejection_reason,omitempty"`
	ProcessedBy     *uuid.UUID         `json:"processed_by,omitempty"`
	ProcessedAt     *time.Time         `json:"processed_at,omitempty"`
	RequestedAt     time.Time          `json:"requested_at"`
}

func newPayoutView(p models.Payout) PayoutView {
	return PayoutView{
		ID:              p.ID,
		VendorID:        p.VendorID,
		AmountCents:     p.AmountCents,
		Status:          p.Status,
		PaymentMethod:   p.PaymentMethod,
		Notes:           p.Notes,
		TransactionID:   p.TransactionID,
		RejectionReason: p.RejectionReason,
		ProcessedBy:     p.ProcessedBy,
		ProcessedAt:     p.ProcessedAt,
		RequestedAt:     p.RequestedAt,
	}
}

// RequestPayoutInput is a vendor's withdrawal request.
type RequestPayoutInput struct {
	VendorID      uuid.UUID
	ActorID       uuid.UUID
	AmountCents   int64
	PaymentMethod string
	Notes         *string
}

// ProcessPayoutInput is an admin's resolution of a payout.
type ProcessPayoutInput struct {
	PayoutID        uuid.UUID
	Decision        enums.PayoutDecision
	ProcessedBy     uuid.UUID
	TransactionID   string
	RejectionReason string
}
