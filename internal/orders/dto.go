package orders

import (
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
	"github.com/google/uuid"
)

// Actor identifies who requested a transition.
type Actor struct {
	UserID   uuid.UUID
	VendorID *uuid.UUID
	Role     enums.ActorRole
}

// SystemActor is used by the cron jobs.
func SystemActor() Actor {
	return Actor{Role: enums.ActorRoleSystem}
}

func (a Actor) userRef() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// AdvanceStatusInput is a fulfillment update.
type AdvanceStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Actor   Actor
	Note    *string
}

// CancelInput cancels a pending or paid order.
type CancelInput struct {
	OrderID uuid.UUID
	Actor   Actor
	Reason  string
}

// ListParams filters order listings.
type ListParams struct {
	pagination.Params
	Status *enums.OrderStatus
}

// LineView is one purchased product.
type LineView struct {
	ID                     uuid.UUID  `json:"id"`
	ProductID              uuid.UUID  `json:"product_id"`
	VendorID               uuid.UUID  `json:"vendor_id"`
	ProductName            string     `json:"product_name"`
	UnitPriceCents         int64      `json:"unit_price_cents"`
	Quantity               int        `json:"quantity"`
	SubtotalCents          int64      `json:"subtotal_cents"`
	FlashSaleID            *uuid.UUID `json:"flash_sale_id,omitempty"`
	FlashSaleReservationID *uuid.UUID `json:"flash_sale_reservation_id,omitempty"`
}

// HistoryView is one entry of the status trail.
type HistoryView struct {
	Status    enums.OrderStatus `json:"status"`
	ActorID   *uuid.UUID        `json:"actor_id,omitempty"`
	ActorRole enums.ActorRole   `json:"actor_role"`
	Note      *string           `json:"note,omitempty"`
	At        time.Time         `json:"at"`
}

// OrderView is the API projection of an order. History is only filled on detail reads.
type OrderView struct {
	ID            uuid.UUID           `json:"id"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	TotalCents    int64               `json:"total_cents"`
	CancelReason  *string             `json:"cancel_reason,omitempty"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	DeliveredAt   *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Lines         []LineView          `json:"lines"`
	History       []HistoryView       `json:"history,omitempty"`
	NextStatuses  []enums.OrderStatus `json:"next_statuses"`
}

// NewOrderView projects an order and whatever lines and history were loaded.
func NewOrderView(o models.Order) OrderView {
	view := OrderView{
		ID:            o.ID,
		BuyerID:       o.BuyerID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		TotalCents:    o.TotalCents,
		CancelReason:  o.CancelReason,
		PaidAt:        o.PaidAt,
		DeliveredAt:   o.DeliveredAt,
		CancelledAt:   o.CancelledAt,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		Lines:         make([]LineView, 0, len(o.Lines)),
		NextStatuses:  NextStatuses(o.Status),
	}
	for _, line := range o.Lines {
		view.Lines = append(view.Lines, LineView{
			ID:                     line.ID,
			ProductID:              line.ProductID,
			VendorID:               line.VendorID,
			ProductName:            line.ProductName,
			UnitPriceCents:         line.UnitPriceCents,
			Quantity:               line.Quantity,
			SubtotalCents:          line.SubtotalCents,
			FlashSaleID:            line.FlashSaleID,
			FlashSaleReservationID: line.FlashSaleReservationID,
		})
	}
	for _, entry := range o.History {
		view.History = append(view.History, HistoryView{
			Status:    entry.Status,
			ActorID:   entry.ActorID,
			ActorRole: entry.ActorRole,
			Note:      entry.Note,
			At:        entry.CreatedAt,
		})
	}
	return view
}
