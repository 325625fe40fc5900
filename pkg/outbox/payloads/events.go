package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// OrderLineRef is the per-line projection carried by order events.
type OrderLineRef struct {
	OrderLineID   uuid.UUID  `json:"order_line_id"`
	ProductID     uuid.UUID  `json:"product_id"`
	VendorID      uuid.UUID  `json:"vendor_id"`
	Quantity      int        `json:"quantity"`
	SubtotalCents int64      `json:"subtotal_cents"`
	FlashSaleID   *uuid.UUID `json:"flash_sale_id,omitempty"`
}

// OrderCreatedEvent is emitted once checkout persisted a pending order.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID      `json:"order_id"`
	BuyerID    uuid.UUID      `json:"buyer_id"`
	TotalCents int64          `json:"total_cents"`
	Lines      []OrderLineRef `json:"lines"`
}

// OrderStatusChangedEvent accompanies every accepted transition.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	VendorIDs []uuid.UUID       `json:"vendor_ids"`
	Note      string            `json:"note,omitempty"`
	ChangedAt time.Time         `json:"changed_at"`
}

// OrderPaidEvent is emitted when payment confirmation moves an order to paid.
type OrderPaidEvent struct {
	OrderID    uuid.UUID      `json:"order_id"`
	BuyerID    uuid.UUID      `json:"buyer_id"`
	TotalCents int64          `json:"total_cents"`
	Lines      []OrderLineRef `json:"lines"`
	PaidAt     time.Time      `json:"paid_at"`
}

// OrderDeliveredEvent marks the moment earnings mature.
type OrderDeliveredEvent struct {
	OrderID     uuid.UUID   `json:"order_id"`
	VendorIDs   []uuid.UUID `json:"vendor_ids"`
	DeliveredAt time.Time   `json:"delivered_at"`
}

// OrderCancelledEvent carries the lines whose flash-sale quantity was released.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	From        enums.OrderStatus `json:"from"`
	VendorIDs   []uuid.UUID       `json:"vendor_ids"`
	Reason      string            `json:"reason,omitempty"`
	CancelledAt time.Time         `json:"cancelled_at"`
}

// EarningsEvent reports a ledger movement for one order.
type EarningsEvent struct {
	OrderID    uuid.UUID           `json:"order_id"`
	Status     enums.EarningStatus `json:"status"`
	EarningIDs []uuid.UUID         `json:"earning_ids"`
	VendorIDs  []uuid.UUID         `json:"vendor_ids"`
	TotalCents int64               `json:"total_vendor_cents"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// PayoutRequestedEvent is emitted once balance was reserved for a payout.
type PayoutRequestedEvent struct {
	PayoutID    uuid.UUID `json:"payout_id"`
	VendorID    uuid.UUID `json:"vendor_id"`
	AmountCents int64     `json:"amount_cents"`
	RequestedAt time.Time `json:"requested_at"`
}

// PayoutDecidedEvent carries the admin resolution; the rejection reason is shown to the vendor verbatim.
type PayoutDecidedEvent struct {
	PayoutID        uuid.UUID          `json:"payout_id"`
	VendorID        uuid.UUID          `json:"vendor_id"`
	AmountCents     int64              `json:"amount_cents"`
	Status          enums.PayoutStatus `json:"status"`
	TransactionID   string             `json:"transaction_id,omitempty"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
	ProcessedBy     uuid.UUID          `json:"processed_by"`
	ProcessedAt     time.Time          `json:"processed_at"`
}

// FlashSaleReleasedEvent reports quantity returned to an allocation.
type FlashSaleReleasedEvent struct {
	AllocationID  uuid.UUID  `json:"allocation_id"`
	FlashSaleID   uuid.UUID  `json:"flash_sale_id"`
	ProductID     uuid.UUID  `json:"product_id"`
	ReservationID uuid.UUID  `json:"reservation_id"`
	Quantity      int        `json:"quantity"`
	OrderLineID   *uuid.UUID `json:"order_line_id,omitempty"`
}

// FlashSaleExpiredEvent is emitted by the sweep for each allocation past its window.
type FlashSaleExpiredEvent struct {
	AllocationID uuid.UUID `json:"allocation_id"`
	FlashSaleID  uuid.UUID `json:"flash_sale_id"`
	ProductID    uuid.UUID `json:"product_id"`
	SoldCount    int       `json:"sold_count"`
	EndTime      time.Time `json:"end_time"`
}

// CommissionRateChangedEvent records admin changes to the rate table.
type CommissionRateChangedEvent struct {
	RateID    uuid.UUID  `json:"rate_id"`
	Rate      string     `json:"rate"`
	IsDefault bool       `json:"is_default"`
	IsActive  bool       `json:"is_active"`
	StoreID   *uuid.UUID `json:"store_id,omitempty"`
}
