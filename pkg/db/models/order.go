package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// Order is a buyer purchase spanning one or more vendors.
type Order struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID       uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null;index"`
	Status        enums.OrderStatus    `gorm:"column:status;type:text;not null"`
	PaymentStatus enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null"`
	TotalCents    int64                `gorm:"column:total_cents;not null"`
	Version       int                  `gorm:"column:version;not null"`
	CancelReason  *string              `gorm:"column:cancel_reason"`
	PaidAt        *time.Time           `gorm:"column:paid_at"`
	DeliveredAt   *time.Time           `gorm:"column:delivered_at"`
	CancelledAt   *time.Time           `gorm:"column:cancelled_at"`
	Lines         []OrderLine          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	History       []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderLine captures the price at purchase for one product of one vendor.
type OrderLine struct {
	ID                     uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID                uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID              uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VendorID               uuid.UUID  `gorm:"column:vendor_id;type:uuid;not null;index"`
	ProductName            string     `gorm:"column:product_name;not null"`
	UnitPriceCents         int64      `gorm:"column:unit_price_cents;not null"`
	Quantity               int        `gorm:"column:quantity;not null"`
	SubtotalCents          int64      `gorm:"column:subtotal_cents;not null"`
	FlashSaleID            *uuid.UUID `gorm:"column:flash_sale_id;type:uuid"`
	FlashSaleReservationID *uuid.UUID `gorm:"column:flash_sale_reservation_id;type:uuid"`
	CreatedAt              time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// OrderStatusHistory is append-only; rows are never updated.
type OrderStatusHistory struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	Status    enums.OrderStatus `gorm:"column:status;type:text;not null"`
	ActorID   *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	ActorRole enums.ActorRole   `gorm:"column:actor_role;type:text;not null"`
	Note      *string           `gorm:"column:note"`
	CreatedAt time.Time         `gorm:"column:created_at;not null"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	return nil
}
