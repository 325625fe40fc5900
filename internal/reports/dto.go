package reports

import (
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/google/uuid"
)

// SalesReport summarizes what a vendor sold.
type SalesReport struct {
	VendorID          uuid.UUID     `json:"vendor_id"`
	TotalRevenueCents int64         `json:"total_revenue_cents"`
	TotalOrders       int64         `json:"total_orders"`
	TotalProductsSold int64         `json:"total_products_sold"`
	RecentOrders      []RecentOrder `json:"recent_orders"`
	TopProducts       []TopProduct  `json:"top_products"`
}

// RecentOrder is one of the vendor's latest orders. VendorSubtotalCents only
// counts the vendor's own lines.
type RecentOrder struct {
	OrderID             uuid.UUID         `json:"order_id"`
	Status              enums.OrderStatus `json:"status"`
	OrderTotalCents     int64             `json:"order_total_cents"`
	VendorSubtotalCents int64             `json:"vendor_subtotal_cents"`
	CreatedAt           time.Time         `json:"created_at"`
}

// TopProduct ranks products by units sold.
type TopProduct struct {
	ProductID    uuid.UUID `json:"product_id"`
	Name         string    `json:"name"`
	UnitsSold    int64     `json:"units_sold"`
	RevenueCents int64     `json:"revenue_cents"`
}
