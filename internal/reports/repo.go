package reports

import (
	"context"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const listSize = 5

type totalsRow struct {
	RevenueCents int64
	Orders       int64
	UnitsSold    int64
}

type recentOrderRow struct {
	OrderID       uuid.UUID
	Status        enums.OrderStatus
	TotalCents    int64
	SubtotalCents int64
	CreatedAt     time.Time
}

type topProductRow struct {
	ProductID    uuid.UUID
	Name         string
	UnitsSold    int64
	RevenueCents int64
}

// Repository aggregates a vendor's order lines. Cancelled orders are excluded.
type Repository interface {
	Totals(ctx context.Context, vendorID uuid.UUID) (totalsRow, error)
	RecentOrders(ctx context.Context, vendorID uuid.UUID) ([]recentOrderRow, error)
	TopProducts(ctx context.Context, vendorID uuid.UUID) ([]topProductRow, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a reports repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Totals(ctx context.Context, vendorID uuid.UUID) (totalsRow, error) {
	var row totalsRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			COALESCE(SUM(ol.subtotal_cents), 0) AS revenue_cents,
			COUNT(DISTINCT ol.order_id) AS orders,
			COALESCE(SUM(ol.quantity), 0) AS units_sold
		FROM order_lines ol
		JOIN orders o ON o.id = ol.order_id
		WHERE ol.vendor_id = ? AND o.status <> ?
	`, vendorID, enums.OrderStatusCancelled).Scan(&row).Error
	return row, err
}

func (r *repository) RecentOrders(ctx context.Context, vendorID uuid.UUID) ([]recentOrderRow, error) {
	var rows []recentOrderRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			o.id AS order_id,
			o.status,
			o.total_cents,
			SUM(ol.subtotal_cents) AS subtotal_cents,
			o.created_at
		FROM orders o
		JOIN order_lines ol ON ol.order_id = o.id
		WHERE ol.vendor_id = ? AND o.status <> ?
		GROUP BY o.id, o.status, o.total_cents, o.created_at
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT ?
	`, vendorID, enums.OrderStatusCancelled, listSize).Scan(&rows).Error
	return rows, err
}

func (r *repository) TopProducts(ctx context.Context, vendorID uuid.UUID) ([]topProductRow, error) {
	var rows []topProductRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			ol.product_id,
			MAX(ol.product_name) AS name,
			SUM(ol.quantity) AS units_sold,
			SUM(ol.subtotal_cents) AS revenue_cents
		FROM order_lines ol
		JOIN orders o ON o.id = ol.order_id
		WHERE ol.vendor_id = ? AND o.status <> ?
		GROUP BY ol.product_id
		ORDER BY units_sold DESC, revenue_cents DESC
		LIMIT ?
	`, vendorID, enums.OrderStatusCancelled, listSize).Scan(&rows).Error
	return rows, err
}
