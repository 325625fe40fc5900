package flashsale

import (
	"context"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository owns flash_sale_allocations.sold_count. Every change to the
// counter is a single guarded UPDATE; nothing reads then writes it.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAllocation(ctx context.Context, allocation *models.FlashSaleAllocation) error
	FindAllocation(ctx context.Context, id uuid.UUID) (*models.FlashSaleAllocation, error)
	FindAllocationForProduct(ctx context.Context, flashSaleID, productID uuid.UUID) (*models.FlashSaleAllocation, error)
	FindActiveForProduct(ctx context.Context, productID uuid.UUID, at time.Time) (*models.FlashSaleAllocation, error)
	TryIncrement(ctx context.Context, allocationID uuid.UUID, qty int, at time.Time) (bool, error)
	Decrement(ctx context.Context, allocationID uuid.UUID, qty int, at time.Time) error
	CreateReservation(ctx context.Context, reservation *models.FlashSaleReservation) error
	FindReservation(ctx context.Context, id uuid.UUID) (*models.FlashSaleReservation, error)
	MarkReleased(ctx context.Context, reservationID uuid.UUID, at time.Time) (bool, error)
	AttachOrderLine(ctx context.Context, reservationID, orderLineID uuid.UUID) (bool, error)
	ListExpiredHolds(ctx context.Context, at time.Time, limit int) ([]models.FlashSaleReservation, error)
	ListActive(ctx context.Context, at time.Time) ([]models.FlashSaleAllocation, error)
	ListEnded(ctx context.Context, at time.Time, limit int) ([]models.FlashSaleAllocation, error)
	MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the allocator repository to a gorm handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateAllocation(ctx context.Context, allocation *models.FlashSaleAllocation) error {
	return r.db.WithContext(ctx).Create(allocation).Error
}

func (r *repository) FindAllocation(ctx context.Context, id uuid.UUID) (*models.FlashSaleAllocation, error) {
	var allocation models.FlashSaleAllocation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&allocation).Error; err != nil {
		return nil, err
	}
	return &allocation, nil
}

func (r *repository) FindAllocationForProduct(ctx context.Context, flashSaleID, productID uuid.UUID) (*models.FlashSaleAllocation, error) {
	var allocation models.FlashSaleAllocation
	err := r.db.WithContext(ctx).
		Where("flash_sale_id = ? AND product_id = ?", flashSaleID, productID).
		First(&allocation).Error
	if err != nil {
		return nil, err
	}
	return &allocation, nil
}

// FindActiveForProduct returns the allocation whose window contains at,
// preferring the one that started most recently.
func (r *repository) FindActiveForProduct(ctx context.Context, productID uuid.UUID, at time.Time) (*models.FlashSaleAllocation, error) {
	var allocation models.FlashSaleAllocation
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND status = ? AND start_time <= ? AND end_time >= ?", productID, enums.FlashSaleStatusActive, at, at).
		Order("start_time DESC").
		First(&allocation).Error
	if err != nil {
		return nil, err
	}
	return &allocation, nil
}

// TryIncrement adds qty to sold_count when the sale is open at at and the
// cap still has room. It reports false, leaving the row untouched, otherwise.
func (r *repository) TryIncrement(ctx context.Context, allocationID uuid.UUID, qty int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE flash_sale_allocations
		SET sold_count = sold_count + ?,
			updated_at = ?
		WHERE id = ?
			AND status = ?
			AND start_time <= ?
			AND end_time >= ?
			AND (max_quantity IS NULL OR sold_count + ? <= max_quantity)
	`, qty, at, allocationID, enums.FlashSaleStatusActive, at, at, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Decrement returns qty to the allocation, clamping sold_count at zero.
func (r *repository) Decrement(ctx context.Context, allocationID uuid.UUID, qty int, at time.Time) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE flash_sale_allocations
		SET sold_count = CASE WHEN sold_count - ? < 0 THEN 0 ELSE sold_count - ? END,
			updated_at = ?
		WHERE id = ?
	`, qty, qty, at, allocationID).Error
}

func (r *repository) CreateReservation(ctx context.Context, reservation *models.FlashSaleReservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) FindReservation(ctx context.Context, id uuid.UUID) (*models.FlashSaleReservation, error) {
	var reservation models.FlashSaleReservation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// MarkReleased stamps released_at once; a false result means it was already released.
func (r *repository) MarkReleased(ctx context.Context, reservationID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FlashSaleReservation{}).
		Where("id = ? AND released_at IS NULL", reservationID).
		Update("released_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AttachOrderLine binds an open hold to an order line and clears its expiry.
// A false result means the reservation was released or already attached.
func (r *repository) AttachOrderLine(ctx context.Context, reservationID, orderLineID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FlashSaleReservation{}).
		Where("id = ? AND order_line_id IS NULL AND released_at IS NULL", reservationID).
		Updates(map[string]any{"order_line_id": orderLineID, "expires_at": nil})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListExpiredHolds returns unattached, unreleased reservations whose hold lapsed before at.
func (r *repository) ListExpiredHolds(ctx context.Context, at time.Time, limit int) ([]models.FlashSaleReservation, error) {
	var holds []models.FlashSaleReservation
	err := r.db.WithContext(ctx).
		Where("order_line_id IS NULL AND released_at IS NULL AND expires_at IS NOT NULL AND expires_at < ?", at).
		Order("expires_at ASC").
		Limit(limit).
		Find(&holds).Error
	if err != nil {
		return nil, err
	}
	return holds, nil
}

func (r *repository) ListActive(ctx context.Context, at time.Time) ([]models.FlashSaleAllocation, error) {
	var allocations []models.FlashSaleAllocation
	err := r.db.WithContext(ctx).
		Where("status = ? AND start_time <= ? AND end_time >= ?", enums.FlashSaleStatusActive, at, at).
		Order("end_time ASC").
		Order("id ASC").
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	return allocations, nil
}

func (r *repository) ListEnded(ctx context.Context, at time.Time, limit int) ([]models.FlashSaleAllocation, error) {
	var allocations []models.FlashSaleAllocation
	err := r.db.WithContext(ctx).
		Where("status = ? AND end_time < ?", enums.FlashSaleStatusActive, at).
		Order("end_time ASC").
		Limit(limit).
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	return allocations, nil
}

func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FlashSaleAllocation{}).
		Where("id = ? AND status = ?", id, enums.FlashSaleStatusActive).
		Updates(map[string]any{"status": enums.FlashSaleStatusExpired, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
