package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketcore-backend/internal/repo"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

// Repository persists vendor notifications.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error)
	// MarkRead reports whether the notification exists for the vendor. An
	// already-read row keeps its original read_at.
	MarkRead(ctx context.Context, vendorID, notificationID uuid.UUID, now time.Time) (bool, error)
	MarkAllRead(ctx context.Context, vendorID uuid.UUID, now time.Time) (int64, error)
	// PurgeRead deletes at most limit read notifications created before cutoff.
	PurgeRead(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

type listNotificationsParams struct {
	VendorID   uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

// Create drops a redelivered event for the same vendor through the
// (event_id, vendor_id) unique index.
func (r *gormRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(notification).Error
}

func (r *gormRepository) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error) {
	query := r.forVendor(ctx, params.VendorID)
	if params.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	var rows []models.Notification
	err := repo.Keyset(query, "created_at", "id", params.Cursor, params.Limit).Find(&rows).Error
	return rows, err
}

func (r *gormRepository) MarkRead(ctx context.Context, vendorID, notificationID uuid.UUID, now time.Time) (bool, error) {
	res := r.forVendor(ctx, vendorID).
		Where("id = ?", notificationID).
		UpdateColumn("read_at", gorm.Expr("COALESCE(read_at, ?)", now))
	return res.RowsAffected > 0, res.Error
}

func (r *gormRepository) MarkAllRead(ctx context.Context, vendorID uuid.UUID, now time.Time) (int64, error) {
	res := r.forVendor(ctx, vendorID).
		Where("read_at IS NULL").
		UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}

func (r *gormRepository) PurgeRead(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	batch := r.db.Model(&models.Notification{}).
		Select("id").
		Where("read_at IS NOT NULL AND created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit)
	res := r.db.WithContext(ctx).Where("id IN (?)", batch).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

func (r *gormRepository) forVendor(ctx context.Context, vendorID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("vendor_id = ?", vendorID)
}
