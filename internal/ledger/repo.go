package ledger

import (
	"context"
	"time"

	"github.com/angelmondragon/marketcore-backend/internal/repo"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for earnings and the per-vendor lock row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureVendorAccount(ctx context.Context, vendorID uuid.UUID) error
	LockVendor(ctx context.Context, vendorID uuid.UUID) error
	InsertEarning(ctx context.Context, earning *models.Earning) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Earning, error)
	UpdateStatus(ctx context.Context, ids []uuid.UUID, from enums.EarningStatus, updates map[string]any) (int64, error)
	EarningTotals(ctx context.Context, vendorID uuid.UUID) (earningTotals, error)
	PayoutTotals(ctx context.Context, vendorID uuid.UUID) (payoutTotals, error)
	ListAvailableOldestFirst(ctx context.Context, vendorID uuid.UUID) ([]models.Earning, error)
	List(ctx context.Context, vendorID uuid.UUID, status *enums.EarningStatus, cursor *pagination.Cursor, limit int) ([]models.Earning, error)
}

type earningTotals struct {
	Pending int64
	Matured int64
	Paid    int64
}

type payoutTotals struct {
	Outstanding int64
	Completed   int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) EnsureVendorAccount(ctx context.Context, vendorID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.VendorAccount{VendorID: vendorID}).Error
}

// LockVendor takes the row lock that serializes balance-reducing writes for one vendor.
func (r *repository) LockVendor(ctx context.Context, vendorID uuid.UUID) error {
	var account models.VendorAccount
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("vendor_id = ?", vendorID).
		First(&account).Error
}

// InsertEarning creates the earning unless one already exists for its
// (order line, vendor) pair. It reports whether a row was written.
func (r *repository) InsertEarning(ctx context.Context, earning *models.Earning) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_line_id"}, {Name: "vendor_id"}},
			DoNothing: true,
		}).
		Create(earning)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Earning, error) {
	var earnings []models.Earning
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&earnings).Error
	if err != nil {
		return nil, err
	}
	return earnings, nil
}

// UpdateStatus moves the given earnings out of from; rows in any other status are left alone.
func (r *repository) UpdateStatus(ctx context.Context, ids []uuid.UUID, from enums.EarningStatus, updates map[string]any) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Earning{}).
		Where("id IN ? AND status = ?", ids, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) EarningTotals(ctx context.Context, vendorID uuid.UUID) (earningTotals, error) {
	var totals earningTotals
	err := r.db.WithContext(ctx).
		Model(&models.Earning{}).
		Select(`
			COALESCE(SUM(CASE WHEN status = ? THEN vendor_amount_cents ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN status IN (?, ?) THEN vendor_amount_cents ELSE 0 END), 0) AS matured,
			COALESCE(SUM(CASE WHEN status = ? THEN vendor_amount_cents ELSE 0 END), 0) AS paid`,
			enums.EarningStatusPending,
			enums.EarningStatusAvailable, enums.EarningStatusPaid,
			enums.EarningStatusPaid,
		).
		Where("vendor_id = ?", vendorID).
		Scan(&totals).Error
	return totals, err
}

func (r *repository) PayoutTotals(ctx context.Context, vendorID uuid.UUID) (payoutTotals, error) {
	var totals payoutTotals
	err := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Select(`
			COALESCE(SUM(CASE WHEN status IN (?, ?) THEN amount_cents ELSE 0 END), 0) AS outstanding,
			COALESCE(SUM(CASE WHEN status = ? THEN amount_cents ELSE 0 END), 0) AS completed`,
			enums.PayoutStatusPending, enums.PayoutStatusProcessing,
			enums.PayoutStatusCompleted,
		).
		Where("vendor_id = ?", vendorID).
		Scan(&totals).Error
	return totals, err
}

func (r *repository) ListAvailableOldestFirst(ctx context.Context, vendorID uuid.UUID) ([]models.Earning, error) {
	var earnings []models.Earning
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND status = ?", vendorID, enums.EarningStatusAvailable).
		Order("available_at ASC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&earnings).Error
	if err != nil {
		return nil, err
	}
	return earnings, nil
}

func (r *repository) List(ctx context.Context, vendorID uuid.UUID, status *enums.EarningStatus, cursor *pagination.Cursor, limit int) ([]models.Earning, error) {
	query := r.db.WithContext(ctx).Model(&models.Earning{}).Where("vendor_id = ?", vendorID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var earnings []models.Earning
	if err := repo.Keyset(query, "created_at", "id", cursor, limit).Find(&earnings).Error; err != nil {
		return nil, err
	}
	return earnings, nil
}

func statusUpdate(status enums.EarningStatus, column string, at time.Time) map[string]any {
	updates := map[string]any{"status": status, "updated_at": at}
	if column != "" {
		updates[column] = at
	}
	return updates
}
