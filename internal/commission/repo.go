package commission

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/marketcore-backend/internal/repo"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists commission rates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, rate *models.CommissionRate) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionRate, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CommissionRate, error)
	FindStoreOverride(ctx context.Context, storeID uuid.UUID, at time.Time) (*models.CommissionRate, error)
	FindActiveDefault(ctx context.Context) (*models.CommissionRate, error)
	ClearDefault(ctx context.Context, exceptID uuid.UUID) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, cursor *pagination.Cursor, limit int, includeInactive bool) ([]models.CommissionRate, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the commission repository to a gorm handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, rate *models.CommissionRate) error {
	return r.db.WithContext(ctx).Create(rate).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionRate, error) {
	var rate models.CommissionRate
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rate).Error; err != nil {
		return nil, err
	}
	return &rate, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CommissionRate, error) {
	var rate models.CommissionRate
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&rate).Error
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// FindStoreOverride returns the newest active override created at or before at, or nil.
func (r *repository) FindStoreOverride(ctx context.Context, storeID uuid.UUID, at time.Time) (*models.CommissionRate, error) {
	var rate models.CommissionRate
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND is_active = ? AND is_default = ? AND created_at <= ?", storeID, true, false, at).
		Order("created_at DESC").
		First(&rate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// FindActiveDefault returns the single active default rate, or nil.
func (r *repository) FindActiveDefault(ctx context.Context) (*models.CommissionRate, error) {
	var rate models.CommissionRate
	err := r.db.WithContext(ctx).
		Where("is_default = ? AND is_active = ?", true, true).
		First(&rate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// ClearDefault drops the default flag from every rate other than exceptID.
func (r *repository) ClearDefault(ctx context.Context, exceptID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.CommissionRate{}).
		Where("is_default = ? AND id <> ?", true, exceptID).
		Updates(map[string]any{"is_default": false, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.CommissionRate{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, cursor *pagination.Cursor, limit int, includeInactive bool) ([]models.CommissionRate, error) {
	query := r.db.WithContext(ctx).Model(&models.CommissionRate{})
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	var rates []models.CommissionRate
	if err := repo.Keyset(query, "created_at", "id", cursor, limit).Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}
