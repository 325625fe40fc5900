package commission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Source names the tier a resolution came from.
type Source string

const (
	SourceStoreOverride Source = "store_override"
	SourceDefault       Source = "default"
	SourceFloor         Source = "floor"
)

// Resolution is the rate that applies to a store at a point in time.
// RateID is nil when the floor rate was used.
type Resolution struct {
	Rate   decimal.Decimal
	RateID *uuid.UUID
	Source Source
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type fallbackRecorder interface {
	IncCommissionFallback()
}

// Service resolves and administers commission rates.
type Service interface {
	Resolve(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, at time.Time) (Resolution, error)
	CreateRate(ctx context.Context, input CreateRateInput) (*models.CommissionRate, error)
	SetDefault(ctx context.Context, rateID, actorID uuid.UUID) (*models.CommissionRate, error)
	Deactivate(ctx context.Context, rateID, actorID uuid.UUID) (*models.CommissionRate, error)
	List(ctx context.Context, params ListParams) (*pagination.Page[RateView], error)
}

// CreateRateInput describes a new rate. StoreID and IsDefault are mutually exclusive.
type CreateRateInput struct {
	Name        string
	Rate        decimal.Decimal
	Description *string
	StoreID     *uuid.UUID
	IsDefault   bool
	ActorID     uuid.UUID
}

// ListParams pages through rates newest first.
type ListParams struct {
	pagination.Params
	IncludeInactive bool
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	floor   decimal.Decimal
	logg    *logger.Logger
	metrics fallbackRecorder
}

// NewService wires the commission service. floor is the platform rate used
// when neither a store override nor an active default exists.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, floor decimal.Decimal, logg *logger.Logger, metrics fallbackRecorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("commission repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if err := ValidateRate(floor); err != nil {
		return nil, fmt.Errorf("floor rate: %w", err)
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outbox,
		floor:   floor,
		logg:    logg,
		metrics: metrics,
	}, nil
}

// ValidateRate enforces 0 < rate <= 1.
func ValidateRate(rate decimal.Decimal) error {
	if !rate.IsPositive() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be greater than 0 and at most 1")
	}
	return nil
}

// Split divides an order amount into commission and vendor share. The
// commission is rounded half-up to a whole minor unit and the vendor share
// takes the remainder so both parts always sum to amountCents.
func Split(amountCents int64, rate decimal.Decimal) (commissionCents, vendorCents int64) {
	commission := decimal.NewFromInt(amountCents).Mul(rate).Round(0).IntPart()
	return commission, amountCents - commission
}

func (s *service) Resolve(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, at time.Time) (Resolution, error) {
	repo := s.repo.WithTx(tx)

	if storeID != uuid.Nil {
		override, err := repo.FindStoreOverride(ctx, storeID, at)
		if err != nil {
			return Resolution{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store commission rate")
		}
		if override != nil {
			id := override.ID
			return Resolution{Rate: override.Rate, RateID: &id, Source: SourceStoreOverride}, nil
		}
	}

	def, err := repo.FindActiveDefault(ctx)
	if err != nil {
		return Resolution{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default commission rate")
	}
	if def != nil {
		id := def.ID
		return Resolution{Rate: def.Rate, RateID: &id, Source: SourceDefault}, nil
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"store_id":   storeID.String(),
			"floor_rate": s.floor.String(),
			"error_code": string(pkgerrors.CodeNoActiveCommissionRate),
		})
		s.logg.Warn(logCtx, "no active commission rate; using platform floor")
	}
	if s.metrics != nil {
		s.metrics.IncCommissionFallback()
	}
	return Resolution{Rate: s.floor, Source: SourceFloor}, nil
}

func (s *service) CreateRate(ctx context.Context, input CreateRateInput) (*models.CommissionRate, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if err := ValidateRate(input.Rate); err != nil {
		return nil, err
	}
	if input.IsDefault && input.StoreID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a default rate cannot be assigned to a store")
	}

	rate := &models.CommissionRate{
		ID:          uuid.New(),
		Name:        name,
		Rate:        input.Rate,
		Description: input.Description,
		IsActive:    true,
		IsDefault:   input.IsDefault,
		StoreID:     input.StoreID,
		CreatedAt:   time.Now().UTC(),
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if rate.IsDefault {
			if err := repo.ClearDefault(ctx, rate.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear previous default")
			}
		}
		if err := repo.Create(ctx, rate); err != nil {
			return mapWriteError(err, "create commission rate")
		}
		return s.emitChanged(ctx, tx, rate, input.ActorID)
	})
	if err != nil {
		return nil, err
	}
	return rate, nil
}

func (s *service) SetDefault(ctx context.Context, rateID, actorID uuid.UUID) (*models.CommissionRate, error) {
	if rateID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rate id required")
	}

	var result *models.CommissionRate
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rate, err := repo.FindByIDForUpdate(ctx, rateID)
		if err != nil {
			return mapLoadError(err)
		}
		if rate.StoreID != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "store override rates cannot become the default")
		}
		if rate.IsDefault && rate.IsActive {
			result = rate
			return nil
		}
		if err := repo.ClearDefault(ctx, rate.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear previous default")
		}
		if err := repo.Update(ctx, rate.ID, map[string]any{
			"is_default": true,
			"is_active":  true,
			"updated_at": time.Now().UTC(),
		}); err != nil {
			return mapWriteError(err, "set default commission rate")
		}
		rate.IsDefault = true
		rate.IsActive = true
		result = rate
		return s.emitChanged(ctx, tx, rate, actorID)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Deactivate(ctx context.Context, rateID, actorID uuid.UUID) (*models.CommissionRate, error) {
	if rateID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rate id required")
	}

	var result *models.CommissionRate
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rate, err := repo.FindByIDForUpdate(ctx, rateID)
		if err != nil {
			return mapLoadError(err)
		}
		result = rate
		if !rate.IsActive {
			return nil
		}
		if err := repo.Update(ctx, rate.ID, map[string]any{
			"is_active":  false,
			"is_default": false,
			"updated_at": time.Now().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate commission rate")
		}
		rate.IsActive = false
		rate.IsDefault = false
		return s.emitChanged(ctx, tx, rate, actorID)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*pagination.Page[RateView], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, cursor, params.Limit, params.IncludeInactive)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commission rates")
	}
	views := make([]RateView, 0, len(rows))
	for _, row := range rows {
		views = append(views, NewRateView(row))
	}
	page := pagination.BuildPage(views, params.Limit, func(v RateView) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
	return &page, nil
}

func (s *service) emitChanged(ctx context.Context, tx *gorm.DB, rate *models.CommissionRate, actorID uuid.UUID) error {
	var actor *outbox.ActorRef
	if actorID != uuid.Nil {
		id := actorID
		actor = &outbox.ActorRef{UserID: &id, Role: enums.ActorRoleAdmin}
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCommissionRateChanged,
		AggregateType: enums.AggregateCommissionRate,
		AggregateID:   rate.ID,
		Actor:         actor,
		Data: payloads.CommissionRateChangedEvent{
			RateID:    rate.ID,
			Rate:      rate.Rate.String(),
			IsDefault: rate.IsDefault,
			IsActive:  rate.IsActive,
			StoreID:   rate.StoreID,
		},
	})
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "commission rate not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission rate")
}

// mapWriteError turns a lost race on the single-default index into a retryable conflict.
func mapWriteError(err error, action string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConcurrentUpdate, err, "another default rate was set concurrently")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
