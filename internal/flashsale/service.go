package flashsale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type reservationRecorder interface {
	ObserveReservation(outcome string)
}

// Service is the flash-sale allocator. Reserve and Release accept the
// caller's transaction so checkout and cancellation stay atomic; a nil tx
// makes them run in their own.
type Service interface {
	Reserve(ctx context.Context, tx *gorm.DB, input ReserveInput) (*Reservation, error)
	Release(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) (*ReleaseResult, error)
	ReleaseHold(ctx context.Context, input ReleaseHoldInput) (*ReleaseResult, error)
	AttachOrderLine(ctx context.Context, tx *gorm.DB, reservationID, orderLineID uuid.UUID) error
	CreateAllocation(ctx context.Context, input CreateAllocationInput) (*AllocationView, error)
	ListActive(ctx context.Context, at time.Time) ([]AllocationView, error)
	ExpireEnded(ctx context.Context, at time.Time) (int, error)
	ReleaseExpiredHolds(ctx context.Context, at time.Time) (int, error)
}

const (
	expireBatchSize = 200
	defaultHoldTTL  = 10 * time.Minute
)

// Reservation outcomes reported to metrics.
const (
	outcomeReserved     = "reserved"
	outcomeNotActive    = "not_active"
	outcomeSoldOut      = "sold_out"
	outcomeInsufficient = "insufficient"
)

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics reservationRecorder
	holdTTL time.Duration
}

// Option adjusts the allocator built by NewService.
type Option func(*service)

// WithHoldTTL sets how long an unattached reservation holds quantity before
// the sweep returns it. Non-positive values keep the default.
func WithHoldTTL(ttl time.Duration) Option {
	return func(s *service) {
		if ttl > 0 {
			s.holdTTL = ttl
		}
	}
}

// NewService wires the allocator.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger, metrics reservationRecorder, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("flash sale repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	svc := &service{repo: repo, tx: tx, outbox: outbox, logg: logg, metrics: metrics, holdTTL: defaultHoldTTL}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *service) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.tx.WithTx(ctx, fn)
}

// Reserve increments sold_count by qty in one guarded statement. When the
// statement matches no row the allocation is re-read only to explain why.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, input ReserveInput) (*Reservation, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	at := input.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	var result *Reservation
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		allocation, err := s.findAllocation(ctx, repo, input, at)
		if err != nil {
			return err
		}

		ok, err := repo.TryIncrement(ctx, allocation.ID, input.Quantity, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve flash sale quantity")
		}
		if !ok {
			return s.explainRejection(ctx, repo, allocation.ID, input.Quantity, at)
		}

		expiresAt := at.Add(s.holdTTL)
		reservation := &models.FlashSaleReservation{
			AllocationID: allocation.ID,
			Quantity:     input.Quantity,
			ExpiresAt:    &expiresAt,
		}
		if input.BuyerID != uuid.Nil {
			buyer := input.BuyerID
			reservation.BuyerID = &buyer
		}
		if err := repo.CreateReservation(ctx, reservation); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reservation")
		}

		var remaining *int
		if allocation.MaxQuantity != nil {
			left := *allocation.MaxQuantity - allocation.SoldCount - input.Quantity
			if left < 0 {
				left = 0
			}
			remaining = &left
		}
		result = &Reservation{
			ID:             reservation.ID,
			AllocationID:   allocation.ID,
			FlashSaleID:    allocation.FlashSaleID,
			ProductID:      allocation.ProductID,
			Quantity:       input.Quantity,
			SalePriceCents: allocation.SalePriceCents,
			Remaining:      remaining,
			ExpiresAt:      expiresAt,
		}
		return nil
	})
	if err != nil {
		s.observe(err)
		return nil, err
	}
	s.observe(nil)
	return result, nil
}

func (s *service) findAllocation(ctx context.Context, repo Repository, input ReserveInput, at time.Time) (*models.FlashSaleAllocation, error) {
	var (
		allocation *models.FlashSaleAllocation
		err        error
	)
	if input.FlashSaleID != nil {
		allocation, err = repo.FindAllocationForProduct(ctx, *input.FlashSaleID, input.ProductID)
	} else {
		allocation, err = repo.FindActiveForProduct(ctx, input.ProductID, at)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if input.FlashSaleID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product is not part of this flash sale")
		}
		return nil, pkgerrors.New(pkgerrors.CodeSaleNotActive, "no flash sale is active for this product")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load flash sale allocation")
	}
	return allocation, nil
}

func (s *service) explainRejection(ctx context.Context, repo Repository, allocationID uuid.UUID, qty int, at time.Time) error {
	current, err := repo.FindAllocation(ctx, allocationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload flash sale allocation")
	}
	if current.Status != enums.FlashSaleStatusActive || at.Before(current.StartTime) || at.After(current.EndTime) {
		return pkgerrors.New(pkgerrors.CodeSaleNotActive, "flash sale is not active").
			WithDetails(map[string]any{"start_time": current.StartTime, "end_time": current.EndTime})
	}
	remaining := current.Remaining()
	if remaining == nil || *remaining >= qty {
		// Quantity came back between the update and this read.
		return pkgerrors.New(pkgerrors.CodeConcurrentUpdate, "allocation changed concurrently; retry")
	}
	if *remaining == 0 {
		return pkgerrors.New(pkgerrors.CodeSoldOut, "flash sale is sold out").
			WithDetails(map[string]any{"remaining": 0})
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientRemaining, "not enough flash sale quantity left").
		WithDetails(map[string]any{"remaining": *remaining, "requested": qty})
}

func (s *service) observe(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.ObserveReservation(outcomeReserved)
	case pkgerrors.IsCode(err, pkgerrors.CodeSaleNotActive):
		s.metrics.ObserveReservation(outcomeNotActive)
	case pkgerrors.IsCode(err, pkgerrors.CodeSoldOut):
		s.metrics.ObserveReservation(outcomeSoldOut)
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientRemaining):
		s.metrics.ObserveReservation(outcomeInsufficient)
	}
}

// Release returns a reservation's quantity to its allocation. The reservation
// row is stamped first so a second call is a no-op. It is the internal path
// used by order cancellation and performs no ownership checks.
func (s *service) Release(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) (*ReleaseResult, error) {
	if reservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}
	now := time.Now().UTC()

	var result *ReleaseResult
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		reservation, err := s.loadReservation(ctx, s.repo.WithTx(tx), reservationID)
		if err != nil {
			return err
		}
		result, err = s.release(ctx, tx, reservation, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReleaseHold is the caller-facing release. A reservation that backs an order
// line is refused: its quantity is sold and only cancelling the order returns it.
func (s *service) ReleaseHold(ctx context.Context, input ReleaseHoldInput) (*ReleaseResult, error) {
	if input.ReservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}
	now := time.Now().UTC()

	var result *ReleaseResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reservation, err := s.loadReservation(ctx, s.repo.WithTx(tx), input.ReservationID)
		if err != nil {
			return err
		}
		if !canReleaseHold(input, reservation) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another buyer")
		}
		if reservation.Attached() {
			return pkgerrors.New(pkgerrors.CodeConflict, "reservation backs an order; cancel the order to release it").
				WithDetails(map[string]any{"order_line_id": reservation.OrderLineID.String()})
		}
		result, err = s.release(ctx, tx, reservation, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func canReleaseHold(input ReleaseHoldInput, reservation *models.FlashSaleReservation) bool {
	switch input.ActorRole {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return true
	case enums.ActorRoleBuyer:
		return reservation.BuyerID != nil && *reservation.BuyerID == input.ActorID
	default:
		return false
	}
}

// ReleaseExpiredHolds returns the quantity of unattached reservations whose
// hold lapsed before at. Each hold is re-checked under its row lock, so a
// concurrent release or attach wins and the sweep skips it.
func (s *service) ReleaseExpiredHolds(ctx context.Context, at time.Time) (int, error) {
	at = at.UTC()
	released := 0
	for {
		batch, err := s.repo.ListExpiredHolds(ctx, at, expireBatchSize)
		if err != nil {
			return released, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired flash sale holds")
		}
		progressed := 0
		for _, hold := range batch {
			freed := false
			err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				reservation, err := s.loadReservation(ctx, s.repo.WithTx(tx), hold.ID)
				if err != nil {
					return err
				}
				if reservation.Attached() || reservation.ReleasedAt != nil {
					return nil
				}
				result, err := s.release(ctx, tx, reservation, at)
				if err != nil {
					return err
				}
				freed = !result.AlreadyReleased
				return nil
			})
			if err != nil {
				return released, err
			}
			if freed {
				released++
				progressed++
			}
		}
		if len(batch) < expireBatchSize || progressed == 0 {
			return released, nil
		}
	}
}

func (s *service) loadReservation(ctx context.Context, repo Repository, id uuid.UUID) (*models.FlashSaleReservation, error) {
	reservation, err := repo.FindReservation(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	return reservation, nil
}

func (s *service) release(ctx context.Context, tx *gorm.DB, reservation *models.FlashSaleReservation, now time.Time) (*ReleaseResult, error) {
	repo := s.repo.WithTx(tx)
	result := &ReleaseResult{ReservationID: reservation.ID, Quantity: reservation.Quantity}

	released, err := repo.MarkReleased(ctx, reservation.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark reservation released")
	}
	if !released {
		result.AlreadyReleased = true
		return result, nil
	}
	if err := repo.Decrement(ctx, reservation.AllocationID, reservation.Quantity, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release flash sale quantity")
	}

	allocation, err := repo.FindAllocation(ctx, reservation.AllocationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload flash sale allocation")
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventFlashSaleReleased,
		AggregateType: enums.AggregateFlashSale,
		AggregateID:   allocation.ID,
		Actor:         outbox.SystemActor(),
		Data: payloads.FlashSaleReleasedEvent{
			AllocationID:  allocation.ID,
			FlashSaleID:   allocation.FlashSaleID,
			ProductID:     allocation.ProductID,
			ReservationID: reservation.ID,
			Quantity:      reservation.Quantity,
			OrderLineID:   reservation.OrderLineID,
		},
		OccurredAt: now,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) AttachOrderLine(ctx context.Context, tx *gorm.DB, reservationID, orderLineID uuid.UUID) error {
	return s.inTx(ctx, tx, func(tx *gorm.DB) error {
		attached, err := s.repo.WithTx(tx).AttachOrderLine(ctx, reservationID, orderLineID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link reservation to order line")
		}
		if !attached {
			return pkgerrors.New(pkgerrors.CodeConflict, "reservation is no longer open")
		}
		return nil
	})
}

func (s *service) CreateAllocation(ctx context.Context, input CreateAllocationInput) (*AllocationView, error) {
	switch {
	case input.FlashSaleID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "flash sale id required")
	case input.ProductID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	case input.SalePriceCents < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale price cannot be negative")
	case input.DiscountPercent < 0 || input.DiscountPercent > 100:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount percent must be between 0 and 100")
	case input.MaxQuantity != nil && *input.MaxQuantity < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max quantity cannot be negative")
	case !input.EndTime.After(input.StartTime):
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end time must be after start time")
	}

	allocation := &models.FlashSaleAllocation{
		FlashSaleID:     input.FlashSaleID,
		ProductID:       input.ProductID,
		SalePriceCents:  input.SalePriceCents,
		DiscountPercent: input.DiscountPercent,
		MaxQuantity:     input.MaxQuantity,
		Status:          enums.FlashSaleStatusActive,
		StartTime:       input.StartTime.UTC(),
		EndTime:         input.EndTime.UTC(),
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateAllocation(ctx, allocation); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "product already has an allocation in this flash sale")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create flash sale allocation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"allocation_id": allocation.ID.String(),
			"flash_sale_id": allocation.FlashSaleID.String(),
			"product_id":    allocation.ProductID.String(),
		})
		s.logg.Info(logCtx, "flash sale allocation created")
	}
	view := newAllocationView(*allocation)
	return &view, nil
}

func (s *service) ListActive(ctx context.Context, at time.Time) ([]AllocationView, error) {
	if at.IsZero() {
		at = time.Now()
	}
	rows, err := s.repo.ListActive(ctx, at.UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active flash sales")
	}
	views := make([]AllocationView, 0, len(rows))
	for _, row := range rows {
		views = append(views, newAllocationView(row))
	}
	return views, nil
}

// ExpireEnded flags allocations whose window closed before at. Running it
// again finds nothing new, so overlapping sweeps are harmless.
func (s *service) ExpireEnded(ctx context.Context, at time.Time) (int, error) {
	at = at.UTC()
	expired := 0
	for {
		batch, err := s.repo.ListEnded(ctx, at, expireBatchSize)
		if err != nil {
			return expired, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ended flash sales")
		}
		if len(batch) == 0 {
			return expired, nil
		}
		for _, allocation := range batch {
			allocation := allocation
			marked := false
			err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				ok, err := s.repo.WithTx(tx).MarkExpired(ctx, allocation.ID, at)
				if err != nil || !ok {
					return err
				}
				marked = true
				return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventFlashSaleExpired,
					AggregateType: enums.AggregateFlashSale,
					AggregateID:   allocation.ID,
					Actor:         outbox.SystemActor(),
					Data: payloads.FlashSaleExpiredEvent{
						AllocationID: allocation.ID,
						FlashSaleID:  allocation.FlashSaleID,
						ProductID:    allocation.ProductID,
						SoldCount:    allocation.SoldCount,
						EndTime:      allocation.EndTime,
					},
					OccurredAt: at,
				})
			})
			if err != nil {
				return expired, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire flash sale")
			}
			if marked {
				expired++
			}
		}
		if len(batch) < expireBatchSize {
			return expired, nil
		}
	}
}
