package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/marketcore-backend/internal/ledger"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Ledger is the slice of the earnings ledger the payout workflow depends on.
type Ledger interface {
	LockVendor(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) error
	Snapshot(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (ledger.Snapshot, error)
	MarkPaidForPayout(ctx context.Context, tx *gorm.DB, vendorID, payoutID uuid.UUID, at time.Time) (int, error)
}

type decisionRecorder interface {
	ObservePayoutDecision(status string)
}

// Service runs the vendor payout workflow.
type Service interface {
	RequestPayout(ctx context.Context, input RequestPayoutInput) (*PayoutView, error)
	StartProcessing(ctx context.Context, payoutID, adminID uuid.UUID) (*PayoutView, error)
	ProcessPayout(ctx context.Context, input ProcessPayoutInput) (*PayoutView, error)
	ListPayouts(ctx context.Context, vendorID uuid.UUID, status *enums.PayoutStatus, params pagination.Params) (*pagination.Page[PayoutView], error)
	ListPendingPayouts(ctx context.Context, params pagination.Params) (*pagination.Page[PayoutView], error)
}

type service struct {
	repo    Repository
	tx      txRunner
	ledger  Ledger
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics decisionRecorder
	now     func() time.Time
}

var outstandingStatuses = []enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusProcessing}

// NewService wires the payout workflow.
func NewService(repo Repository, tx txRunner, ledger Ledger, outbox outboxPublisher, logg *logger.Logger, metrics decisionRecorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		ledger:  ledger,
		outbox:  outbox,
		logg:    logg,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// RequestPayout reserves part of the vendor's available balance. The balance
// is recomputed under the vendor lock in the same transaction that writes the
// payout, so two requests can never jointly overdraw it.
func (s *service) RequestPayout(ctx context.Context, input RequestPayoutInput) (*PayoutView, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "payout amount must be greater than zero")
	}
	method := strings.TrimSpace(input.PaymentMethod)
	if method == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}

	var created *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.ledger.LockVendor(ctx, tx, input.VendorID); err != nil {
			return err
		}
		snap, err := s.ledger.Snapshot(ctx, tx, input.VendorID)
		if err != nil {
			return err
		}
		if input.AmountCents > snap.AvailableBalance {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "payout exceeds available balance").
				WithDetails(map[string]any{
					"available_balance_cents": snap.AvailableBalance,
					"requested_cents":         input.AmountCents,
				})
		}

		payout := &models.Payout{
			VendorID:      input.VendorID,
			AmountCents:   input.AmountCents,
			Status:        enums.PayoutStatusPending,
			PaymentMethod: method,
			Notes:         input.Notes,
			RequestedAt:   s.now(),
		}
		if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}
		created = payout

		actor := vendorActor(input.ActorID)
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutRequested,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Actor:         actor,
			Data: payloads.PayoutRequestedEvent{
				PayoutID:    payout.ID,
				VendorID:    payout.VendorID,
				AmountCents: payout.AmountCents,
				RequestedAt: payout.RequestedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithVendorID(ctx, input.VendorID.String())
		logCtx = s.logg.WithPayoutID(logCtx, created.ID.String())
		logCtx = s.logg.WithField(logCtx, "amount_cents", created.AmountCents)
		s.logg.Info(logCtx, "payout requested")
	}
	view := newPayoutView(*created)
	return &view, nil
}

// StartProcessing marks a pending payout as being worked on by an admin.
func (s *service) StartProcessing(ctx context.Context, payoutID, adminID uuid.UUID) (*PayoutView, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	var result *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := repo.FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return mapLoadError(err)
		}
		result = payout
		switch payout.Status {
		case enums.PayoutStatusProcessing:
			return nil
		case enums.PayoutStatusPending:
		default:
			return pkgerrors.New(pkgerrors.CodePayoutFinalized, "payout already finalized")
		}
		ok, err := repo.Transition(ctx, payout.ID, []enums.PayoutStatus{enums.PayoutStatusPending}, map[string]any{
			"status":       enums.PayoutStatusProcessing,
			"processed_by": adminID,
			"updated_at":   s.now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start payout processing")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConcurrentUpdate, "payout changed concurrently")
		}
		payout.Status = enums.PayoutStatusProcessing
		admin := adminID
		payout.ProcessedBy = &admin
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := newPayoutView(*result)
	return &view, nil
}

// ProcessPayout completes or rejects an outstanding payout. Completion marks
// covered earnings paid; rejection simply drops the payout from the
// outstanding total, which returns the amount to the available balance.
func (s *service) ProcessPayout(ctx context.Context, input ProcessPayoutInput) (*PayoutView, error) {
	if input.PayoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	if input.ProcessedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin identity missing")
	}
	if !input.Decision.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be completed or rejected")
	}
	transactionID := strings.TrimSpace(input.TransactionID)
	reason := strings.TrimSpace(input.RejectionReason)
	switch input.Decision {
	case enums.PayoutDecisionCompleted:
		if transactionID == "" {
			return nil, pkgerrors.New(pkgerrors.CodeMissingTransactionID, "transaction id is required to complete a payout")
		}
	case enums.PayoutDecisionRejected:
		if reason == "" {
			return nil, pkgerrors.New(pkgerrors.CodeMissingRejectionReason, "rejection reason is required")
		}
	}

	var result *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, input.PayoutID)
		if err != nil {
			return mapLoadError(err)
		}
		if err := s.ledger.LockVendor(ctx, tx, current.VendorID); err != nil {
			return err
		}
		payout, err := repo.FindByIDForUpdate(ctx, input.PayoutID)
		if err != nil {
			return mapLoadError(err)
		}
		if !payout.Status.IsOutstanding() {
			return pkgerrors.New(pkgerrors.CodePayoutFinalized, "payout already finalized").
				WithDetails(map[string]any{"status": payout.Status})
		}

		now := s.now()
		processedBy := input.ProcessedBy
		updates := map[string]any{
			"status":       enums.PayoutStatus(input.Decision),
			"processed_by": processedBy,
			"processed_at": now,
			"updated_at":   now,
		}
		if input.Decision == enums.PayoutDecisionCompleted {
			updates["transaction_id"] = transactionID
			payout.TransactionID = &transactionID
		} else {
			updates["rejection_reason"] = reason
			payout.RejectionReason = &reason
		}
		ok, err := repo.Transition(ctx, payout.ID, outstandingStatuses, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve payout")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodePayoutFinalized, "payout already finalized")
		}
		payout.Status = enums.PayoutStatus(input.Decision)
		payout.ProcessedBy = &processedBy
		payout.ProcessedAt = &now
		result = payout

		if payout.Status == enums.PayoutStatusCompleted {
			if _, err := s.ledger.MarkPaidForPayout(ctx, tx, payout.VendorID, payout.ID, now); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutDecided,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Actor:         &outbox.ActorRef{UserID: &processedBy, Role: enums.ActorRoleAdmin},
			Data: payloads.PayoutDecidedEvent{
				PayoutID:        payout.ID,
				VendorID:        payout.VendorID,
				AmountCents:     payout.AmountCents,
				Status:          payout.Status,
				TransactionID:   transactionID,
				RejectionReason: reason,
				ProcessedBy:     processedBy,
				ProcessedAt:     now,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObservePayoutDecision(string(result.Status))
	}
	if s.logg != nil {
		logCtx := s.logg.WithVendorID(ctx, result.VendorID.String())
		logCtx = s.logg.WithPayoutID(logCtx, result.ID.String())
		logCtx = s.logg.WithField(logCtx, "status", string(result.Status))
		s.logg.Info(logCtx, "payout processed")
	}
	view := newPayoutView(*result)
	return &view, nil
}

func (s *service) ListPayouts(ctx context.Context, vendorID uuid.UUID, status *enums.PayoutStatus, params pagination.Params) (*pagination.Page[PayoutView], error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
	}
	filter := listFilter{VendorID: &vendorID}
	if status != nil {
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout status")
		}
		filter.Statuses = []enums.PayoutStatus{*status}
	}
	return s.list(ctx, filter, params)
}

func (s *service) ListPendingPayouts(ctx context.Context, params pagination.Params) (*pagination.Page[PayoutView], error) {
	return s.list(ctx, listFilter{Statuses: outstandingStatuses}, params)
}

func (s *service) list(ctx context.Context, filter listFilter, params pagination.Params) (*pagination.Page[PayoutView], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filter, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	views := make([]PayoutView, 0, len(rows))
	for _, row := range rows {
		views = append(views, newPayoutView(row))
	}
	page := pagination.BuildPage(views, params.Limit, func(v PayoutView) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.RequestedAt, ID: v.ID}
	})
	return &page, nil
}

func vendorActor(userID uuid.UUID) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	id := userID
	return &outbox.ActorRef{UserID: &id, Role: enums.ActorRoleVendor}
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
}
