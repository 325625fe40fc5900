package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/angelmondragon/marketcore-backend/internal/commission"
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

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RateResolver picks the commission rate for a store at an instant.
type RateResolver interface {
	Resolve(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, at time.Time) (commission.Resolution, error)
}

// Service is the only writer of earnings. Order-driven movements run inside
// the caller's transaction so they commit with the transition that caused them.
type Service interface {
	Settle(ctx context.Context, tx *gorm.DB, order *models.Order, at time.Time) (*Result, error)
	Mature(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, at time.Time) (*Result, error)
	Reverse(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, at time.Time) (*Result, error)
	LockVendor(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) error
	Snapshot(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (Snapshot, error)
	MarkPaidForPayout(ctx context.Context, tx *gorm.DB, vendorID, payoutID uuid.UUID, at time.Time) (int, error)
	ListEarnings(ctx context.Context, params ListEarningsParams) (*pagination.Page[EarningView], error)
}

// ListEarningsParams filters a vendor's earnings.
type ListEarningsParams struct {
	pagination.Params
	VendorID uuid.UUID
	Status   *enums.EarningStatus
}

type service struct {
	repo     Repository
	resolver RateResolver
	outbox   outboxPublisher
	logg     *logger.Logger
}

// NewService wires the earnings ledger.
func NewService(repo Repository, resolver RateResolver, outbox outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("commission resolver required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, resolver: resolver, outbox: outbox, logg: logg}, nil
}

// Settle creates one pending earning per order line. Lines that already have
// an earning are skipped, so repeated calls never duplicate rows.
func (s *service) Settle(ctx context.Context, tx *gorm.DB, order *models.Order, at time.Time) (*Result, error) {
	if order == nil || order.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	repo := s.repo.WithTx(tx)

	existing, err := repo.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order earnings")
	}
	settled := make(map[uuid.UUID]bool, len(existing))
	for _, e := range existing {
		settled[e.OrderLineID] = true
	}

	result := &Result{OrderID: order.ID}
	accounts := map[uuid.UUID]bool{}
	for _, line := range order.Lines {
		if settled[line.ID] {
			continue
		}
		if !accounts[line.VendorID] {
			if err := repo.EnsureVendorAccount(ctx, line.VendorID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure vendor account")
			}
			accounts[line.VendorID] = true
		}

		resolution, err := s.resolver.Resolve(ctx, tx, line.VendorID, at)
		if err != nil {
			return nil, err
		}
		commissionCents, vendorCents := commission.Split(line.SubtotalCents, resolution.Rate)
		earning := models.Earning{
			OrderID:           order.ID,
			OrderLineID:       line.ID,
			VendorID:          line.VendorID,
			OrderAmountCents:  line.SubtotalCents,
			CommissionRate:    resolution.Rate,
			CommissionRateID:  resolution.RateID,
			CommissionCents:   commissionCents,
			VendorAmountCents: vendorCents,
			Status:            enums.EarningStatusPending,
		}
		inserted, err := repo.InsertEarning(ctx, &earning)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create earning")
		}
		if inserted {
			result.Earnings = append(result.Earnings, earning)
			result.Changed++
		}
	}

	if result.Changed == 0 {
		return result, nil
	}
	if err := s.emit(ctx, tx, enums.EventEarningsSettled, enums.EarningStatusPending, order.ID, result.Earnings, at); err != nil {
		return nil, err
	}
	s.logMovement(ctx, "earnings settled", order.ID, result)
	return result, nil
}

// Mature moves the order's pending earnings to available.
func (s *service) Mature(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, at time.Time) (*Result, error) {
	repo := s.repo.WithTx(tx)
	earnings, err := repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order earnings")
	}

	pending := filterStatus(earnings, enums.EarningStatusPending)
	result := &Result{OrderID: orderID}
	if len(pending) == 0 {
		return result, nil
	}
	changed, err := repo.UpdateStatus(ctx, ids(pending), enums.EarningStatusPending, statusUpdate(enums.EarningStatusAvailable, "available_at", at))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mature earnings")
	}
	for i := range pending {
		pending[i].Status = enums.EarningStatusAvailable
		t := at
		pending[i].AvailableAt = &t
	}
	result.Earnings = pending
	result.Changed = int(changed)

	if err := s.emit(ctx, tx, enums.EventEarningsMatured, enums.EarningStatusAvailable, orderID, pending, at); err != nil {
		return nil, err
	}
	s.logMovement(ctx, "earnings matured", orderID, result)
	return result, nil
}

// Reverse voids every unpaid earning of the order. Paid earnings make the
// whole reversal fail; money already sent to a vendor is never clawed back here.
func (s *service) Reverse(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, at time.Time) (*Result, error) {
	repo := s.repo.WithTx(tx)
	earnings, err := repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order earnings")
	}

	result := &Result{OrderID: orderID}
	var pending, available []models.Earning
	availableByVendor := map[uuid.UUID]int64{}
	for _, e := range earnings {
		switch e.Status {
		case enums.EarningStatusPaid:
			return nil, pkgerrors.New(pkgerrors.CodeSettledFundsIrreversible, "order has earnings that were already paid out").
				WithDetails(map[string]any{"earning_id": e.ID})
		case enums.EarningStatusPending:
			pending = append(pending, e)
		case enums.EarningStatusAvailable:
			available = append(available, e)
			availableByVendor[e.VendorID] += e.VendorAmountCents
		}
	}

	// Reversing matured money lowers the balance, so it takes the same
	// vendor lock as payout requests and must not drive the balance negative.
	for _, vendorID := range sortedVendors(availableByVendor) {
		amount := availableByVendor[vendorID]
		if err := s.LockVendor(ctx, tx, vendorID); err != nil {
			return nil, err
		}
		snap, err := s.Snapshot(ctx, tx, vendorID)
		if err != nil {
			return nil, err
		}
		if snap.AvailableBalance < amount {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "matured earnings are already committed to payouts").
				WithDetails(map[string]any{"vendor_id": vendorID, "available_balance_cents": snap.AvailableBalance})
		}
	}

	update := statusUpdate(enums.EarningStatusReversed, "reversed_at", at)
	for _, group := range []struct {
		from enums.EarningStatus
		rows []models.Earning
	}{{enums.EarningStatusPending, pending}, {enums.EarningStatusAvailable, available}} {
		changed, err := repo.UpdateStatus(ctx, ids(group.rows), group.from, update)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reverse earnings")
		}
		result.Changed += int(changed)
	}

	reversed := append(pending, available...)
	for i := range reversed {
		reversed[i].Status = enums.EarningStatusReversed
		t := at
		reversed[i].ReversedAt = &t
	}
	result.Earnings = reversed
	if len(reversed) == 0 {
		return result, nil
	}
	if err := s.emit(ctx, tx, enums.EventEarningsReversed, enums.EarningStatusReversed, orderID, reversed, at); err != nil {
		return nil, err
	}
	s.logMovement(ctx, "earnings reversed", orderID, result)
	return result, nil
}

// LockVendor creates the vendor's account row when missing and locks it for
// the rest of the transaction.
func (s *service) LockVendor(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) error {
	if vendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	repo := s.repo.WithTx(tx)
	if err := repo.EnsureVendorAccount(ctx, vendorID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure vendor account")
	}
	if err := repo.LockVendor(ctx, vendorID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock vendor account")
	}
	return nil
}

// Snapshot derives the vendor's balances from earnings and payouts.
// availableBalance = matured earnings - outstanding payouts - completed payouts.
func (s *service) Snapshot(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (Snapshot, error) {
	if vendorID == uuid.Nil {
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	repo := s.repo.WithTx(tx)
	earned, err := repo.EarningTotals(ctx, vendorID)
	if err != nil {
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum earnings")
	}
	paid, err := repo.PayoutTotals(ctx, vendorID)
	if err != nil {
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum payouts")
	}
	return Snapshot{
		VendorID:           vendorID,
		PendingEarnings:    earned.Pending,
		AvailableBalance:   earned.Matured - paid.Outstanding - paid.Completed,
		OutstandingPayouts: paid.Outstanding,
		PaidAmount:         paid.Completed,
		TotalEarned:        earned.Pending + earned.Matured,
	}, nil
}

// MarkPaidForPayout flips available earnings to paid, oldest first, while the
// vendor's paid earnings stay covered by completed payouts. An earning larger
// than the uncovered remainder stays available until later payouts cover it.
// The caller must hold the vendor lock and have marked the payout completed.
func (s *service) MarkPaidForPayout(ctx context.Context, tx *gorm.DB, vendorID, payoutID uuid.UUID, at time.Time) (int, error) {
	repo := s.repo.WithTx(tx)
	earned, err := repo.EarningTotals(ctx, vendorID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum earnings")
	}
	paid, err := repo.PayoutTotals(ctx, vendorID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum payouts")
	}
	uncovered := paid.Completed - earned.Paid
	if uncovered <= 0 {
		return 0, nil
	}

	available, err := repo.ListAvailableOldestFirst(ctx, vendorID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load available earnings")
	}
	var covered []uuid.UUID
	for _, e := range available {
		if e.VendorAmountCents > uncovered {
			break
		}
		uncovered -= e.VendorAmountCents
		covered = append(covered, e.ID)
	}
	if len(covered) == 0 {
		return 0, nil
	}

	updates := statusUpdate(enums.EarningStatusPaid, "paid_at", at)
	updates["payout_id"] = payoutID
	changed, err := repo.UpdateStatus(ctx, covered, enums.EarningStatusAvailable, updates)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark earnings paid")
	}
	return int(changed), nil
}

func (s *service) ListEarnings(ctx context.Context, params ListEarningsParams) (*pagination.Page[EarningView], error) {
	if params.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid earning status")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, params.VendorID, params.Status, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list earnings")
	}
	views := make([]EarningView, 0, len(rows))
	for _, row := range rows {
		views = append(views, newEarningView(row))
	}
	page := pagination.BuildPage(views, params.Limit, func(v EarningView) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
	return &page, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, status enums.EarningStatus, orderID uuid.UUID, earnings []models.Earning, at time.Time) error {
	event := payloads.EarningsEvent{
		OrderID:    orderID,
		Status:     status,
		OccurredAt: at,
	}
	vendors := map[uuid.UUID]bool{}
	for _, e := range earnings {
		event.EarningIDs = append(event.EarningIDs, e.ID)
		event.TotalCents += e.VendorAmountCents
		if !vendors[e.VendorID] {
			vendors[e.VendorID] = true
			event.VendorIDs = append(event.VendorIDs, e.VendorID)
		}
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateEarning,
		AggregateID:   orderID,
		Actor:         outbox.SystemActor(),
		Data:          event,
		OccurredAt:    at,
	})
}

func (s *service) logMovement(ctx context.Context, msg string, orderID uuid.UUID, result *Result) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	logCtx = s.logg.WithField(logCtx, "earnings", result.Changed)
	s.logg.Info(logCtx, msg)
}

func filterStatus(earnings []models.Earning, status enums.EarningStatus) []models.Earning {
	var out []models.Earning
	for _, e := range earnings {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

// sortedVendors returns vendor ids in the order their locks are taken.
func sortedVendors(amounts map[uuid.UUID]int64) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(amounts))
	for id := range amounts {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func ids(earnings []models.Earning) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(earnings))
	for _, e := range earnings {
		out = append(out, e.ID)
	}
	return out
}
