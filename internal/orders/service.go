package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/marketcore-backend/internal/catalog"
	"github.com/angelmondragon/marketcore-backend/internal/flashsale"
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

// EarningsLedger reacts to transitions inside the transition's transaction.
type EarningsLedger interface {
	Settle(ctx context.Context, tx *gorm.DB, order *models.Order, at time.Time) (*ledger.Result, error)
	Mature(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, at time.Time) (*ledger.Result, error)
	Reverse(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, at time.Time) (*ledger.Result, error)
}

// AllocationReleaser returns flash-sale quantity held by a cancelled line.
type AllocationReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) (*flashsale.ReleaseResult, error)
}

type transitionRecorder interface {
	ObserveTransition(to string, outcome string)
}

// Service drives the order lifecycle. Every accepted move appends history and
// runs its ledger and allocator side effects in the same transaction.
type Service interface {
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, actor Actor) (*OrderView, error)
	AdvanceStatus(ctx context.Context, input AdvanceStatusInput) (*OrderView, error)
	Cancel(ctx context.Context, input CancelInput) (*OrderView, error)
	Get(ctx context.Context, orderID uuid.UUID, viewer Actor) (*OrderView, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params ListParams) (*pagination.Page[OrderView], error)
	ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params ListParams) (*pagination.Page[OrderView], error)
	ExpirePending(ctx context.Context, cutoff time.Time) (int, error)
}

const expireBatchSize = 100

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	ledger    EarningsLedger
	allocator AllocationReleaser
	stock     catalog.Repository
	logg      *logger.Logger
	metrics   transitionRecorder
	now       func() time.Time
}

// NewService builds the order state machine with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, ledger EarningsLedger, allocator AllocationReleaser, stock catalog.Repository, logg *logger.Logger, metrics transitionRecorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("earnings ledger required")
	}
	if allocator == nil {
		return nil, fmt.Errorf("allocation releaser required")
	}
	if stock == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		outbox:    outbox,
		ledger:    ledger,
		allocator: allocator,
		stock:     stock,
		logg:      logg,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

type transitionRequest struct {
	orderID uuid.UUID
	to      enums.OrderStatus
	actor   Actor
	note    *string
	reason  string
}

func (s *service) ConfirmPayment(ctx context.Context, orderID uuid.UUID, actor Actor) (*OrderView, error) {
	return s.transition(ctx, transitionRequest{orderID: orderID, to: enums.OrderStatusPaid, actor: actor})
}

func (s *service) AdvanceStatus(ctx context.Context, input AdvanceStatusInput) (*OrderView, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	req := transitionRequest{orderID: input.OrderID, to: input.Status, actor: input.Actor, note: input.Note}
	if input.Status == enums.OrderStatusCancelled && input.Note != nil {
		req.reason = *input.Note
	}
	return s.transition(ctx, req)
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*OrderView, error) {
	req := transitionRequest{orderID: input.OrderID, to: enums.OrderStatusCancelled, actor: input.Actor, reason: input.Reason}
	if input.Reason != "" {
		reason := input.Reason
		req.note = &reason
	}
	return s.transition(ctx, req)
}

func (s *service) transition(ctx context.Context, req transitionRequest) (*OrderView, error) {
	if req.orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !req.actor.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing")
	}

	var view *OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, req.orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if err := authorize(order, req); err != nil {
			return err
		}

		from := order.Status
		if !CanTransition(from, req.to) {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order status transition not allowed").
				WithDetails(map[string]any{"from": from, "to": req.to, "allowed": NextStatuses(from)})
		}

		at := s.now()
		updates := map[string]any{"status": req.to}
		switch req.to {
		case enums.OrderStatusPaid:
			updates["payment_status"] = enums.PaymentStatusPaid
			updates["paid_at"] = at
		case enums.OrderStatusDelivered:
			updates["delivered_at"] = at
		case enums.OrderStatusCancelled:
			updates["cancelled_at"] = at
			if req.reason != "" {
				updates["cancel_reason"] = req.reason
			}
		}

		ok, err := repo.UpdateVersioned(ctx, order.ID, order.Version, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConcurrentUpdate, "order was modified concurrently")
		}
		applyUpdates(order, req, at)

		if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
			OrderID:   order.ID,
			Status:    req.to,
			ActorID:   req.actor.userRef(),
			ActorRole: req.actor.Role,
			Note:      req.note,
			CreatedAt: at,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}

		if err := s.applySideEffects(ctx, tx, order, from, at); err != nil {
			return err
		}
		if err := s.emitTransition(ctx, tx, order, from, req, at); err != nil {
			return err
		}

		v := NewOrderView(*order)
		view = &v
		return nil
	})

	s.observe(req.to, err)
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, view.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"status": string(view.Status), "actor_role": string(req.actor.Role)})
		s.logg.Info(logCtx, "order transitioned")
	}
	return view, nil
}

func (s *service) applySideEffects(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderStatus, at time.Time) error {
	switch order.Status {
	case enums.OrderStatusPaid:
		_, err := s.ledger.Settle(ctx, tx, order, at)
		return err
	case enums.OrderStatusDelivered:
		_, err := s.ledger.Mature(ctx, tx, order.ID, at)
		return err
	case enums.OrderStatusCancelled:
		if from != enums.OrderStatusPending {
			if _, err := s.ledger.Reverse(ctx, tx, order.ID, at); err != nil {
				return err
			}
		}
		stock := s.stock.WithTx(tx)
		for _, line := range order.Lines {
			if err := stock.RestoreStock(ctx, line.ProductID, line.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
			}
			if line.FlashSaleReservationID == nil {
				continue
			}
			if _, err := s.allocator.Release(ctx, tx, *line.FlashSaleReservationID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderStatus, req transitionRequest, at time.Time) error {
	event := outbox.DomainEvent{
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: req.actor.userRef(), Role: req.actor.Role},
		OccurredAt:    at,
	}
	vendors := vendorIDs(order)

	switch order.Status {
	case enums.OrderStatusPaid:
		event.EventType = enums.EventOrderPaid
		event.Data = payloads.OrderPaidEvent{
			OrderID:    order.ID,
			BuyerID:    order.BuyerID,
			TotalCents: order.TotalCents,
			Lines:      LineRefs(order.Lines),
			PaidAt:     at,
		}
	case enums.OrderStatusDelivered:
		event.EventType = enums.EventOrderDelivered
		event.Data = payloads.OrderDeliveredEvent{OrderID: order.ID, VendorIDs: vendors, DeliveredAt: at}
	case enums.OrderStatusCancelled:
		event.EventType = enums.EventOrderCancelled
		event.Data = payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			From:        from,
			VendorIDs:   vendors,
			Reason:      req.reason,
			CancelledAt: at,
		}
	default:
		changed := payloads.OrderStatusChangedEvent{
			OrderID:   order.ID,
			From:      from,
			To:        order.Status,
			VendorIDs: vendors,
			ChangedAt: at,
		}
		if req.note != nil {
			changed.Note = *req.note
		}
		event.EventType = enums.EventOrderStatusChanged
		event.Data = changed
	}
	return s.outbox.Emit(ctx, tx, event)
}

func (s *service) observe(to enums.OrderStatus, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "accepted"
	switch {
	case err == nil:
	case pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition):
		outcome = "invalid"
	case pkgerrors.IsCode(err, pkgerrors.CodeConcurrentUpdate):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	s.metrics.ObserveTransition(string(to), outcome)
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, viewer Actor) (*OrderView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindDetail(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	switch viewer.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
	case enums.ActorRoleBuyer:
		if order.BuyerID != viewer.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
	case enums.ActorRoleVendor:
		if !sellsOn(order, viewer.VendorID) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot view orders")
	}

	view := NewOrderView(*order)
	return &view, nil
}

func (s *service) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params ListParams) (*pagination.Page[OrderView], error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByBuyer(ctx, buyerID, params.Status, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
	}
	return buildPage(rows, params.Limit), nil
}

func (s *service) ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params ListParams) (*pagination.Page[OrderView], error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByVendor(ctx, vendorID, params.Status, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendor orders")
	}
	return buildPage(rows, params.Limit), nil
}

// ExpirePending cancels pending orders created before cutoff as the system
// actor. Orders that move concurrently are skipped and picked up next run.
func (s *service) ExpirePending(ctx context.Context, cutoff time.Time) (int, error) {
	rows, err := s.repo.ListPendingBefore(ctx, cutoff, expireBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale pending orders")
	}

	expired := 0
	for _, row := range rows {
		_, err := s.Cancel(ctx, CancelInput{OrderID: row.ID, Actor: SystemActor(), Reason: "payment not received in time"})
		switch {
		case err == nil:
			expired++
		case pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), pkgerrors.IsCode(err, pkgerrors.CodeConcurrentUpdate):
			continue
		default:
			return expired, err
		}
	}
	return expired, nil
}

func buildPage(rows []models.Order, limit int) *pagination.Page[OrderView] {
	views := make([]OrderView, 0, len(rows))
	for _, row := range rows {
		views = append(views, NewOrderView(row))
	}
	page := pagination.BuildPage(views, limit, func(v OrderView) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
	return &page
}

func applyUpdates(order *models.Order, req transitionRequest, at time.Time) {
	order.Status = req.to
	order.Version++
	order.UpdatedAt = at
	switch req.to {
	case enums.OrderStatusPaid:
		order.PaymentStatus = enums.PaymentStatusPaid
		order.PaidAt = &at
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &at
	case enums.OrderStatusCancelled:
		order.CancelledAt = &at
		if req.reason != "" {
			reason := req.reason
			order.CancelReason = &reason
		}
	}
}

// authorize leaves payment and delivery to admin or system principals, since
// both settle money for every vendor on the order. Vendors may only move
// orders they sell on through processing and shipped; buyers change nothing.
func authorize(order *models.Order, req transitionRequest) error {
	switch req.actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return nil
	case enums.ActorRoleBuyer:
		if order.BuyerID != req.actor.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, "payment is confirmed by the payment service, not the buyer")
	case enums.ActorRoleVendor:
		if !sellsOn(order, req.actor.VendorID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order has no lines from vendor")
		}
		switch req.to {
		case enums.OrderStatusProcessing, enums.OrderStatusShipped:
			return nil
		case enums.OrderStatusDelivered:
			return pkgerrors.New(pkgerrors.CodeForbidden, "delivery covers every vendor on the order and is confirmed by an admin")
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, "vendors may only advance fulfillment")
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "role cannot change orders")
}

func sellsOn(order *models.Order, vendorID *uuid.UUID) bool {
	if vendorID == nil {
		return false
	}
	for _, line := range order.Lines {
		if line.VendorID == *vendorID {
			return true
		}
	}
	return false
}

func vendorIDs(order *models.Order) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, line := range order.Lines {
		if !seen[line.VendorID] {
			seen[line.VendorID] = true
			out = append(out, line.VendorID)
		}
	}
	return out
}

// LineRefs projects order lines for event payloads.
func LineRefs(lines []models.OrderLine) []payloads.OrderLineRef {
	refs := make([]payloads.OrderLineRef, 0, len(lines))
	for _, line := range lines {
		refs = append(refs, payloads.OrderLineRef{
			OrderLineID:   line.ID,
			ProductID:     line.ProductID,
			VendorID:      line.VendorID,
			Quantity:      line.Quantity,
			SubtotalCents: line.SubtotalCents,
			FlashSaleID:   line.FlashSaleID,
		})
	}
	return refs
}
