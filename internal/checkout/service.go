package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketcore-backend/internal/catalog"
	"github.com/angelmondragon/marketcore-backend/internal/checkout/helpers"
	"github.com/angelmondragon/marketcore-backend/internal/flashsale"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
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

type flashSaleReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, input flashsale.ReserveInput) (*flashsale.Reservation, error)
	AttachOrderLine(ctx context.Context, tx *gorm.DB, reservationID, orderLineID uuid.UUID) error
}

// Service executes checkout orchestration.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*orders.OrderView, error)
}

type service struct {
	tx         txRunner
	catalog    catalog.Repository
	ordersRepo orders.Repository
	flashSales flashSaleReserver
	outbox     outboxPublisher
	logg       *logger.Logger
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	catalogRepo catalog.Repository,
	ordersRepo orders.Repository,
	flashSales flashSaleReserver,
	publisher outboxPublisher,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if flashSales == nil {
		return nil, fmt.Errorf("flash sale reserver required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:         tx,
		catalog:    catalogRepo,
		ordersRepo: ordersRepo,
		flashSales: flashSales,
		outbox:     publisher,
		logg:       logg,
	}, nil
}

// CreateOrder validates prices and stock, reserves flash-sale quantity and
// writes the pending order in one transaction. Any failure leaves no trace.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*orders.OrderView, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if err := helpers.ValidateLines(input.Lines); err != nil {
		return nil, err
	}
	requested := helpers.MergeLines(input.Lines)
	at := input.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	var view *orders.OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		catalogRepo := s.catalog.WithTx(tx)
		ordersRepo := s.ordersRepo.WithTx(tx)

		ids := make([]uuid.UUID, 0, len(requested))
		for _, line := range requested {
			ids = append(ids, line.ProductID)
		}
		products, err := catalogRepo.FindByIDs(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
		}

		order := &models.Order{
			ID:            uuid.New(),
			BuyerID:       input.BuyerID,
			Status:        enums.OrderStatusPending,
			PaymentStatus: enums.PaymentStatusUnpaid,
		}
		lines := make([]models.OrderLine, 0, len(requested))
		priced := make([]helpers.PricedLine, 0, len(requested))

		for _, req := range requested {
			product, ok := products[req.ProductID]
			if !ok || !product.IsActive {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"product_id": req.ProductID.String()})
			}

			line := models.OrderLine{
				ID:             uuid.New(),
				OrderID:        order.ID,
				ProductID:      product.ID,
				VendorID:       product.VendorID,
				ProductName:    product.Name,
				UnitPriceCents: product.PriceCents,
				Quantity:       req.Quantity,
			}

			if req.FlashSaleID != nil {
				reservation, err := s.flashSales.Reserve(ctx, tx, flashsale.ReserveInput{
					FlashSaleID: req.FlashSaleID,
					ProductID:   product.ID,
					BuyerID:     input.BuyerID,
					Quantity:    req.Quantity,
					At:          at,
				})
				if err != nil {
					return err
				}
				line.UnitPriceCents = reservation.SalePriceCents
				line.FlashSaleID = req.FlashSaleID
				line.FlashSaleReservationID = &reservation.ID
			}

			decremented, err := catalogRepo.DecrementStock(ctx, product.ID, req.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
			}
			if !decremented {
				return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
					WithDetails(map[string]any{"product_id": product.ID.String(), "name": product.Name})
			}

			line.SubtotalCents = line.UnitPriceCents * int64(line.Quantity)
			lines = append(lines, line)
			priced = append(priced, helpers.PricedLine{
				VendorID:       line.VendorID,
				UnitPriceCents: line.UnitPriceCents,
				Quantity:       line.Quantity,
			})
		}
		order.TotalCents = helpers.ComputeTotal(priced)

		if err := ordersRepo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := ordersRepo.CreateLines(ctx, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order lines")
		}
		buyer := input.BuyerID
		if err := ordersRepo.AppendHistory(ctx, &models.OrderStatusHistory{
			OrderID:   order.ID,
			Status:    enums.OrderStatusPending,
			ActorID:   &buyer,
			ActorRole: enums.ActorRoleBuyer,
			CreatedAt: at,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}

		for _, line := range lines {
			if line.FlashSaleReservationID == nil {
				continue
			}
			if err := s.flashSales.AttachOrderLine(ctx, tx, *line.FlashSaleReservationID, line.ID); err != nil {
				return err
			}
		}

		if err := s.emitOrderCreated(ctx, tx, order, lines, at); err != nil {
			return err
		}

		order.Lines = lines
		created := orders.NewOrderView(*order)
		view = &created
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, view.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"lines": len(view.Lines), "total_cents": view.TotalCents})
		s.logg.Info(logCtx, "order created")
	}
	return view, nil
}

func (s *service) emitOrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order, lines []models.OrderLine, at time.Time) error {
	buyer := order.BuyerID
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: &buyer, Role: enums.ActorRoleBuyer},
		Data: payloads.OrderCreatedEvent{
			OrderID:    order.ID,
			BuyerID:    order.BuyerID,
			TotalCents: order.TotalCents,
			Lines:      orders.LineRefs(lines),
		},
		Version:    1,
		OccurredAt: at,
	})
}
