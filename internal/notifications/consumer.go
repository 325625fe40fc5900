package notifications

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/registry"
	"github.com/google/uuid"
)

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Receiver is the subscription side the consumer pulls from.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type processedTracker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns order and payout domain events into vendor notifications.
type Consumer struct {
	name         string
	repo         repository
	subscription Receiver
	decoders     *registry.DecoderRegistry
	idempotency  processedTracker
	logg         *logger.Logger
}

// NewConsumer builds a notification consumer. The name scopes idempotency keys,
// so each subscription needs its own.
func NewConsumer(name string, repo repository, subscription Receiver, decoders *registry.DecoderRegistry, tracker processedTracker, logg *logger.Logger) (*Consumer, error) {
	if name == "" {
		return nil, fmt.Errorf("consumer name required")
	}
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if decoders == nil {
		return nil, fmt.Errorf("payload decoders required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		name:         name,
		repo:         repo,
		subscription: subscription,
		decoders:     decoders,
		idempotency:  tracker,
		logg:         logg,
	}, nil
}

// Name reports the consumer name used for idempotency keys.
func (c *Consumer) Name() string {
	return c.name
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes["event_type"], msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process returns true when the message should be acked. Undecodable
// messages are acked and logged because redelivery cannot fix them.
func (c *Consumer) process(ctx context.Context, messageID, eventType string, data []byte) bool {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"consumer":   c.name,
		"message_id": messageID,
		"event_type": eventType,
	})

	if !handled(enums.OutboxEventType(eventType)) {
		return true
	}

	msg, err := c.decoders.DecodeMessage(enums.OutboxEventType(eventType), data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode message", err)
		return true
	}
	eventID := msg.EventID

	claimed, err := c.idempotency.Claim(ctx, c.name, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return false
	}
	if !claimed {
		c.logg.Info(logCtx, "event already processed")
		return true
	}

	created, err := c.handle(ctx, eventID, msg.Payload)
	if err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		if relErr := c.idempotency.Release(ctx, c.name, eventID); relErr != nil {
			c.logg.Error(logCtx, "failed to release idempotency claim", relErr)
		}
		return false
	}
	if created > 0 {
		c.logg.Info(c.logg.WithField(logCtx, "notifications", created), "vendors notified")
	}
	return true
}

func handled(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventOrderCreated,
		enums.EventOrderPaid,
		enums.EventOrderStatusChanged,
		enums.EventOrderDelivered,
		enums.EventOrderCancelled,
		enums.EventPayoutDecided:
		return true
	}
	return false
}

func (c *Consumer) handle(ctx context.Context, eventID uuid.UUID, payload any) (int, error) {
	var drafts []models.Notification
	switch event := payload.(type) {
	case *payloads.OrderCreatedEvent:
		for _, vendorID := range lineVendors(event.Lines) {
			drafts = append(drafts, orderAlert(vendorID, event.OrderID,
				"New order received",
				fmt.Sprintf("Order %s was placed and is awaiting payment.", shortID(event.OrderID))))
		}
	case *payloads.OrderPaidEvent:
		for _, vendorID := range lineVendors(event.Lines) {
			drafts = append(drafts, orderAlert(vendorID, event.OrderID,
				"Order paid",
				fmt.Sprintf("Order %s was paid and is ready to process.", shortID(event.OrderID))))
		}
	case *payloads.OrderStatusChangedEvent:
		// paid, delivered and cancelled have their own events.
		if event.To != enums.OrderStatusProcessing && event.To != enums.OrderStatusShipped {
			return 0, nil
		}
		for _, vendorID := range event.VendorIDs {
			drafts = append(drafts, orderAlert(vendorID, event.OrderID,
				"Order updated",
				fmt.Sprintf("Order %s moved from %s to %s.", shortID(event.OrderID), event.From, event.To)))
		}
	case *payloads.OrderDeliveredEvent:
		for _, vendorID := range event.VendorIDs {
			drafts = append(drafts, orderAlert(vendorID, event.OrderID,
				"Order delivered",
				fmt.Sprintf("Order %s was delivered. Earnings for it are now available.", shortID(event.OrderID))))
		}
	case *payloads.OrderCancelledEvent:
		message := fmt.Sprintf("Order %s was cancelled.", shortID(event.OrderID))
		if event.Reason != "" {
			message = fmt.Sprintf("Order %s was cancelled. Reason: %s", shortID(event.OrderID), event.Reason)
		}
		for _, vendorID := range event.VendorIDs {
			drafts = append(drafts, orderAlert(vendorID, event.OrderID, "Order cancelled", message))
		}
	case *payloads.PayoutDecidedEvent:
		draft, ok := payoutNotification(event)
		if !ok {
			return 0, nil
		}
		drafts = append(drafts, draft)
	default:
		return 0, nil
	}

	for i := range drafts {
		drafts[i].EventID = &eventID
		if err := c.repo.Create(ctx, &drafts[i]); err != nil {
			return i, err
		}
	}
	return len(drafts), nil
}

func payoutNotification(event *payloads.PayoutDecidedEvent) (models.Notification, bool) {
	link := fmt.Sprintf("/vendor/payouts/%s", event.PayoutID)
	amount := formatCents(event.AmountCents)
	switch event.Status {
	case enums.PayoutStatusCompleted:
		message := fmt.Sprintf("Your payout of %s has been sent.", amount)
		if event.TransactionID != "" {
			message = fmt.Sprintf("Your payout of %s has been sent. Transaction: %s", amount, event.TransactionID)
		}
		return models.Notification{
			VendorID: event.VendorID,
			Type:     enums.NotificationTypePayoutCompleted,
			Title:    "Payout completed",
			Message:  message,
			Link:     &link,
		}, true
	case enums.PayoutStatusRejected:
		return models.Notification{
			VendorID: event.VendorID,
			Type:     enums.NotificationTypePayoutRejected,
			Title:    "Payout rejected",
			Message:  fmt.Sprintf("Your payout request of %s was rejected. Reason: %s", amount, event.RejectionReason),
			Link:     &link,
		}, true
	}
	return models.Notification{}, false
}

func orderAlert(vendorID, orderID uuid.UUID, title, message string) models.Notification {
	link := fmt.Sprintf("/vendor/orders/%s", orderID)
	return models.Notification{
		VendorID: vendorID,
		Type:     enums.NotificationTypeOrderAlert,
		Title:    title,
		Message:  message,
		Link:     &link,
	}
}

func lineVendors(lines []payloads.OrderLineRef) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	vendors := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.VendorID]; ok {
			continue
		}
		seen[line.VendorID] = struct{}{}
		vendors = append(vendors, line.VendorID)
	}
	return vendors
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
