// Package registry routes outbox rows to bus topics and decodes their typed
// payloads on both sides of the bus.
package registry

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
)

// EventDescriptor binds an event type to its aggregate, topic and payload type.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row with its envelope and payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that no number of retries will publish.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		Topic:          topic,
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry routes order and flash-sale events to the orders topic
// (flash sales get their own topic when configured) and settlement events
// to the payouts topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.OrdersTopic == "":
		return nil, errors.New("orders topic is required")
	case cfg.PayoutsTopic == "":
		return nil, errors.New("payouts topic is required")
	}
	orders, payouts := cfg.OrdersTopic, cfg.PayoutsTopic
	flashSales := cmp.Or(cfg.FlashSalesTopic, orders)

	routes := []EventDescriptor{
		route[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder, orders),
		route[payloads.OrderPaidEvent](enums.EventOrderPaid, enums.AggregateOrder, orders),
		route[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder, orders),
		route[payloads.OrderDeliveredEvent](enums.EventOrderDelivered, enums.AggregateOrder, orders),
		route[payloads.OrderCancelledEvent](enums.EventOrderCancelled, enums.AggregateOrder, orders),

		route[payloads.EarningsEvent](enums.EventEarningsSettled, enums.AggregateOrder, payouts),
		route[payloads.EarningsEvent](enums.EventEarningsMatured, enums.AggregateOrder, payouts),
		route[payloads.EarningsEvent](enums.EventEarningsReversed, enums.AggregateOrder, payouts),
		route[payloads.PayoutRequestedEvent](enums.EventPayoutRequested, enums.AggregatePayout, payouts),
		route[payloads.PayoutDecidedEvent](enums.EventPayoutDecided, enums.AggregatePayout, payouts),
		route[payloads.CommissionRateChangedEvent](enums.EventCommissionRateChanged, enums.AggregateCommissionRate, payouts),

		route[payloads.FlashSaleReleasedEvent](enums.EventFlashSaleReleased, enums.AggregateFlashSale, flashSales),
		route[payloads.FlashSaleExpiredEvent](enums.EventFlashSaleExpired, enums.AggregateFlashSale, flashSales),
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(routes))}
	for _, d := range routes {
		if _, dup := reg.entries[d.EventType]; dup {
			return nil, fmt.Errorf("event type %s routed twice", d.EventType)
		}
		reg.entries[d.EventType] = d
	}
	return reg, nil
}

// Descriptor looks up the route for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	d, ok := r.entries[eventType]
	return d, ok
}

// Topics lists the distinct topics, sorted.
func (r *EventRegistry) Topics() []string {
	set := make(map[string]struct{}, 3)
	for _, d := range r.entries {
		set[d.Topic] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

// Decoders builds the consumer-side registry from the same payload types,
// registered as version 1.
func (r *EventRegistry) Decoders() *DecoderRegistry {
	decoders := NewDecoderRegistry()
	for eventType, d := range r.entries {
		factory := d.PayloadFactory
		decoders.Register(eventType, 1, func(payload json.RawMessage) (any, error) {
			target := factory()
			if err := json.Unmarshal(payload, target); err != nil {
				return nil, err
			}
			return target, nil
		})
	}
	return decoders
}

// Resolve checks a row against its route and decodes the payload. Every
// failure is non-retryable: the row itself is wrong.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	d, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case d.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", d.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := d.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: d, Envelope: envelope, Payload: payload}, nil
}
