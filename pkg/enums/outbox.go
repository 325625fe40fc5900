package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder          OutboxAggregateType = "order"
	AggregateEarning        OutboxAggregateType = "earning"
	AggregatePayout         OutboxAggregateType = "payout"
	AggregateFlashSale      OutboxAggregateType = "flash_sale"
	AggregateCommissionRate OutboxAggregateType = "commission_rate"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateEarning,
	AggregatePayout,
	AggregateFlashSale,
	AggregateCommissionRate,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", validAggregateTypes, value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderPaid             OutboxEventType = "order_paid"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
	EventOrderDelivered        OutboxEventType = "order_delivered"
	EventOrderCancelled        OutboxEventType = "order_cancelled"
	EventEarningsSettled       OutboxEventType = "earnings_settled"
	EventEarningsMatured       OutboxEventType = "earnings_matured"
	EventEarningsReversed      OutboxEventType = "earnings_reversed"
	EventPayoutRequested       OutboxEventType = "payout_requested"
	EventPayoutDecided         OutboxEventType = "payout_decided"
	EventFlashSaleReleased     OutboxEventType = "flash_sale_released"
	EventFlashSaleExpired      OutboxEventType = "flash_sale_expired"
	EventCommissionRateChanged OutboxEventType = "commission_rate_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderStatusChanged,
	EventOrderDelivered,
	EventOrderCancelled,
	EventEarningsSettled,
	EventEarningsMatured,
	EventEarningsReversed,
	EventPayoutRequested,
	EventPayoutDecided,
	EventFlashSaleReleased,
	EventFlashSaleExpired,
	EventCommissionRateChanged,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", validOutboxEventTypes, value)
}
