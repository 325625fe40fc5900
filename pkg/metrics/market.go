package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics counts domain outcomes that matter during incidents:
// rejected transitions, flash-sale contention and commission fallbacks.
type MarketMetrics struct {
	transitions        *prometheus.CounterVec
	reservations       *prometheus.CounterVec
	payoutDecisions    *prometheus.CounterVec
	outboxPublishes    *prometheus.CounterVec
	commissionFallback prometheus.Counter
}

// NewMarketMetrics registers the domain counters. A nil registerer yields a no-op recorder.
func NewMarketMetrics(reg prometheus.Registerer) *MarketMetrics {
	if reg == nil {
		return &MarketMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order status transitions by target status and outcome.",
	}, []string{"to", "outcome"})
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flash_sale_reservations_total",
		Help: "Flash-sale reserve attempts by outcome.",
	}, []string{"outcome"})
	payoutDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_decisions_total",
		Help: "Payout resolutions by final status.",
	}, []string{"status"})
	outboxPublishes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_total",
		Help: "Outbox relay attempts by topic and outcome.",
	}, []string{"topic", "outcome"})
	fallback := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "commission_floor_fallback_total",
		Help: "Settlements that used the platform floor commission rate.",
	})
	reg.MustRegister(transitions, reservations, payoutDecisions, outboxPublishes, fallback)
	return &MarketMetrics{
		transitions:        transitions,
		reservations:       reservations,
		payoutDecisions:    payoutDecisions,
		outboxPublishes:    outboxPublishes,
		commissionFallback: fallback,
	}
}

// ObserveTransition records an accepted or rejected order transition.
func (m *MarketMetrics) ObserveTransition(to string, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to), normalizeLabel(outcome)).Inc()
}

// ObserveReservation records a flash-sale reserve outcome.
func (m *MarketMetrics) ObserveReservation(outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObservePayoutDecision records the terminal status of a processed payout.
func (m *MarketMetrics) ObservePayoutDecision(status string) {
	if m == nil || m.payoutDecisions == nil {
		return
	}
	m.payoutDecisions.WithLabelValues(normalizeLabel(status)).Inc()
}

// ObserveOutboxPublish records one relay attempt: published, retry or dead_lettered.
func (m *MarketMetrics) ObserveOutboxPublish(topic string, outcome string) {
	if m == nil || m.outboxPublishes == nil {
		return
	}
	m.outboxPublishes.WithLabelValues(normalizeLabel(topic), normalizeLabel(outcome)).Inc()
}

// IncCommissionFallback counts a resolution that fell through to the floor rate.
func (m *MarketMetrics) IncCommissionFallback() {
	if m == nil || m.commissionFallback == nil {
		return
	}
	m.commissionFallback.Inc()
}
