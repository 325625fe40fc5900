package orders

import "github.com/angelmondragon/marketcore-backend/pkg/enums"

// transitions is the single authority on order lifecycle moves. delivered and
// cancelled have no outgoing edges.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusPaid, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:       {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered},
}

// CanTransition reports whether an order in from may move to to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from current in one step.
func NextStatuses(current enums.OrderStatus) []enums.OrderStatus {
	next := transitions[current]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}
