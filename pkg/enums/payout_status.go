package enums

import (
	"fmt"
	"slices"
)

// PayoutStatus tracks a vendor withdrawal request.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusRejected   PayoutStatus = "rejected"
	PayoutStatusFailed     PayoutStatus = "failed"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusProcessing,
	PayoutStatusCompleted,
	PayoutStatusRejected,
	PayoutStatusFailed,
}

// IsValid reports whether the value is a known payout status.
func (s PayoutStatus) IsValid() bool {
	return slices.Contains(validPayoutStatuses, s)
}

// IsOutstanding reports whether the payout still reserves vendor balance.
func (s PayoutStatus) IsOutstanding() bool {
	return s == PayoutStatusPending || s == PayoutStatusProcessing
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	return parse("payout status", validPayoutStatuses, value)
}

// PayoutDecision is the admin resolution applied to an outstanding payout.
type PayoutDecision string

const (
	PayoutDecisionCompleted PayoutDecision = "completed"
	PayoutDecisionRejected  PayoutDecision = "rejected"
)

// IsValid reports whether the decision is completed or rejected.
func (d PayoutDecision) IsValid() bool {
	return d == PayoutDecisionCompleted || d == PayoutDecisionRejected
}

// ParsePayoutDecision converts raw input into a PayoutDecision.
func ParsePayoutDecision(value string) (PayoutDecision, error) {
	decision := PayoutDecision(value)
	if !decision.IsValid() {
		return "", fmt.Errorf("invalid payout decision %q", value)
	}
	return decision, nil
}
