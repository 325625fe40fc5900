package enums

import "slices"

// EarningStatus tracks a vendor's share of one order line.
type EarningStatus string

const (
	EarningStatusPending   EarningStatus = "pending"
	EarningStatusAvailable EarningStatus = "available"
	EarningStatusPaid      EarningStatus = "paid"
	EarningStatusReversed  EarningStatus = "reversed"
)

var validEarningStatuses = []EarningStatus{
	EarningStatusPending,
	EarningStatusAvailable,
	EarningStatusPaid,
	EarningStatusReversed,
}

// IsValid reports whether the value is a known earning status.
func (s EarningStatus) IsValid() bool {
	return slices.Contains(validEarningStatuses, s)
}

// ParseEarningStatus converts raw input into an EarningStatus.
func ParseEarningStatus(value string) (EarningStatus, error) {
	return parse("earning status", validEarningStatuses, value)
}
