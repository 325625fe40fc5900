package enums

import "slices"

// FlashSaleStatus marks whether an allocation can still be reserved against.
type FlashSaleStatus string

const (
	FlashSaleStatusActive  FlashSaleStatus = "active"
	FlashSaleStatusExpired FlashSaleStatus = "expired"
)

var validFlashSaleStatuses = []FlashSaleStatus{
	FlashSaleStatusActive,
	FlashSaleStatusExpired,
}

func (s FlashSaleStatus) IsValid() bool {
	return slices.Contains(validFlashSaleStatuses, s)
}

func ParseFlashSaleStatus(value string) (FlashSaleStatus, error) {
	return parse("flash sale status", validFlashSaleStatuses, value)
}
