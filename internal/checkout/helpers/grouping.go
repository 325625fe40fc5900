package helpers

import "github.com/google/uuid"

type lineKey struct {
	productID   uuid.UUID
	flashSaleID uuid.UUID
}

// MergeLines folds repeated (product, flash sale) pairs into one line so each
// product is reserved and decremented once. Input order is preserved.
func MergeLines(lines []LineRequest) []LineRequest {
	index := make(map[lineKey]int, len(lines))
	merged := make([]LineRequest, 0, len(lines))
	for _, line := range lines {
		key := lineKey{productID: line.ProductID}
		if line.FlashSaleID != nil {
			key.flashSaleID = *line.FlashSaleID
		}
		if i, ok := index[key]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

// PricedLine is a line after prices were captured.
type PricedLine struct {
	VendorID       uuid.UUID
	UnitPriceCents int64
	Quantity       int
}

// Subtotal is unit price times quantity.
func (l PricedLine) Subtotal() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// ComputeTotalsByVendor sums line subtotals per vendor.
func ComputeTotalsByVendor(lines []PricedLine) map[uuid.UUID]int64 {
	totals := make(map[uuid.UUID]int64)
	for _, line := range lines {
		totals[line.VendorID] += line.Subtotal()
	}
	return totals
}

// ComputeTotal sums every line subtotal.
func ComputeTotal(lines []PricedLine) int64 {
	var total int64
	for _, line := range lines {
		total += line.Subtotal()
	}
	return total
}
