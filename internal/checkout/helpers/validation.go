package helpers

import (
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

// MaxLinesPerOrder bounds how many distinct lines one checkout may carry.
const MaxLinesPerOrder = 50

// LineRequest is one requested product in a checkout.
type LineRequest struct {
	ProductID   uuid.UUID
	Quantity    int
	FlashSaleID *uuid.UUID
}

// ValidateLines rejects empty checkouts, non-positive quantities and oversized orders.
func ValidateLines(lines []LineRequest) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one line")
	}
	if len(lines) > MaxLinesPerOrder {
		return pkgerrors.New(pkgerrors.CodeValidation, "too many order lines").
			WithDetails(map[string]any{"max_lines": MaxLinesPerOrder})
	}
	for i, line := range lines {
		if line.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required").
				WithDetails(map[string]any{"line": i})
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero").
				WithDetails(map[string]any{"line": i})
		}
	}
	return nil
}
