package checkout

import (
	"time"

	"github.com/angelmondragon/marketcore-backend/internal/checkout/helpers"
	"github.com/google/uuid"
)

// CreateOrderInput is a buyer's checkout request. Lines with a FlashSaleID
// are priced at the sale price and reserve quantity from the allocation.
type CreateOrderInput struct {
	BuyerID uuid.UUID
	Lines   []helpers.LineRequest
	At      time.Time
}
