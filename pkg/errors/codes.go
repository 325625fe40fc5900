package errors

import "net/http"

// Code is the stable, client-visible identifier of a failure.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// CodeConcurrentUpdate reports a lost race on a versioned row; the caller may retry.
	CodeConcurrentUpdate Code = "CONCURRENT_UPDATE"
)

// Settlement codes.
const (
	CodeInvalidTransition        Code = "INVALID_TRANSITION"
	CodeSettledFundsIrreversible Code = "SETTLED_FUNDS_NOT_REVERSIBLE"
	CodeInsufficientBalance      Code = "INSUFFICIENT_BALANCE"
	CodeInvalidAmount            Code = "INVALID_AMOUNT"
	CodePayoutFinalized          Code = "PAYOUT_ALREADY_FINALIZED"
	CodeMissingTransactionID     Code = "MISSING_TRANSACTION_ID"
	CodeMissingRejectionReason   Code = "MISSING_REJECTION_REASON"
	CodeSaleNotActive            Code = "SALE_NOT_ACTIVE"
	CodeSoldOut                  Code = "SOLD_OUT"
	CodeInsufficientRemaining    Code = "INSUFFICIENT_REMAINING"
	CodeNoActiveCommissionRate   Code = "NO_ACTIVE_COMMISSION_RATE"
)

// Metadata is how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retry     = true
	noRetry   = false
	details   = true
	noDetails = false
)

var catalog = map[Code]Metadata{
	CodeValidation:       {http.StatusBadRequest, noRetry, "validation failed", details},
	CodeUnauthorized:     {http.StatusUnauthorized, noRetry, "authentication required", noDetails},
	CodeForbidden:        {http.StatusForbidden, noRetry, "access denied", noDetails},
	CodeNotFound:         {http.StatusNotFound, noRetry, "resource not found", noDetails},
	CodeConflict:         {http.StatusConflict, noRetry, "conflict detected", noDetails},
	CodeStateConflict:    {http.StatusUnprocessableEntity, noRetry, "state transition disallowed", details},
	CodeIdempotency:      {http.StatusConflict, noRetry, "idempotency key reused", details},
	CodeRateLimit:        {http.StatusTooManyRequests, noRetry, "rate limit exceeded", noDetails},
	CodeInternal:         {http.StatusInternalServerError, retry, "internal server error", noDetails},
	CodeDependency:       {http.StatusServiceUnavailable, retry, "dependency unavailable", details},
	CodeConcurrentUpdate: {http.StatusConflict, retry, "resource was modified concurrently, retry", noDetails},

	CodeInvalidTransition:        {http.StatusConflict, noRetry, "order status transition not allowed", details},
	CodeSettledFundsIrreversible: {http.StatusConflict, noRetry, "settled funds cannot be reversed", details},
	CodeInsufficientBalance:      {http.StatusUnprocessableEntity, noRetry, "insufficient available balance", details},
	CodeInvalidAmount:            {http.StatusBadRequest, noRetry, "amount must be greater than zero", noDetails},
	CodePayoutFinalized:          {http.StatusConflict, noRetry, "payout already finalized", details},
	CodeMissingTransactionID:     {http.StatusBadRequest, noRetry, "transaction id is required to complete a payout", noDetails},
	CodeMissingRejectionReason:   {http.StatusBadRequest, noRetry, "rejection reason is required to reject a payout", noDetails},
	CodeSaleNotActive:            {http.StatusConflict, noRetry, "flash sale is not active", details},
	CodeSoldOut:                  {http.StatusConflict, noRetry, "flash sale sold out", details},
	CodeInsufficientRemaining:    {http.StatusConflict, noRetry, "not enough flash sale quantity remaining", details},
	CodeNoActiveCommissionRate:   {http.StatusInternalServerError, noRetry, "no active commission rate", noDetails},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := catalog[code]; ok {
		return meta
	}
	return catalog[CodeInternal]
}

// Known reports whether code has an entry in the catalog.
func Known(code Code) bool {
	_, ok := catalog[code]
	return ok
}
