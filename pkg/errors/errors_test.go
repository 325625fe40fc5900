package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		details   bool
	}{
		{CodeValidation, http.StatusBadRequest, false, true},
		{CodeUnauthorized, http.StatusUnauthorized, false, false},
		{CodeNotFound, http.StatusNotFound, false, false},
		{CodeStateConflict, http.StatusUnprocessableEntity, false, true},
		{CodeRateLimit, http.StatusTooManyRequests, false, false},
		{CodeInternal, http.StatusInternalServerError, true, false},
		{CodeDependency, http.StatusServiceUnavailable, true, true},
		{CodeConcurrentUpdate, http.StatusConflict, true, false},
		{CodeInvalidTransition, http.StatusConflict, false, true},
		{CodeSettledFundsIrreversible, http.StatusConflict, false, true},
		{CodeInsufficientBalance, http.StatusUnprocessableEntity, false, true},
		{CodeInvalidAmount, http.StatusBadRequest, false, false},
		{CodePayoutFinalized, http.StatusConflict, false, true},
		{CodeMissingTransactionID, http.StatusBadRequest, false, false},
		{CodeMissingRejectionReason, http.StatusBadRequest, false, false},
		{CodeSaleNotActive, http.StatusConflict, false, true},
		{CodeSoldOut, http.StatusConflict, false, true},
		{CodeInsufficientRemaining, http.StatusConflict, false, true},
		{CodeNoActiveCommissionRate, http.StatusInternalServerError, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			require.True(t, Known(tt.code))
			meta := MetadataFor(tt.code)
			assert.Equal(t, tt.status, meta.HTTPStatus)
			assert.Equal(t, tt.retryable, meta.Retryable)
			assert.Equal(t, tt.details, meta.DetailsAllowed)
			assert.NotEmpty(t, meta.PublicMessage)
		})
	}
}

func TestUnknownCodeFallsBackToInternal(t *testing.T) {
	assert.False(t, Known("SOMETHING_UNKNOWN"))
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestErrorAccessors(t *testing.T) {
	e := Newf(CodeValidation, "missing %s", "foo")
	assert.Equal(t, CodeValidation, e.Code())
	assert.Equal(t, "missing foo", e.Message())
	assert.Nil(t, e.Details())
	assert.Equal(t, "VALIDATION_ERROR: missing foo", e.Error())

	assert.Same(t, e, e.WithDetails(map[string]any{"field": "foo"}))
	assert.Equal(t, map[string]any{"field": "foo"}, e.Details())

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Empty(t, nilErr.Error())
	assert.Nil(t, nilErr.WithDetails("x"))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "insert earning")

	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "CONFLICT: insert earning: boom", wrapped.Error())
	assert.Equal(t, "insert earning", wrapped.Message(), "the message never carries the cause")

	assert.NoError(t, Wrap(CodeConflict, nil, "no cause").Unwrap())
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("advance: %w", New(CodeInvalidTransition, "delivered -> pending"))

	assert.ErrorIs(t, err, New(CodeInvalidTransition, ""))
	assert.NotErrorIs(t, err, New(CodeConflict, ""))
	assert.NotErrorIs(t, err, stdErrors.New("INVALID_TRANSITION"))
}

func TestIsCodeAndRetryableFollowWrapping(t *testing.T) {
	outer := fmt.Errorf("advance: %w", New(CodeConcurrentUpdate, "order changed"))

	assert.True(t, IsCode(outer, CodeConcurrentUpdate))
	assert.False(t, IsCode(outer, CodeConflict))
	assert.True(t, Retryable(outer))
	assert.False(t, Retryable(stdErrors.New("plain")))
	assert.False(t, IsCode(nil, CodeInternal))
}

func TestAsReturnsOutermost(t *testing.T) {
	inner := New(CodeNotFound, "order")
	outer := Wrap(CodeDependency, fmt.Errorf("load: %w", inner), "ledger")

	got := As(outer)
	require.NotNil(t, got)
	assert.Equal(t, CodeDependency, got.Code())
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))
}
