package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAcceptsKnownValuesAndTrims(t *testing.T) {
	status, err := ParseOrderStatus(" shipped ")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, status)

	role, err := ParseActorRole("vendor")
	require.NoError(t, err)
	assert.Equal(t, ActorRoleVendor, role)
}

func TestParseRejectsUnknownAndCaseMismatch(t *testing.T) {
	_, err := ParsePaymentStatus("PAID")
	assert.EqualError(t, err, `invalid payment status "PAID"`)

	_, err = ParseOutboxEventType("order_shipped")
	assert.Error(t, err)

	_, err = ParseNotificationType("")
	assert.Error(t, err)
}

func TestOrderStatusTerminality(t *testing.T) {
	for _, s := range validOrderStatuses {
		want := s == OrderStatusDelivered || s == OrderStatusCancelled
		assert.Equal(t, want, s.IsTerminal(), string(s))
	}
	assert.False(t, OrderStatus("archived").IsValid())
}
