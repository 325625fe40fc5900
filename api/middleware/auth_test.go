package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore-backend/pkg/auth"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer"}

func serveAuth(t *testing.T, header string) (*httptest.ResponseRecorder, Principal, bool) {
	t.Helper()
	var (
		seen   Principal
		called bool
	)
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, called = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp, seen, called
}

func TestAuthRejectsBadCredentials(t *testing.T) {
	buyerToken := mintTestToken(t, testJWT, time.Now(), enums.ActorRoleBuyer, nil)
	foreign := mintTestToken(t, config.JWTConfig{Secret: "secret", Issuer: "someone-else"}, time.Now(), enums.ActorRoleBuyer, nil)
	expired := mintTestToken(t, testJWT, time.Now().Add(-2*time.Hour), enums.ActorRoleBuyer, nil)

	cases := map[string]string{
		"missing header": "",
		"no scheme":      buyerToken,
		"basic scheme":   "Basic " + buyerToken,
		"empty bearer":   "Bearer   ",
		"garbage":        "Bearer invalid",
		"foreign issuer": "Bearer " + foreign,
		"expired":        "Bearer " + expired,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			resp, _, called := serveAuth(t, header)
			assert.Equal(t, http.StatusUnauthorized, resp.Code)
			assert.False(t, called)
		})
	}
}

func TestAuthExpiredTokenMessage(t *testing.T) {
	expired := mintTestToken(t, testJWT, time.Now().Add(-2*time.Hour), enums.ActorRoleBuyer, nil)
	resp, _, _ := serveAuth(t, "Bearer "+expired)
	assert.Contains(t, resp.Body.String(), "token expired")
}

func TestAuthBindsVendorPrincipal(t *testing.T) {
	vendorID := uuid.New()
	resp, principal, called := serveAuth(t, "Bearer "+mintTestToken(t, testJWT, time.Now(), enums.ActorRoleVendor, &vendorID))

	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, called)
	assert.NotEmpty(t, principal.UserID)
	assert.Equal(t, string(enums.ActorRoleVendor), principal.Role)
	assert.Equal(t, vendorID.String(), principal.VendorID)
}

func TestAuthBuyerHasNoVendor(t *testing.T) {
	resp, principal, _ := serveAuth(t, "bearer "+mintTestToken(t, testJWT, time.Now(), enums.ActorRoleBuyer, nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, principal.VendorID)
}

func TestPrincipalAccessorsOnBareContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := PrincipalFromContext(req.Context())
	assert.False(t, ok)
	assert.Empty(t, UserIDFromContext(req.Context()))
	assert.Empty(t, RoleFromContext(req.Context()))
	assert.Empty(t, VendorIDFromContext(req.Context()))
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, issuedAt time.Time, role enums.ActorRole, vendorID *uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, issuedAt, time.Hour, auth.AccessTokenPayload{
		UserID:   uuid.New(),
		VendorID: vendorID,
		Role:     role,
	})
	require.NoError(t, err)
	return token
}
