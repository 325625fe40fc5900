package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

var (
	ErrUnknownRole       = errors.New("unknown actor role")
	ErrVendorIDRequired  = errors.New("vendor tokens require a vendor id")
	ErrUnexpectedVendor  = errors.New("only vendor tokens carry a vendor id")
	ErrSubjectMismatch   = errors.New("subject does not match user id")
	ErrMissingSigningKey = errors.New("jwt secret is required")
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	VendorID *uuid.UUID
	Role     enums.ActorRole
	JTI      string
}

// AccessTokenClaims is the token presented by clients. VendorID is set for
// vendor staff and scopes earnings and payout access.
type AccessTokenClaims struct {
	UserID   uuid.UUID       `json:"user_id"`
	VendorID *uuid.UUID      `json:"vendor_id,omitempty"`
	Role     enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered-claim checks during parsing and before
// signing when minting.
func (c AccessTokenClaims) Validate() error {
	if !c.Role.IsValid() {
		return fmt.Errorf("%w %q", ErrUnknownRole, c.Role)
	}
	if c.UserID == uuid.Nil {
		return errors.New("user id is required")
	}
	if c.Subject != "" && c.Subject != c.UserID.String() {
		return ErrSubjectMismatch
	}
	switch {
	case c.Role == enums.ActorRoleVendor && (c.VendorID == nil || *c.VendorID == uuid.Nil):
		return ErrVendorIDRequired
	case c.Role != enums.ActorRoleVendor && c.VendorID != nil:
		return ErrUnexpectedVendor
	}
	return nil
}
