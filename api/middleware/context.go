package middleware

import "context"

// Principal is the authenticated caller as seen by handlers. Values are kept
// as strings; actorcontext parses them at the edge of each controller.
type Principal struct {
	UserID   string
	Role     string
	VendorID string
}

type principalKey struct{}

// WithPrincipal binds p to ctx, replacing any earlier principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.UserID
}

func RoleFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}

// VendorIDFromContext is "" for buyers and admins.
func VendorIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.VendorID
}
