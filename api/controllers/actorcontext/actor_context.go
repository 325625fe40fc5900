package actorcontext

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/api/middleware"
	"github.com/angelmondragon/marketcore-backend/api/validators"
	internalorders "github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

// ResolveUserID returns the authenticated user.
func ResolveUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return id, nil
}

// ResolveVendorID extracts the vendor the caller acts for and enforces vendor access.
func ResolveVendorID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.VendorIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor id")
	}
	return id, nil
}

// ResolveActor builds the order actor from the token claims.
func ResolveActor(r *http.Request) (internalorders.Actor, error) {
	userID, err := ResolveUserID(r)
	if err != nil {
		return internalorders.Actor{}, err
	}
	actor := internalorders.Actor{
		UserID: userID,
		Role:   enums.ActorRole(middleware.RoleFromContext(r.Context())),
	}
	if !actor.Role.IsValid() || actor.Role == enums.ActorRoleSystem {
		return internalorders.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted")
	}
	if actor.Role == enums.ActorRoleVendor {
		vendorID, err := ResolveVendorID(r)
		if err != nil {
			return internalorders.Actor{}, err
		}
		actor.VendorID = &vendorID
	}
	return actor, nil
}

// PathUUID parses a chi URL parameter as a UUID.
func PathUUID(r *http.Request, param, label string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, label+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label)
	}
	return id, nil
}

// PageParams reads limit and cursor query parameters.
func PageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
