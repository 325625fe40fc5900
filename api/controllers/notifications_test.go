package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore-backend/api/middleware"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

type stubNotifications struct {
	listed      *notifications.ListParams
	markedRead  [2]uuid.UUID
	markAllFor  uuid.UUID
	markReadErr error
	updated     int64
}

func (s *stubNotifications) List(_ context.Context, params notifications.ListParams) (*pagination.Page[notifications.NotificationView], error) {
	s.listed = &params
	return &pagination.Page[notifications.NotificationView]{Items: []notifications.NotificationView{{ID: uuid.New(), Type: enums.NotificationTypePayoutCompleted}}}, nil
}

func (s *stubNotifications) MarkRead(_ context.Context, vendorID, notificationID uuid.UUID) error {
	s.markedRead = [2]uuid.UUID{vendorID, notificationID}
	return s.markReadErr
}

func (s *stubNotifications) MarkAllRead(_ context.Context, vendorID uuid.UUID) (int64, error) {
	s.markAllFor = vendorID
	return s.updated, nil
}

func vendorRequest(method, target, vendorID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if vendorID == "" {
		return req
	}
	return req.WithContext(middleware.WithPrincipal(req.Context(), middleware.Principal{
		UserID:   uuid.NewString(),
		Role:     string(enums.ActorRoleVendor),
		VendorID: vendorID,
	}))
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestListNotificationsPassesFilters(t *testing.T) {
	vendorID := uuid.New()
	svc := &stubNotifications{}
	req := vendorRequest(http.MethodGet, "/api/v1/notifications?limit=5&cursor=abc&unreadOnly=true", vendorID.String())

	resp := httptest.NewRecorder()
	ListNotifications(svc, discardLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, svc.listed)
	assert.Equal(t, notifications.ListParams{VendorID: vendorID, Limit: 5, Cursor: "abc", UnreadOnly: true}, *svc.listed)
}

func TestListNotificationsRejectsBadQuery(t *testing.T) {
	for _, query := range []string{"limit=0", "limit=500", "unreadOnly=maybe"} {
		t.Run(query, func(t *testing.T) {
			svc := &stubNotifications{}
			resp := httptest.NewRecorder()
			ListNotifications(svc, discardLogger())(resp, vendorRequest(http.MethodGet, "/api/v1/notifications?"+query, uuid.NewString()))
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Nil(t, svc.listed)
		})
	}
}

func TestMarkNotificationRead(t *testing.T) {
	vendorID := uuid.New()
	notificationID := uuid.New()

	cases := []struct {
		name       string
		vendor     string
		param      string
		serviceErr error
		wantStatus int
	}{
		{name: "marks", vendor: vendorID.String(), param: notificationID.String(), wantStatus: http.StatusOK},
		{name: "no vendor context", param: notificationID.String(), wantStatus: http.StatusForbidden},
		{name: "malformed vendor", vendor: "bad", param: notificationID.String(), wantStatus: http.StatusBadRequest},
		{name: "malformed id", vendor: vendorID.String(), param: "invalid", wantStatus: http.StatusBadRequest},
		{
			name:       "someone else's notification",
			vendor:     vendorID.String(),
			param:      notificationID.String(),
			serviceErr: pkgerrors.New(pkgerrors.CodeNotFound, "notification not found"),
			wantStatus: http.StatusNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubNotifications{markReadErr: tc.serviceErr}
			req := addRouteParam(vendorRequest(http.MethodPost, "/api/v1/notifications/x/read", tc.vendor), "notificationId", tc.param)
			resp := httptest.NewRecorder()
			MarkNotificationRead(svc, discardLogger())(resp, req)

			require.Equal(t, tc.wantStatus, resp.Code)
			if tc.wantStatus != http.StatusOK {
				return
			}
			assert.Equal(t, [2]uuid.UUID{vendorID, notificationID}, svc.markedRead)
			var envelope struct {
				Data map[string]bool `json:"data"`
			}
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
			assert.True(t, envelope.Data["read"])
		})
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	vendorID := uuid.New()
	svc := &stubNotifications{updated: 5}

	resp := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, discardLogger())(resp, vendorRequest(http.MethodPost, "/api/v1/notifications/read-all", vendorID.String()))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, vendorID, svc.markAllFor)
	var envelope struct {
		Data map[string]int64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.EqualValues(t, 5, envelope.Data["updated"])
}

func TestNotificationHandlersRequireService(t *testing.T) {
	resp := httptest.NewRecorder()
	ListNotifications(nil, discardLogger())(resp, vendorRequest(http.MethodGet, "/api/v1/notifications", uuid.NewString()))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}
