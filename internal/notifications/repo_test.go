package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/marketcore-backend/internal/testsupport/sqlitetest"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedNotification(t *testing.T, repo Repository, vendorID uuid.UUID, eventID *uuid.UUID) models.Notification {
	t.Helper()
	n := models.Notification{
		VendorID: vendorID,
		Type:     enums.NotificationTypeOrderAlert,
		Title:    "Order paid",
		Message:  "Order paid.",
		EventID:  eventID,
	}
	require.NoError(t, repo.Create(context.Background(), &n))
	return n
}

func TestRepositoryCreateIgnoresRedeliveredEvent(t *testing.T) {
	client := sqlitetest.Open(t)
	repo := NewRepository(client.DB())
	vendorID := uuid.New()
	eventID := uuid.New()

	seedNotification(t, repo, vendorID, &eventID)
	seedNotification(t, repo, vendorID, &eventID)
	seedNotification(t, repo, uuid.New(), &eventID)

	var count int64
	require.NoError(t, client.DB().Model(&models.Notification{}).Where("event_id = ?", eventID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestRepositoryListPagesNewestFirst(t *testing.T) {
	client := sqlitetest.Open(t)
	repo := NewRepository(client.DB())
	vendorID := uuid.New()
	for i := 0; i < 3; i++ {
		seedNotification(t, repo, vendorID, nil)
	}
	seedNotification(t, repo, uuid.New(), nil)

	rows, err := repo.List(context.Background(), listNotificationsParams{VendorID: vendorID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 3, "limit plus one lookahead row")

	page := pagination.BuildPage(rows, 2, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	cursor, err := pagination.ParseCursor(page.NextCursor)
	require.NoError(t, err)

	rest, err := repo.List(context.Background(), listNotificationsParams{VendorID: vendorID, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, rows[2].ID, rest[0].ID)
}

func TestRepositoryMarkReadAndUnreadFilter(t *testing.T) {
	client := sqlitetest.Open(t)
	repo := NewRepository(client.DB())
	vendorID := uuid.New()
	first := seedNotification(t, repo, vendorID, nil)
	seedNotification(t, repo, vendorID, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	found, err := repo.MarkRead(ctx, vendorID, first.ID, now)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.MarkRead(ctx, vendorID, first.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, found, "second read is idempotent")

	var reloaded models.Notification
	require.NoError(t, client.DB().First(&reloaded, "id = ?", first.ID).Error)
	require.NotNil(t, reloaded.ReadAt)
	assert.WithinDuration(t, now, *reloaded.ReadAt, time.Second, "first read time is kept")

	found, err = repo.MarkRead(ctx, uuid.New(), first.ID, now)
	require.NoError(t, err)
	assert.False(t, found, "other vendors cannot see the row")

	unread, err := repo.List(ctx, listNotificationsParams{VendorID: vendorID, Limit: 10, UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	updated, err := repo.MarkAllRead(ctx, vendorID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated)
}

func TestRepositoryPurgeReadHonoursLimitAndKeepsUnread(t *testing.T) {
	client := sqlitetest.Open(t)
	repo := NewRepository(client.DB())
	vendorID := uuid.New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		seedNotification(t, repo, vendorID, nil)
	}
	unread := seedNotification(t, repo, vendorID, nil)
	require.NoError(t, client.DB().Model(&models.Notification{}).
		Where("id <> ?", unread.ID).
		UpdateColumn("read_at", time.Now().UTC()).Error)

	cutoff := time.Now().UTC().Add(time.Minute)
	deleted, err := repo.PurgeRead(ctx, cutoff, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	deleted, err = repo.PurgeRead(ctx, cutoff, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var remaining []models.Notification
	require.NoError(t, client.DB().Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, unread.ID, remaining[0].ID)
}
