package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

const (
	defaultNotificationRetention = 30 * 24 * time.Hour
	defaultNotificationBatch     = 500
	// maxNotificationBatches bounds one run; whatever is left waits for the next tick.
	maxNotificationBatches = 40
)

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	Repository notificationPurger
	Retention  time.Duration
	BatchSize  int
}

type notificationPurger interface {
	PurgeRead(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// NewNotificationCleanupJob removes read notifications older than the
// retention window in short batches so no single statement holds locks for long.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("notifications repository required")
	}
	job := &notificationCleanupJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: params.Retention,
		batch:     params.BatchSize,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultNotificationRetention
	}
	if job.batch <= 0 {
		job.batch = defaultNotificationBatch
	}
	return job, nil
}

type notificationCleanupJob struct {
	logg      *logger.Logger
	repo      notificationPurger
	retention time.Duration
	batch     int
	now       func() time.Time
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *notificationCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var (
		deleted int64
		batches int
	)
	for batches < maxNotificationBatches {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.repo.PurgeRead(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("notification cleanup after %d rows: %w", deleted, err)
		}
		batches++
		deleted += n
		if n < int64(j.batch) {
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
		"batches":      batches,
		"exhausted":    batches == maxNotificationBatches,
	}), "notification cleanup complete")
	return nil
}
