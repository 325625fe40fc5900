package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"go.uber.org/multierr"
)

// FlashSaleSweepJobParams configure the flash-sale expiry sweep.
type FlashSaleSweepJobParams struct {
	Logger     *logger.Logger
	FlashSales flashSaleExpirer
}

type flashSaleExpirer interface {
	ExpireEnded(ctx context.Context, at time.Time) (int, error)
	ReleaseExpiredHolds(ctx context.Context, at time.Time) (int, error)
}

// NewFlashSaleSweepJob builds the job that marks allocations past their end
// time as expired and returns lapsed unattached holds to their allocation.
func NewFlashSaleSweepJob(params FlashSaleSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.FlashSales == nil {
		return nil, fmt.Errorf("flash sale service required")
	}
	return &flashSaleSweepJob{
		logg:       params.Logger,
		flashSales: params.FlashSales,
		now:        time.Now,
	}, nil
}

type flashSaleSweepJob struct {
	logg       *logger.Logger
	flashSales flashSaleExpirer
	now        func() time.Time
}

func (j *flashSaleSweepJob) Name() string { return "flash-sale-sweep" }

// Run releases holds even when expiring allocations fails; both errors are reported.
func (j *flashSaleSweepJob) Run(ctx context.Context) error {
	at := j.now().UTC()
	expired, expireErr := j.flashSales.ExpireEnded(ctx, at)
	if expireErr != nil {
		expireErr = fmt.Errorf("expire allocations: %w", expireErr)
	}
	released, holdErr := j.flashSales.ReleaseExpiredHolds(ctx, at)
	if holdErr != nil {
		holdErr = fmt.Errorf("release expired holds: %w", holdErr)
	}
	if err := multierr.Append(expireErr, holdErr); err != nil {
		return fmt.Errorf("flash sale sweep: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"at":             at,
		"expired":        expired,
		"holds_released": released,
	}), "flash sale sweep complete")
	return nil
}
