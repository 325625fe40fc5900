package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

const defaultPendingOrderTTL = 24 * time.Hour

// OrderTTLJobParams configure the pending order expiry job.
type OrderTTLJobParams struct {
	Logger *logger.Logger
	Orders pendingOrderExpirer
	// TTL is how long an order may stay pending without payment.
	TTL time.Duration
}

type pendingOrderExpirer interface {
	ExpirePending(ctx context.Context, cutoff time.Time) (int, error)
}

// NewOrderTTLJob builds the cron job that cancels orders left unpaid past the TTL.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	return &orderTTLJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

type orderTTLJob struct {
	logg   *logger.Logger
	orders pendingOrderExpirer
	ttl    time.Duration
	now    func() time.Time
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

func (j *orderTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	count, err := j.orders.ExpirePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire pending orders: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff": cutoff,
		"count":  count,
	})
	j.logg.Info(logCtx, "order expiration loop complete")
	return nil
}
