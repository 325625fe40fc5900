package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 5 * time.Minute

// Lock hands out per-job leases so a job runs on one cron replica at a time.
// Acquire returns a nil Lease when another replica holds the job.
type Lock interface {
	Acquire(ctx context.Context, job string) (Lease, error)
}

// Lease is held for the duration of one job run.
type Lease interface {
	Release(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, expected string) (bool, error)
}

// RedisLock stores one key per job whose value is a random owner token. The
// key expires after ttl, so a crashed replica cannot wedge a job forever.
type RedisLock struct {
	store  leaseStore
	prefix string
	ttl    time.Duration
}

func NewRedisLock(store leaseStore, prefix string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case prefix == "":
		return nil, errors.New("lock key prefix is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, prefix: prefix, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context, job string) (Lease, error) {
	lease := &redisLease{store: l.store, key: l.prefix + ":" + job, owner: uuid.NewString()}
	ok, err := l.store.SetNX(ctx, lease.key, lease.owner, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", job, err)
	}
	if !ok {
		return nil, nil
	}
	return lease, nil
}

type redisLease struct {
	store leaseStore
	key   string
	owner string
}

// Release deletes the key only while it still carries this lease's token; a
// key that expired and was re-taken by another replica is left alone.
func (l *redisLease) Release(ctx context.Context) error {
	if _, err := l.store.DeleteIfValue(ctx, l.key, l.owner); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
