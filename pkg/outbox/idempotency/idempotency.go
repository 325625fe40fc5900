// Package idempotency guards bus consumers against redelivered events.
//
// A claim is a Redis key per (consumer, event) whose value is the owner token
// of the worker that set it. Only the owner can release a claim, so a slow
// worker whose claim expired cannot drop the claim of the worker that took
// the event over.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const processedScope = "evt:processed"

var (
	ErrConsumerRequired = errors.New("consumer name is required")
	ErrEventIDRequired  = errors.New("event id is required")
	ErrStoreRequired    = errors.New("idempotency store is required")
)

type claimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, expected string) (bool, error)
	IdempotencyKey(scope, id string) string
}

// Manager claims events on behalf of one worker process.
type Manager struct {
	store claimStore
	ttl   time.Duration
	owner string
}

// NewManager returns a Manager with a fresh owner token. A zero ttl keeps
// claims forever.
func NewManager(store claimStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if ttl < 0 {
		return nil, fmt.Errorf("ttl must be non-negative, got %s", ttl)
	}
	return &Manager{store: store, ttl: ttl, owner: uuid.NewString()}, nil
}

func (m *Manager) Owner() string {
	return m.owner
}

// Claim reports whether this worker won the event. False means another
// delivery already handled it or is handling it now.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	won, err := m.store.SetNX(ctx, key, m.owner, m.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return won, nil
}

// Release gives up this worker's claim so a redelivery can retry the event.
// Claims held by other owners are left alone.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	if _, err := m.store.DeleteIfValue(ctx, key, m.owner); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", ErrConsumerRequired
	case eventID == uuid.Nil:
		return "", ErrEventIDRequired
	}
	return m.store.IdempotencyKey(processedScope+":"+consumer, eventID.String()), nil
}
