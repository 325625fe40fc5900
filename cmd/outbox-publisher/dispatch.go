package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/registry"
	"gorm.io/gorm"
)

const (
	outcomePublished    = "published"
	outcomeRetry        = "retry"
	outcomeDeadLettered = "dead_lettered"
)

// inflight is one row of a batch between Publish and Get.
type inflight struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	topic    string
	pub      publisher
	result   publishResult
	err      error
}

// processBatch claims up to batchSize rows and publishes them. All Publish
// calls are issued before any result is awaited so the client can batch them.
// It reports whether any row was claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		processed = true

		publishCtx, cancel := context.WithTimeout(ctx, batchPublishTimeout)
		defer cancel()

		batch := make([]*inflight, 0, len(events))
		for _, event := range events {
			resolved, err := s.registry.Resolve(event)
			if err != nil {
				s.observe("unresolved", outcomeDeadLettered)
				if err := s.deadLetter(ctx, tx, event, "", enums.OutboxDLQReasonUnresolvable, err); err != nil {
					return err
				}
				continue
			}
			batch = append(batch, s.send(publishCtx, event, resolved))
		}

		counts := map[string]int{}
		var paused []*inflight
		for _, item := range batch {
			if item.err == nil {
				_, item.err = item.result.Get(publishCtx)
			}
			outcome, err := s.settle(ctx, tx, item)
			if err != nil {
				return err
			}
			counts[outcome]++
			if outcome != outcomePublished {
				paused = append(paused, item)
			}
		}
		resumeKeys(paused)

		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"batch_size":    len(events),
			"published":     counts[outcomePublished],
			"retry":         counts[outcomeRetry],
			"dead_lettered": counts[outcomeDeadLettered] + len(events) - len(batch),
		}), "outbox batch processed")
		return nil
	})
	return processed, err
}

// resumeKeys unpauses each failed ordering key once per publisher.
func resumeKeys(items []*inflight) {
	type pausedKey struct {
		pub publisher
		key string
	}
	seen := make(map[pausedKey]struct{}, len(items))
	for _, item := range items {
		r, ok := item.pub.(resumer)
		if !ok {
			continue
		}
		k := pausedKey{pub: item.pub, key: item.event.AggregateID.String()}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		r.ResumePublish(k.key)
	}
}

// send starts the publish for one resolved row without waiting for the ack.
func (s *Service) send(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) *inflight {
	item := &inflight{event: event, resolved: resolved, topic: resolved.Descriptor.Topic}
	item.pub = s.publisherFor(item.topic)
	if item.pub == nil {
		item.err = registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", item.topic))
		return item
	}

	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	item.result = item.pub.Publish(ctx, msg)
	if item.result == nil {
		item.err = registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", item.topic))
	}
	return item
}

// settle records the row's final state for this attempt and returns its outcome.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, item *inflight) (string, error) {
	event := item.event
	if item.err == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.observe(item.topic, outcomePublished)
		s.logg.Debug(s.logg.WithFields(ctx, s.eventFields(event, item.resolved, item.topic)), "outbox event published")
		return outcomePublished, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(item.err, &nonRetry) {
		s.observe(item.topic, outcomeDeadLettered)
		return outcomeDeadLettered, s.deadLetter(ctx, tx, event, item.topic, enums.OutboxDLQReasonNonRetryable, item.err)
	}

	if event.AttemptCount+1 >= s.maxAttempts {
		s.observe(item.topic, outcomeDeadLettered)
		terminal := fmt.Errorf("max publish attempts reached: %w", item.err)
		return outcomeDeadLettered, s.deadLetter(ctx, tx, event, item.topic, enums.OutboxDLQReasonMaxAttempts, terminal)
	}

	fields := s.eventFields(event, item.resolved, item.topic)
	fields["attempt_count"] = event.AttemptCount + 1
	fields["error"] = item.err.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox publish failed")
	s.observe(item.topic, outcomeRetry)
	if err := s.repo.MarkFailedTx(tx, event.ID, event.AttemptCount, item.err); err != nil {
		return "", fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return outcomeRetry, nil
}

// deadLetter copies the row into outbox_dlq and stops further attempts.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, topic string, reason enums.OutboxDLQErrorReason, cause error) error {
	fields := s.eventFields(event, nil, topic)
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox event dead-lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) observe(topic, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveOutboxPublish(topic, outcome)
	}
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil && resolved.Envelope.EventID != "" {
		fields["event_id"] = resolved.Envelope.EventID
		fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
