package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/google/uuid"
)

// ErrNoDecoder is returned for an event type/version pair nobody registered.
var ErrNoDecoder = errors.New("decoder not registered")

type decoderFunc func(payload json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps versioned event types to payload decoders on the
// consumer side of the bus.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[decoderKey]decoderFunc)}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[decoderKey{eventType: eventType, version: version}] = decoder
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	decoder, ok := r.decoders[decoderKey{eventType: eventType, version: version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s@v%d", ErrNoDecoder, eventType, version)
	}
	return decoder(payload)
}

// Message is a bus message with its envelope unwrapped.
type Message struct {
	EventID uuid.UUID
	Version int
	Payload any
}

// DecodeMessage unwraps the outbox envelope in data and decodes its payload.
// A zero envelope version is treated as version 1.
func (r *DecoderRegistry) DecodeMessage(eventType enums.OutboxEventType, data []byte) (Message, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid event id %q: %w", envelope.EventID, err)
	}
	version := envelope.Version
	if version == 0 {
		version = 1
	}
	payload, err := r.Decode(eventType, version, envelope.Data)
	if err != nil {
		return Message{}, err
	}
	return Message{EventID: eventID, Version: version, Payload: payload}, nil
}
