// Package messaging delivers outbox events to Redis pub/sub.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"medstock/internal/core/id"
	"medstock/internal/infrastructure/storage/postgres"
)

// DefaultChannel receives consumption events.
const DefaultChannel = "events.consumption"

// Envelope is the JSON published for each outbox message.
type Envelope struct {
	ID            id.ID           `json:"id"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   id.ID           `json:"aggregateId"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

var _ postgres.OutboxHandler = (*RedisSink)(nil)

// RedisSink publishes outbox messages to a Redis channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink creates a sink publishing to channel.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

// Handle implements postgres.OutboxHandler.
func (s *RedisSink) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	raw, err := json.Marshal(Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		OccurredAt:    msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", s.channel, err)
	}
	return nil
}
