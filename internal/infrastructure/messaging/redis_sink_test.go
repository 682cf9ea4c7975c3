package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medstock/internal/core/id"
	"medstock/internal/infrastructure/storage/postgres"
)

func TestRedisSink_PublishesEnvelope(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, DefaultChannel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	msg := &postgres.OutboxMessage{
		ID:            id.New(),
		AggregateType: "invoice",
		AggregateID:   id.New(),
		EventType:     "ConsumptionPosted",
		Payload:       []byte(`{"invoiceNumber":"INV-260314-001"}`),
		CreatedAt:     time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}

	sink := NewRedisSink(client, "")
	require.NoError(t, sink.Handle(ctx, msg))

	select {
	case got := <-sub.Channel():
		var env Envelope
		require.NoError(t, json.Unmarshal([]byte(got.Payload), &env))
		assert.Equal(t, msg.ID, env.ID)
		assert.Equal(t, "ConsumptionPosted", env.EventType)
		assert.JSONEq(t, `{"invoiceNumber":"INV-260314-001"}`, string(env.Payload))
		assert.True(t, msg.CreatedAt.Equal(env.OccurredAt))
	case <-time.After(2 * time.Second):
		t.Fatal("event not published")
	}
}

func TestRedisSink_ReturnsErrorWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	err := NewRedisSink(client, "events.test").Handle(context.Background(), &postgres.OutboxMessage{
		ID:      id.New(),
		Payload: []byte(`{}`),
	})
	assert.Error(t, err)
}
