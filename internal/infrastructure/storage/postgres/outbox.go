package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"medstock/internal/core/event"
	"medstock/internal/core/id"
	"medstock/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// maxOutboxRetries is the retry count after which a message is marked failed.
const maxOutboxRetries = 5

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// OutboxMessage represents a message in the transactional outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"`
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

var _ event.Publisher = (*OutboxPublisher)(nil)

// OutboxPublisher writes events to the outbox table.
type OutboxPublisher struct {
	txManager *TxManager
}

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager}
}

// Publish writes an event to the outbox within the current transaction.
func (p *OutboxPublisher) Publish(ctx context.Context, e event.Event) error {
	t := p.txManager.GetTx(ctx)
	if t == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	q := psql.Insert("sys_outbox").
		Columns("id", "aggregate_type", "aggregate_id", "event_type", "payload", "status", "created_at").
		Values(id.New(), e.AggregateType, e.AggregateID, e.Type, payload, OutboxStatusPending, time.Now().UTC())

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build outbox insert: %w", err)
	}

	if _, err := t.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// OutboxHandler delivers a single outbox message to a broker.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxRelay moves pending outbox messages to an OutboxHandler.
// Used by cmd/worker.
type OutboxRelay struct {
	txManager *TxManager
	batchSize int
	handler   OutboxHandler
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(txManager *TxManager, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		txManager: txManager,
		batchSize: batchSize,
		handler:   handler,
	}
}

// ProcessBatch locks a batch of pending messages, delivers them and records
// the outcome in one transaction. Returns the number of delivered messages.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0

	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := psql.Select("id", "aggregate_type", "aggregate_id", "event_type", "payload", "status",
			"retry_count", "last_error", "next_retry_at", "created_at", "published_at").
			From("sys_outbox").
			Where(squirrel.Eq{"status": OutboxStatusPending}).
			Where("(next_retry_at IS NULL OR next_retry_at <= NOW())").
			OrderBy("created_at").
			Limit(uint64(r.batchSize)).
			Suffix("FOR UPDATE SKIP LOCKED")

		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build outbox select: %w", err)
		}

		querier := r.txManager.GetQuerier(ctx)
		var messages []*OutboxMessage
		if err := pgxscan.Select(ctx, querier, &messages, sql, args...); err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		for _, msg := range messages {
			if err := r.processMessage(ctx, querier, msg); err != nil {
				logger.Warn(ctx, "outbox delivery failed",
					"message_id", msg.ID,
					"event_type", msg.EventType,
					"error", err)
				continue
			}
			processed++
		}
		return nil
	})

	return processed, err
}

func (r *OutboxRelay) processMessage(ctx context.Context, querier Querier, msg *OutboxMessage) error {
	if err := r.handler.Handle(ctx, msg); err != nil {
		nextRetry := time.Now().Add(time.Duration(msg.RetryCount+1) * time.Minute)
		status := OutboxStatusPending
		if msg.RetryCount+1 >= maxOutboxRetries {
			status = OutboxStatusFailed
		}

		sql, args, buildErr := psql.Update("sys_outbox").
			Set("retry_count", squirrel.Expr("retry_count + 1")).
			Set("last_error", err.Error()).
			Set("next_retry_at", nextRetry).
			Set("status", status).
			Where(squirrel.Eq{"id": msg.ID}).
			ToSql()
		if buildErr != nil {
			return fmt.Errorf("build outbox retry update: %w", buildErr)
		}
		if _, updateErr := querier.Exec(ctx, sql, args...); updateErr != nil {
			return fmt.Errorf("update failed message: %w", updateErr)
		}
		return err
	}

	sql, args, err := psql.Update("sys_outbox").
		Set("status", OutboxStatusPublished).
		Set("published_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": msg.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build outbox publish update: %w", err)
	}
	_, err = querier.Exec(ctx, sql, args...)
	return err
}

// Run polls the outbox every interval until ctx is cancelled.
// A batch that fills up is followed immediately by the next one.
func (r *OutboxRelay) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := r.ProcessBatch(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error(ctx, "outbox batch failed", "error", err)
		}
		if n > 0 {
			logger.Debug(ctx, "outbox batch delivered", "count", n)
		}
		if err == nil && n >= r.batchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
