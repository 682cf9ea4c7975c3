package postgres

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"medstock/internal/core/apperror"
)

// IdempotencyStatus represents the state of an idempotent operation.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
)

// DefaultIdempotencyStaleAfter is how long a pending key may sit untouched
// before another request is allowed to reclaim it.
const DefaultIdempotencyStaleAfter = time.Minute

// IdempotencyRecord is a row of sys_idempotency.
type IdempotencyRecord struct {
	Key         string            `db:"idempotency_key"`
	CompanyID   string            `db:"company_id"`
	UserID      string            `db:"user_id"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"`
	Response    []byte            `db:"response"`
	StatusCode  *int              `db:"response_status"`
	ContentType *string           `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyRequest identifies one keyed request. Keys are scoped per company.
type IdempotencyRequest struct {
	Key         string
	CompanyID   string
	UserID      string
	Operation   string
	RequestHash string
}

// IdempotencyReplay is the stored HTTP response of a completed request.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

var idempotencyColumns = []string{
	"idempotency_key", "company_id", "user_id", "operation", "status", "request_hash",
	"response", "response_status", "response_content_type", "created_at", "updated_at", "expires_at",
}

// IdempotencyStore manages Idempotency-Key records outside the business transaction.
// Only successful responses are stored; a failed request releases its key so
// the client can retry with the same key.
type IdempotencyStore struct {
	txManager  *TxManager
	ttl        time.Duration
	staleAfter time.Duration
}

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{
		txManager:  txManager,
		ttl:        ttl,
		staleAfter: DefaultIdempotencyStaleAfter,
	}
}

// Acquire claims the key for req.
// Returns:
//   - (nil, nil) if the key was claimed and the request should run
//   - (replay, nil) if the request already succeeded
//   - (nil, error) if the key is in flight or bound to a different request
func (s *IdempotencyStore) Acquire(ctx context.Context, req IdempotencyRequest) (*IdempotencyReplay, error) {
	now := time.Now().UTC()
	querier := s.txManager.GetQuerier(ctx)

	sql, args, err := s.insertQuery(req, now).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build idempotency insert: %w", err)
	}
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return nil, MapError(err)
	}
	if tag.RowsAffected() == 1 {
		return nil, nil
	}

	sql, args, err = s.selectQuery(req.CompanyID, req.Key).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build idempotency select: %w", err)
	}
	var record IdempotencyRecord
	if err := pgxscan.Get(ctx, querier, &record, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			// Released between our insert and select.
			return nil, apperror.NewIdempotencyConflict(req.Key)
		}
		return nil, MapError(err)
	}

	if record.UserID != req.UserID || record.Operation != req.Operation || record.RequestHash != req.RequestHash {
		return nil, apperror.NewIdempotencyMismatch(req.Key).
			WithDetail("stored_operation", record.Operation).
			WithDetail("request_operation", req.Operation)
	}

	switch record.Status {
	case IdempotencyStatusSuccess:
		return record.replay(), nil

	case IdempotencyStatusPending:
		if now.Sub(record.UpdatedAt) <= s.staleAfter {
			return nil, apperror.NewIdempotencyConflict(req.Key)
		}
		sql, args, err := s.reclaimQuery(req.CompanyID, req.Key, record.UpdatedAt, now).ToSql()
		if err != nil {
			return nil, fmt.Errorf("build idempotency reclaim: %w", err)
		}
		tag, err := querier.Exec(ctx, sql, args...)
		if err != nil {
			return nil, MapError(err)
		}
		if tag.RowsAffected() == 0 {
			return nil, apperror.NewIdempotencyConflict(req.Key)
		}
		return nil, nil
	}

	return nil, fmt.Errorf("idempotency key %q has unexpected status %q", req.Key, record.Status)
}

// Complete stores the response of a successful request under its key.
func (s *IdempotencyStore) Complete(ctx context.Context, companyID, key string, replay IdempotencyReplay) error {
	sql, args, err := psql.Update("sys_idempotency").
		Set("status", IdempotencyStatusSuccess).
		Set("response", replay.Body).
		Set("response_status", replay.StatusCode).
		Set("response_content_type", replay.ContentType).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"company_id": companyID, "idempotency_key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build idempotency complete: %w", err)
	}
	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return MapError(err)
	}
	return nil
}

// Release drops a pending key so the same key can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, companyID, key string) error {
	sql, args, err := psql.Delete("sys_idempotency").
		Where(squirrel.Eq{
			"company_id":      companyID,
			"idempotency_key": key,
			"status":          IdempotencyStatusPending,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build idempotency release: %w", err)
	}
	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return MapError(err)
	}
	return nil
}

// CleanupExpired removes expired idempotency records. Used by cmd/worker.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	sql, args, err := psql.Delete("sys_idempotency").
		Where(squirrel.Lt{"expires_at": time.Now().UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build idempotency cleanup: %w", err)
	}
	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *IdempotencyStore) insertQuery(req IdempotencyRequest, now time.Time) squirrel.InsertBuilder {
	return psql.Insert("sys_idempotency").
		Columns("idempotency_key", "company_id", "user_id", "operation", "status",
			"request_hash", "created_at", "updated_at", "expires_at").
		Values(req.Key, req.CompanyID, req.UserID, req.Operation, IdempotencyStatusPending,
			req.RequestHash, now, now, now.Add(s.ttl)).
		Suffix("ON CONFLICT (company_id, idempotency_key) DO NOTHING")
}

func (s *IdempotencyStore) selectQuery(companyID, key string) squirrel.SelectBuilder {
	return psql.Select(idempotencyColumns...).
		From("sys_idempotency").
		Where(squirrel.Eq{"company_id": companyID, "idempotency_key": key})
}

func (s *IdempotencyStore) reclaimQuery(companyID, key string, seenUpdatedAt, now time.Time) squirrel.UpdateBuilder {
	return psql.Update("sys_idempotency").
		Set("updated_at", now).
		Set("expires_at", now.Add(s.ttl)).
		Where(squirrel.Eq{
			"company_id":      companyID,
			"idempotency_key": key,
			"status":          IdempotencyStatusPending,
			"updated_at":      seenUpdatedAt,
		})
}

func (r *IdempotencyRecord) replay() *IdempotencyReplay {
	out := &IdempotencyReplay{
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        r.Response,
	}
	if r.StatusCode != nil && *r.StatusCode != 0 {
		out.StatusCode = *r.StatusCode
	}
	if r.ContentType != nil && *r.ContentType != "" {
		out.ContentType = *r.ContentType
	}
	return out
}
