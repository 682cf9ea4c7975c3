package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"medstock/internal/core/apperror"
)

// PostgreSQL error codes used by the posting path.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014"
	pgLockNotAvailable     = "55P03"
)

// MapError converts driver errors into AppErrors.
// AppErrors pass through unchanged; nil stays nil.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewTimeout(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperror.NewConcurrentModification(pgErr.TableName, pgErr.ConstraintName).WithCause(err)
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return apperror.NewConcurrentModification(pgErr.TableName, pgErr.Code).WithCause(err)
		case pgQueryCanceled:
			return apperror.NewTimeout(err)
		}
	}

	return apperror.NewPersistence(err)
}
