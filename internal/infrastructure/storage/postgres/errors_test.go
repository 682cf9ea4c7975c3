package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"medstock/internal/core/apperror"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"unique violation", &pgconn.PgError{Code: "23505", TableName: "stock_levels"}, apperror.CodeConcurrentModification},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, apperror.CodeConcurrentModification},
		{"deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), apperror.CodeConcurrentModification},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, apperror.CodeTimeout},
		{"context deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), apperror.CodeTimeout},
		{"check violation", &pgconn.PgError{Code: "23514"}, apperror.CodeDatabase},
		{"plain error", errors.New("connection refused"), apperror.CodeDatabase},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err)
			appErr, ok := apperror.AsAppError(mapped)
			assert.True(t, ok)
			assert.Equal(t, tc.code, appErr.Code)
			assert.ErrorIs(t, mapped, tc.err)
		})
	}
}

func TestMapError_PassThrough(t *testing.T) {
	assert.NoError(t, MapError(nil))

	orig := apperror.NewUnknownProduct("p-1")
	assert.Same(t, orig, MapError(orig))
}
