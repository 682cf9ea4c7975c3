// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces; the implementation lives in
// infrastructure/storage/postgres.
package tx

import (
	"context"
	"time"
)

// Isolation is a SQL transaction isolation level.
type Isolation string

const (
	ReadCommitted  Isolation = "read committed"
	RepeatableRead Isolation = "repeatable read"
	Serializable   Isolation = "serializable"
)

// ParseIsolation maps a configuration value to an Isolation.
// Unknown values fall back to ReadCommitted.
func ParseIsolation(s string) Isolation {
	switch Isolation(s) {
	case RepeatableRead, Serializable:
		return Isolation(s)
	}
	switch s {
	case "repeatable_read", "REPEATABLE READ":
		return RepeatableRead
	case "serializable", "SERIALIZABLE":
		return Serializable
	}
	return ReadCommitted
}

// Options tune a single transaction.
type Options struct {
	Isolation Isolation

	// StatementTimeout is applied with SET LOCAL statement_timeout.
	// Zero keeps the server default.
	StatementTimeout time.Duration
}

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// RunInTransactionWithOptions is RunInTransaction with explicit isolation and timeout.
	// Options are ignored when a transaction is already open in ctx.
	RunInTransactionWithOptions(ctx context.Context, opts Options, fn func(ctx context.Context) error) error
}
