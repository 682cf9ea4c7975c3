// Package numerator implements core/numerator.Generator on top of the
// sys_sequences table.
package numerator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	corenumerator "medstock/internal/core/numerator"
	"medstock/internal/infrastructure/storage/postgres"
)

// Querier is the subset of pgx used by the numerator.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service allocates numbers with a single UPSERT ... RETURNING per call.
// The row lock taken by the upsert is held until the caller's transaction ends,
// so numbers are monotonic per key and a rolled back transaction gives its number back.
type Service struct {
	querier func(ctx context.Context) Querier
}

var _ corenumerator.Generator = (*Service)(nil)

// New creates a numerator bound to a fixed querier.
func New(q Querier) *Service {
	return &Service{querier: func(context.Context) Querier { return q }}
}

// NewFromTxManager creates a numerator that runs on the transaction in ctx.
func NewFromTxManager(txm *postgres.TxManager) *Service {
	return &Service{querier: func(ctx context.Context) Querier { return txm.GetQuerier(ctx) }}
}

// Next returns the next formatted number for cfg in period.
func (s *Service) Next(ctx context.Context, cfg corenumerator.Config, period time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}

	key := BuildKey(cfg, period)

	var num int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + 1
		RETURNING current_val
	`, key).Scan(&num)
	if err != nil {
		return "", fmt.Errorf("next number for %s: %w", key, err)
	}

	return Format(cfg, period, num), nil
}

// BuildKey creates the sequence key based on config and period.
func BuildKey(cfg corenumerator.Config, period time.Time) string {
	parts := []string{cfg.Prefix}
	if cfg.Scope != "" {
		parts = append(parts, cfg.Scope)
	}
	switch cfg.ResetPeriod {
	case corenumerator.ResetDaily:
		parts = append(parts, period.Format("20060102"))
	case corenumerator.ResetMonthly:
		parts = append(parts, period.Format("200601"))
	case corenumerator.ResetYearly:
		parts = append(parts, period.Format("2006"))
	}
	return strings.Join(parts, ":")
}

// Format renders a number as PREFIX[-DATE]-NNN.
func Format(cfg corenumerator.Config, period time.Time, num int64) string {
	padWidth := cfg.PadWidth
	if padWidth <= 0 {
		padWidth = 3
	}
	if cfg.DateLayout != "" {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format(cfg.DateLayout), padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, padWidth, num)
}
