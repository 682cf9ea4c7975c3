package numerator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockGenerator is a test implementation of Generator.
// Without NextFunc it issues Prefix-<date>-NNN numbers from an in-memory counter per scope and day.
type MockGenerator struct {
	NextFunc func(ctx context.Context, cfg Config, period time.Time) (string, error)

	mu       sync.Mutex
	counters map[string]int64
}

// Next implements Generator.
func (m *MockGenerator) Next(ctx context.Context, cfg Config, period time.Time) (string, error) {
	if m.NextFunc != nil {
		return m.NextFunc(ctx, cfg, period)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	key := cfg.Scope + "/" + period.Format("20060102")
	m.counters[key]++
	return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format(cfg.DateLayout), cfg.PadWidth, m.counters[key]), nil
}

var _ Generator = (*MockGenerator)(nil)
