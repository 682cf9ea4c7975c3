package numerator

import (
	"context"
	"time"
)

// Generator allocates sequential document numbers.
// Implementations must allocate within the transaction carried by ctx
// so that a rolled back posting does not consume a number.
type Generator interface {
	Next(ctx context.Context, cfg Config, period time.Time) (string, error)
}
