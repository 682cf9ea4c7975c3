// Package event defines domain events written through the transactional outbox.
package event

import (
	"context"

	"medstock/internal/core/id"
)

// Event is a fact recorded by a committed unit of work.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	Type          string
	Payload       any
}

// Publisher records events. Implementations must write within the
// transaction carried by ctx so that events commit or roll back with it.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
