package feed

import "context"

// Handler receives events for one subscription, in publish order.
// It runs on the subscription's own goroutine and must not block for long.
type Handler func(Event)

// Subscription is a live registration on one collection.
type Subscription interface {
	ID() string
	Collection() string
	// Close stops delivery. It is idempotent and safe to call from the handler.
	Close() error
}

// Feed is a per-collection change stream. There is no server-side filtering:
// every subscriber of a collection sees every event of that collection.
type Feed interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, collection string, h Handler) (Subscription, error)
	Close() error
}
