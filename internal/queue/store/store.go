package store

import (
	"context"

	"github.com/aridsondez/queue-engine/internal/queue"
)

// Store is the backend-agnostic queue contract the rest of the app uses.
// queueID is an opaque locator; backends address the queue by its trailing
// path segment (see queue.NameFromLocator).
type Store interface {
	// Push appends a message. Queues are created on first push.
	Push(ctx context.Context, queueID, body string, priority int) error

	// Pull returns the next visible message and hides it for the visibility
	// timeout. Returns nil, nil when nothing is visible.
	Pull(ctx context.Context, queueID string) (*queue.Message, error)

	// Delete acknowledges the message carrying receiptID. Unknown receipts
	// are a silent no-op.
	Delete(ctx context.Context, queueID, receiptID string) error

	// Purge drops every message in the queue.
	Purge(ctx context.Context, queueID string) error
}
