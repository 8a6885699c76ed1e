package notification

import (
	"context"
	"time"
)

// Ledger is the narrow write-only persistence port the processor needs.
// Each write is idempotent at the storage layer: a repeated identical
// write must not corrupt per-notification state. A missing row for the
// given ID is a logged warning inside the implementation, not an error.
type Ledger interface {
	// MarkDelivered records a terminal delivered state with its timestamp.
	MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error

	// MarkFailed records a terminal failed state with the final retry count.
	MarkFailed(ctx context.Context, id string, retryCount int) error

	// UpdateRetryCount records a retryable failure with the incremented count.
	UpdateRetryCount(ctx context.Context, id string, retryCount int) error
}

// Store is the full persistence contract used by the ingestion API and
// the reaper. The processor itself depends only on the embedded Ledger.
type Store interface {
	Ledger

	// Create inserts a new ledger record.
	Create(ctx context.Context, rec *Record) error

	// GetByID retrieves a ledger record by its ID.
	// Returns nil, nil if no record is found.
	GetByID(ctx context.Context, id string) (*Record, error)

	// GetByIdempotencyKey retrieves a ledger record by its idempotency key.
	// Returns nil, nil if no record is found.
	GetByIdempotencyKey(ctx context.Context, key string) (*Record, error)

	// List retrieves ledger records with pagination and filtering.
	List(ctx context.Context, filter ListFilter) ([]*Record, int, error)

	// ListStale retrieves records stuck in queued/retrying for longer
	// than the given threshold. Used by the reaper for reconciliation.
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*Record, error)

	// Requeue resets a record to queued before the reaper re-enqueues it,
	// bumping updated_at so the row leaves the stale window.
	Requeue(ctx context.Context, id string) error
}
