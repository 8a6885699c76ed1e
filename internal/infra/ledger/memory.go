package ledger

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"dispatchd/internal/domain/notification"
)

var _ notification.Store = (*MemoryLedger)(nil)

// MemoryLedger is an in-memory Store used by the test suites and as a
// local-development fallback when no Supabase project is configured.
// State does not survive a restart.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]*notification.Record
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]*notification.Record)}
}

// Create inserts a new ledger record.
func (m *MemoryLedger) Create(ctx context.Context, rec *notification.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	stored := cloneRecord(rec)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.records[rec.ID] = stored

	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

// GetByID retrieves a ledger record by its ID. Returns nil, nil if no
// record is found.
func (m *MemoryLedger) GetByID(ctx context.Context, id string) (*notification.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

// GetByIdempotencyKey retrieves a ledger record by its idempotency key.
// Returns nil, nil if no record is found.
func (m *MemoryLedger) GetByIdempotencyKey(ctx context.Context, key string) (*notification.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records {
		if rec.IdempotencyKey == key {
			return cloneRecord(rec), nil
		}
	}
	return nil, nil
}

// MarkDelivered records the terminal delivered state with its timestamp.
func (m *MemoryLedger) MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	return m.update(id, func(rec *notification.Record) {
		rec.Status = notification.StatusDelivered
		at := deliveredAt
		rec.DeliveredAt = &at
	})
}

// MarkFailed records the terminal failed state with the final retry count.
func (m *MemoryLedger) MarkFailed(ctx context.Context, id string, retryCount int) error {
	return m.update(id, func(rec *notification.Record) {
		rec.Status = notification.StatusFailed
		rec.RetryCount = retryCount
	})
}

// UpdateRetryCount records a retryable failure with the incremented count.
func (m *MemoryLedger) UpdateRetryCount(ctx context.Context, id string, retryCount int) error {
	return m.update(id, func(rec *notification.Record) {
		rec.Status = notification.StatusRetrying
		rec.RetryCount = retryCount
	})
}

// Requeue resets a record to queued.
func (m *MemoryLedger) Requeue(ctx context.Context, id string) error {
	return m.update(id, func(rec *notification.Record) {
		rec.Status = notification.StatusQueued
	})
}

// update applies a mutation to the record with the given ID. A missing
// record is a logged warning, not an error, matching the ledger contract.
func (m *MemoryLedger) update(id string, apply func(*notification.Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		slog.Warn("ledger update matched no record", "id", id)
		return nil
	}
	apply(rec)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// List retrieves ledger records with pagination and filtering.
func (m *MemoryLedger) List(ctx context.Context, filter notification.ListFilter) ([]*notification.Record, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	var matched []*notification.Record
	for _, rec := range m.records {
		if filter.Status != "" && string(rec.Status) != filter.Status {
			continue
		}
		if filter.Recipient != "" && rec.Recipient != filter.Recipient {
			continue
		}
		if filter.Channel != "" && !strings.EqualFold(rec.Channel, filter.Channel) {
			continue
		}
		matched = append(matched, cloneRecord(rec))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	offset := (filter.Page - 1) * filter.PageSize
	if offset >= total {
		return []*notification.Record{}, total, nil
	}
	end := offset + filter.PageSize
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// ListStale retrieves records stuck in queued/retrying for longer than olderThan.
func (m *MemoryLedger) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*notification.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var stale []*notification.Record
	for _, rec := range m.records {
		if rec.Status != notification.StatusQueued && rec.Status != notification.StatusRetrying {
			continue
		}
		if !rec.UpdatedAt.Before(olderThan) {
			continue
		}
		stale = append(stale, cloneRecord(rec))
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].UpdatedAt.Before(stale[j].UpdatedAt)
	})

	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func cloneRecord(rec *notification.Record) *notification.Record {
	out := *rec
	if rec.Payload != nil {
		out.Payload = make(map[string]any, len(rec.Payload))
		for k, v := range rec.Payload {
			out.Payload[k] = v
		}
	}
	if rec.DeliveredAt != nil {
		at := *rec.DeliveredAt
		out.DeliveredAt = &at
	}
	return &out
}
