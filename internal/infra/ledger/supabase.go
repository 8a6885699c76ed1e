package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"dispatchd/internal/domain/notification"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

const tableName = "notification_ledger"

var _ notification.Store = (*SupabaseLedger)(nil)

// SupabaseLedger implements the delivery ledger on Supabase via PostgREST.
// Status writes use plain row updates keyed by notification ID, so
// concurrent writes to distinct IDs rely on ordinary row-level update
// semantics; a repeated identical write is a no-op at the storage layer.
type SupabaseLedger struct {
	client *supa.Client
}

// NewSupabaseLedger creates a new Supabase-backed delivery ledger.
func NewSupabaseLedger(supabaseURL, serviceKey string) (*SupabaseLedger, error) {
	client, err := supa.NewClient(supabaseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &SupabaseLedger{client: client}, nil
}

// supabaseRow is the internal representation for PostgREST insert/update.
type supabaseRow struct {
	ID             string         `json:"id,omitempty"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty"`
	Template       string         `json:"template"`
	Channel        string         `json:"channel"`
	Recipient      string         `json:"recipient"`
	Payload        map[string]any `json:"payload,omitempty"`
	Status         string         `json:"status"`
	RetryCount     int            `json:"retry_count"`
	CreatedAt      string         `json:"created_at,omitempty"`
	UpdatedAt      string         `json:"updated_at,omitempty"`
	DeliveredAt    *string        `json:"delivered_at,omitempty"`
}

// Create inserts a new ledger record.
func (l *SupabaseLedger) Create(ctx context.Context, rec *notification.Record) error {
	row := supabaseRow{
		ID:         rec.ID,
		Template:   rec.Template,
		Channel:    rec.Channel,
		Recipient:  rec.Recipient,
		Status:     string(rec.Status),
		RetryCount: rec.RetryCount,
	}

	if rec.IdempotencyKey != "" {
		row.IdempotencyKey = &rec.IdempotencyKey
	}
	if rec.Payload != nil {
		row.Payload = rec.Payload
	}

	data, _, err := l.client.From(tableName).Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		return fmt.Errorf("inserting ledger record: %w", err)
	}

	var results []supabaseRow
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("parsing insert response: %w", err)
	}

	if len(results) > 0 {
		if t, err := time.Parse(time.RFC3339Nano, results[0].CreatedAt); err == nil {
			rec.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, results[0].UpdatedAt); err == nil {
			rec.UpdatedAt = t
		}
	}

	return nil
}

// GetByID retrieves a ledger record by its ID. Returns nil, nil if no
// record is found.
func (l *SupabaseLedger) GetByID(ctx context.Context, id string) (*notification.Record, error) {
	data, _, err := l.client.From(tableName).Select("*", "exact", false).Eq("id", id).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching ledger record: %w", err)
	}

	var rows []supabaseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing ledger record: %w", err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return rowToRecord(&rows[0]), nil
}

// GetByIdempotencyKey retrieves a ledger record by its idempotency key.
// Returns nil, nil if no record is found.
func (l *SupabaseLedger) GetByIdempotencyKey(ctx context.Context, key string) (*notification.Record, error) {
	data, _, err := l.client.From(tableName).Select("*", "exact", false).Eq("idempotency_key", key).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching by idempotency key: %w", err)
	}

	var rows []supabaseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing idempotency result: %w", err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return rowToRecord(&rows[0]), nil
}

// MarkDelivered records the terminal delivered state with its timestamp.
func (l *SupabaseLedger) MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	at := deliveredAt.UTC().Format(time.RFC3339Nano)
	return l.update(id, map[string]any{
		"status":       string(notification.StatusDelivered),
		"delivered_at": at,
	})
}

// MarkFailed records the terminal failed state with the final retry count.
func (l *SupabaseLedger) MarkFailed(ctx context.Context, id string, retryCount int) error {
	return l.update(id, map[string]any{
		"status":      string(notification.StatusFailed),
		"retry_count": retryCount,
	})
}

// UpdateRetryCount records a retryable failure with the incremented count.
func (l *SupabaseLedger) UpdateRetryCount(ctx context.Context, id string, retryCount int) error {
	return l.update(id, map[string]any{
		"status":      string(notification.StatusRetrying),
		"retry_count": retryCount,
	})
}

// Requeue resets a record to queued before the reaper re-enqueues it.
func (l *SupabaseLedger) Requeue(ctx context.Context, id string) error {
	return l.update(id, map[string]any{
		"status": string(notification.StatusQueued),
	})
}

// update applies a status write keyed by notification ID. A write that
// matches no row is a logged warning, not an error: the write is a
// best-effort status update.
func (l *SupabaseLedger) update(id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, _, err := l.client.From(tableName).Update(fields, "representation", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("updating ledger record: %w", err)
	}

	var rows []supabaseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("parsing update response: %w", err)
	}

	if len(rows) == 0 {
		slog.Warn("ledger update matched no record", "id", id, "status", fields["status"])
	}

	return nil
}

// List retrieves ledger records with pagination and filtering.
func (l *SupabaseLedger) List(ctx context.Context, filter notification.ListFilter) ([]*notification.Record, int, error) {
	// Apply defaults
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	offset := (filter.Page - 1) * filter.PageSize

	query := l.client.From(tableName).Select("*", "exact", false)

	if filter.Status != "" {
		query = query.Eq("status", filter.Status)
	}
	if filter.Recipient != "" {
		query = query.Eq("recipient", filter.Recipient)
	}
	if filter.Channel != "" {
		query = query.Eq("channel", filter.Channel)
	}

	query = query.Order("created_at", &postgrest.OrderOpts{Ascending: false})
	query = query.Range(offset, offset+filter.PageSize-1, "")

	data, count, err := query.Execute()
	if err != nil {
		return nil, 0, fmt.Errorf("listing ledger records: %w", err)
	}

	var rows []supabaseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, 0, fmt.Errorf("parsing ledger list: %w", err)
	}

	recs := make([]*notification.Record, len(rows))
	for i, row := range rows {
		recs[i] = rowToRecord(&row)
	}

	return recs, int(count), nil
}

// ListStale retrieves records stuck in queued/retrying for longer than olderThan.
func (l *SupabaseLedger) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*notification.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	threshold := olderThan.UTC().Format(time.RFC3339Nano)

	query := l.client.From(tableName).
		Select("*", "exact", false).
		In("status", []string{string(notification.StatusQueued), string(notification.StatusRetrying)}).
		Lt("updated_at", threshold).
		Order("updated_at", &postgrest.OrderOpts{Ascending: true}).
		Range(0, limit-1, "")

	data, _, err := query.Execute()
	if err != nil {
		return nil, fmt.Errorf("listing stale records: %w", err)
	}

	var rows []supabaseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing stale records: %w", err)
	}

	recs := make([]*notification.Record, len(rows))
	for i, row := range rows {
		recs[i] = rowToRecord(&row)
	}

	return recs, nil
}

// rowToRecord converts a supabaseRow to a notification.Record.
func rowToRecord(row *supabaseRow) *notification.Record {
	rec := &notification.Record{
		ID:         row.ID,
		Template:   row.Template,
		Channel:    row.Channel,
		Recipient:  row.Recipient,
		Status:     notification.Status(row.Status),
		RetryCount: row.RetryCount,
	}

	if row.IdempotencyKey != nil {
		rec.IdempotencyKey = *row.IdempotencyKey
	}
	if row.Payload != nil {
		rec.Payload = row.Payload
	}

	if row.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, row.CreatedAt); err == nil {
			rec.CreatedAt = t
		}
	}
	if row.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, row.UpdatedAt); err == nil {
			rec.UpdatedAt = t
		}
	}
	if row.DeliveredAt != nil {
		if t, err := time.Parse(time.RFC3339Nano, *row.DeliveredAt); err == nil {
			rec.DeliveredAt = &t
		}
	}

	return rec
}
