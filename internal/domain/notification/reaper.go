package notification

import (
	"context"
	"log/slog"
	"time"
)

// ReaperConfig holds configuration for the stale request reaper.
type ReaperConfig struct {
	// Interval is how often the reaper scans for stale requests.
	Interval time.Duration

	// StaleThreshold is how long a request can stay in queued/retrying
	// before the reaper considers it stale and re-enqueues it. Keep it
	// longer than the queue's largest retry backoff or the reaper will
	// race scheduled redeliveries.
	StaleThreshold time.Duration

	// BatchSize is the maximum number of stale requests to recover per cycle.
	BatchSize int
}

// Reaper periodically scans the ledger for requests stuck in a
// non-terminal state and re-enqueues them. This is the database
// reconciliation pattern: the ledger is the source of truth and the
// reaper reconciles it with the queue on a timer, so a wiped Redis or a
// worker crash never permanently loses a notification.
//
// A recovered request carries the ledger's retry count, so a request
// that already burned part of its budget resumes where it left off.
type Reaper struct {
	store    Store
	enqueuer Enqueuer
	config   ReaperConfig
}

// NewReaper creates a new stale request reaper.
func NewReaper(store Store, enqueuer Enqueuer, cfg ReaperConfig) *Reaper {
	// Sensible defaults
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	return &Reaper{
		store:    store,
		enqueuer: enqueuer,
		config:   cfg,
	}
}

// Run starts the reaper loop. It blocks until the context is cancelled.
// Should be called in a goroutine.
func (r *Reaper) Run(ctx context.Context) {
	slog.Info("reaper started",
		"interval", r.config.Interval,
		"stale_threshold", r.config.StaleThreshold,
		"batch_size", r.config.BatchSize,
	)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reaper stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep performs one reaper cycle: find stale requests and re-enqueue them.
func (r *Reaper) sweep(ctx context.Context) {
	olderThan := time.Now().Add(-r.config.StaleThreshold)

	stale, err := r.store.ListStale(ctx, olderThan, r.config.BatchSize)
	if err != nil {
		slog.Error("reaper: failed to list stale requests", "error", err)
		return
	}

	if len(stale) == 0 {
		return // Nothing to do — the common case
	}

	slog.Warn("reaper: found stale requests", "count", len(stale))

	recovered := 0
	for _, rec := range stale {
		// Reset to queued before re-enqueuing so the row leaves the
		// stale window and the next sweep does not pick it up again.
		if err := r.store.Requeue(ctx, rec.ID); err != nil {
			slog.Error("reaper: failed to requeue record",
				"id", rec.ID,
				"error", err,
			)
			continue
		}

		wire := &Request{
			ID:         rec.ID,
			Template:   rec.Template,
			Channel:    Channel(rec.Channel),
			RetryCount: rec.RetryCount,
			Recipient:  rec.Recipient,
			Payload:    rec.Payload,
		}

		if err := r.enqueuer.EnqueueDispatch(wire); err != nil {
			slog.Error("reaper: failed to re-enqueue request",
				"id", rec.ID,
				"error", err,
			)
			continue
		}

		recovered++
		slog.Info("reaper: recovered stale request",
			"id", rec.ID,
			"original_status", rec.Status,
			"retry_count", rec.RetryCount,
			"age", time.Since(rec.UpdatedAt).Round(time.Second),
		)
	}

	if recovered > 0 {
		slog.Info("reaper: sweep complete", "recovered", recovered, "total_stale", len(stale))
	}
}
