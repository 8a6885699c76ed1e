package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dispatchd/internal/common"

	"github.com/google/uuid"
)

// Enqueuer defines the contract for handing a wire request to the queue.
// This keeps the service decoupled from the specific queue implementation.
type Enqueuer interface {
	EnqueueDispatch(req *Request) error
}

// Service orchestrates the ingestion flow:
// validate → check idempotency → check rate limit → create ledger record → enqueue.
type Service struct {
	store       Store
	enqueuer    Enqueuer
	rateLimiter RecipientRateLimiter
}

// NewService creates a new notification ingestion service.
func NewService(store Store, enqueuer Enqueuer, rateLimiter RecipientRateLimiter) *Service {
	return &Service{
		store:       store,
		enqueuer:    enqueuer,
		rateLimiter: rateLimiter,
	}
}

// Enqueue validates a send request, checks idempotency and rate limits,
// creates a ledger record, and enqueues the wire message for the worker.
func (s *Service) Enqueue(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	if !req.Channel.IsValid() {
		return nil, common.NewValidationError(fmt.Sprintf("unsupported channel: %s", req.Channel))
	}

	// Check idempotency — if a request with the same key already exists, return the existing result
	if req.IdempotencyKey != "" {
		existing, err := s.store.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			slog.Error("idempotency check failed", "key", req.IdempotencyKey, "error", err)
			// Don't fail the request — proceed without idempotency protection
		}
		if existing != nil {
			slog.Info("idempotent request — returning existing result",
				"idempotency_key", req.IdempotencyKey,
				"existing_id", existing.ID,
				"existing_status", existing.Status,
			)
			return &SendResponse{
				ID:             existing.ID,
				IdempotencyKey: existing.IdempotencyKey,
				Channel:        existing.Channel,
				Status:         string(existing.Status),
			}, nil
		}
	}

	// Check per-recipient rate limit
	if s.rateLimiter != nil {
		allowed, err := s.rateLimiter.Allow(ctx, req.Recipient)
		if err != nil {
			slog.Error("rate limit check failed, proceeding without limit", "recipient", req.Recipient, "error", err)
			// Fail open — don't block the request when Redis is down
		} else if !allowed {
			return nil, common.NewValidationError(fmt.Sprintf("rate limit exceeded for recipient: %s", req.Recipient))
		}
	}

	rec := &Record{
		ID:             uuid.New().String(),
		IdempotencyKey: req.IdempotencyKey,
		Template:       req.Template,
		Channel:        string(req.Channel),
		Recipient:      req.Recipient,
		Payload:        req.Payload,
		Status:         StatusQueued,
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating ledger record: %w", err)
	}

	wire := &Request{
		ID:          rec.ID,
		Template:    req.Template,
		Channel:     req.Channel,
		RetryCount:  0,
		Recipient:   req.Recipient,
		Payload:     req.Payload,
		RequestedAt: time.Now().UTC(),
	}

	if err := s.enqueuer.EnqueueDispatch(wire); err != nil {
		// Mark the record failed since the worker will never see it
		if markErr := s.store.MarkFailed(ctx, rec.ID, 0); markErr != nil {
			slog.Warn("failed to mark unenqueued notification", "id", rec.ID, "error", markErr)
		}
		return nil, fmt.Errorf("enqueuing notification: %w", err)
	}

	slog.Info("notification enqueued",
		"id", rec.ID,
		"channel", req.Channel,
		"template", req.Template,
		"recipient", req.Recipient,
	)

	return &SendResponse{
		ID:             rec.ID,
		IdempotencyKey: rec.IdempotencyKey,
		Channel:        string(req.Channel),
		Status:         string(StatusQueued),
	}, nil
}

// GetNotification retrieves a ledger record by ID.
func (s *Service) GetNotification(ctx context.Context, id string) (*Record, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching notification: %w", err)
	}
	if rec == nil {
		return nil, common.NewNotFoundError("", "notification "+id)
	}
	return rec, nil
}

// ListNotifications retrieves ledger records with pagination and filtering.
func (s *Service) ListNotifications(ctx context.Context, filter ListFilter) (*ListResponse, error) {
	recs, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	return &ListResponse{
		Notifications: recs,
		Total:         total,
		Page:          filter.Page,
		PageSize:      filter.PageSize,
	}, nil
}
