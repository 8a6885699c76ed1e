package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dispatchd/internal/common"
)

// MaxRetries is the retry budget for a single notification. A request
// arriving with RetryCount >= MaxRetries is terminal before any work is
// attempted, so attempts happen at counts 0 through 4.
const MaxRetries = 5

// DefaultEmailSubject is used when the payload carries no non-empty
// "subject" value for an email notification.
const DefaultEmailSubject = "Notification"

// Processor runs the notification pipeline for one inbound request:
// retry-count gate, template resolution, rendering, channel dispatch,
// ledger write. It holds no mutable state across calls — the retry loop
// is realized externally by the queue redelivering the message with an
// incremented retry count — so it is safe for concurrent invocation
// with distinct requests.
type Processor struct {
	templates TemplateSource
	renderer  Renderer
	email     EmailSender
	sms       SMSSender
	ledger    Ledger
}

// NewProcessor creates a new notification processor.
func NewProcessor(templates TemplateSource, renderer Renderer, email EmailSender, sms SMSSender, ledger Ledger) *Processor {
	return &Processor{
		templates: templates,
		renderer:  renderer,
		email:     email,
		sms:       sms,
		ledger:    ledger,
	}
}

// Process handles a single delivery attempt. It returns true only when
// the notification was delivered and the ledger marked accordingly;
// false means the ledger was updated to either a terminal failed state
// or a retryable one. No panic escapes: an unexpected fault anywhere in
// the pipeline lands on the retryable path so the notification is not
// silently lost.
func (p *Processor) Process(ctx context.Context, req *Request) (delivered bool) {
	if req == nil || req.ID == "" {
		slog.Error("dropping request without an id")
		return false
	}

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("unexpected fault while processing notification",
				"id", req.ID,
				"channel", req.Channel,
				"panic", r,
			)
			p.recordRetry(ctx, req)
			delivered = false
		}
	}()

	// Retry-exhausted gate: terminal regardless of cause, before any
	// template load or send attempt.
	if req.RetryCount >= MaxRetries {
		slog.Warn("retry budget exhausted",
			"id", req.ID,
			"retry_count", req.RetryCount,
		)
		p.recordFailed(ctx, req)
		return false
	}

	raw, err := p.templates.Load(req.Template, req.Channel)
	if err != nil {
		if isConfigurationError(err) {
			// A missing template or bad channel will not be fixed by
			// redelivery; terminate without consuming the retry budget.
			slog.Error("template resolution failed",
				"id", req.ID,
				"template", req.Template,
				"channel", req.Channel,
				"error", err,
			)
			p.recordFailed(ctx, req)
			return false
		}
		slog.Error("unexpected template load failure",
			"id", req.ID,
			"template", req.Template,
			"error", err,
		)
		p.recordRetry(ctx, req)
		return false
	}

	content := p.renderer.Render(raw, req.Payload)

	var sendErr error
	switch req.Channel {
	case ChannelEmail:
		sendErr = p.email.Send(ctx, req.Recipient, emailSubject(req.Payload), content)
	case ChannelSMS:
		sendErr = p.sms.Send(ctx, req.Recipient, content)
	case ChannelInApp:
		// No in-app transport exists yet; treat as a transient failure so
		// these requests exhaust retries like any other send failure.
		slog.Warn("in-app delivery not yet implemented",
			"id", req.ID,
			"recipient", req.Recipient,
		)
		sendErr = common.NewTransportError(string(ChannelInApp), "not yet implemented")
	default:
		// The template store already rejects unknown channels, but a
		// request must never pass dispatch without a transport.
		slog.Error("no transport for channel",
			"id", req.ID,
			"channel", req.Channel,
		)
		p.recordFailed(ctx, req)
		return false
	}

	if sendErr != nil {
		slog.Error("notification delivery failed",
			"id", req.ID,
			"channel", req.Channel,
			"recipient", req.Recipient,
			"retry_count", req.RetryCount,
			"error", sendErr,
			"duration", time.Since(start),
		)
		p.recordRetry(ctx, req)
		return false
	}

	p.recordDelivered(ctx, req)

	slog.Info("notification delivered",
		"id", req.ID,
		"channel", req.Channel,
		"recipient", req.Recipient,
		"retry_count", req.RetryCount,
		"duration", time.Since(start),
	)

	return true
}

// recordDelivered writes the terminal delivered state. A ledger write is
// a best-effort status update: its failure is logged but never changes
// the boolean result handed back to the queue worker.
func (p *Processor) recordDelivered(ctx context.Context, req *Request) {
	if err := p.ledger.MarkDelivered(ctx, req.ID, time.Now().UTC()); err != nil {
		slog.Warn("failed to mark notification delivered",
			"id", req.ID,
			"error", err,
		)
	}
}

func (p *Processor) recordFailed(ctx context.Context, req *Request) {
	if err := p.ledger.MarkFailed(ctx, req.ID, req.RetryCount); err != nil {
		slog.Warn("failed to mark notification failed",
			"id", req.ID,
			"retry_count", req.RetryCount,
			"error", err,
		)
	}
}

func (p *Processor) recordRetry(ctx context.Context, req *Request) {
	next := req.RetryCount + 1
	if err := p.ledger.UpdateRetryCount(ctx, req.ID, next); err != nil {
		slog.Warn("failed to update notification retry count",
			"id", req.ID,
			"retry_count", next,
			"error", err,
		)
	}
}

// isConfigurationError classifies template resolution failures that
// redelivery cannot fix.
func isConfigurationError(err error) bool {
	var invalidArg *common.InvalidArgumentError
	var notFound *common.NotFoundError
	return errors.As(err, &invalidArg) || errors.As(err, &notFound)
}

// emailSubject picks the subject for an email notification: the reserved
// payload "subject" key when present and non-empty, otherwise the fixed
// default.
func emailSubject(payload map[string]any) string {
	if v, ok := payload["subject"]; ok {
		if s := PayloadString(v); s != "" {
			return s
		}
	}
	return DefaultEmailSubject
}
