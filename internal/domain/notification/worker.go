package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Worker is the thin queue adapter: it deserializes one inbound message,
// invokes the processor, and translates the boolean result into queue
// acknowledgement or redelivery signaling.
type Worker struct {
	processor *Processor
}

// NewWorker creates a new queue worker around the given processor.
func NewWorker(processor *Processor) *Worker {
	return &Worker{processor: processor}
}

// HandleTask processes one dispatch task.
//
// A malformed message is swallowed: it is logged and the task completes
// so the queue does not redeliver a payload that can never parse. A
// processed-but-undelivered notification returns an error so asynq's
// native redelivery (backoff, max retry, archive) drives the next
// attempt.
func (w *Worker) HandleTask(ctx context.Context, task *asynq.Task) error {
	req, err := DecodeDispatchTask(task.Payload())
	if err != nil {
		slog.Error("discarding malformed notification message",
			"error", err,
		)
		return nil
	}

	// The message's retryCount is trusted, but a redelivered task also
	// carries the queue's own attempt counter; taking the max keeps an
	// out-of-order or duplicated redelivery from rolling the count back.
	if n, ok := asynq.GetRetryCount(ctx); ok && n > req.RetryCount {
		req.RetryCount = n
	}

	if w.processor.Process(ctx, req) {
		return nil
	}
	return fmt.Errorf("notification %s not delivered (retry_count=%d)", req.ID, req.RetryCount)
}
