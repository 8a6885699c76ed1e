package queue

import (
	"fmt"
	"time"

	"dispatchd/internal/domain/notification"

	"github.com/hibiken/asynq"
)

// notificationQueue is the dedicated asynq queue for dispatch tasks.
const notificationQueue = "notifications"

// NewClient creates a new asynq client connected to Redis.
func NewClient(redisAddr, password string, db int) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})
}

// NewServer creates a new asynq server connected to Redis. Tasks that
// exhaust their retries are archived by asynq, which serves as the
// poison-message quarantine.
func NewServer(redisAddr, password string, db int, concurrency int) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				notificationQueue: 10, // priority weight
				"default":         1,
			},
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				// Exponential backoff: 30s, 60s, 120s, 240s, 480s
				return time.Duration(30*(1<<uint(n-1))) * time.Second
			},
		},
	)
}

// EnqueueDispatch enqueues a notification dispatch task carrying the
// full wire request.
func EnqueueDispatch(client *asynq.Client, req *notification.Request, maxRetry int) error {
	task, err := notification.NewDispatchTask(req)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}

	_, err = client.Enqueue(task,
		asynq.MaxRetry(maxRetry),
		asynq.Queue(notificationQueue),
	)
	if err != nil {
		return fmt.Errorf("enqueuing task: %w", err)
	}

	return nil
}
