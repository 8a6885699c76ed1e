package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dispatchd/internal/config"
	"dispatchd/internal/domain/notification"
	"dispatchd/internal/infra/email"
	"dispatchd/internal/infra/ledger"
	"dispatchd/internal/infra/queue"
	"dispatchd/internal/infra/sms"
	"dispatchd/internal/infra/template"

	"github.com/hibiken/asynq"
)

// queueEnqueuer adapts the asynq client to the notification.Enqueuer interface.
// Used by the reaper to re-enqueue stale requests.
type queueEnqueuer struct {
	client   *asynq.Client
	maxRetry int
}

func (q *queueEnqueuer) EnqueueDispatch(req *notification.Request) error {
	return queue.EnqueueDispatch(q.client, req, q.maxRetry)
}

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("worker configuration loaded")

	// ==========================================
	// Dependency Injection (Manual Wiring)
	// ==========================================

	// Template store and renderer
	templateStore, err := template.NewStore(cfg.Templates.Dir)
	if err != nil {
		slog.Error("failed to initialize template store", "error", err, "dir", cfg.Templates.Dir)
		os.Exit(1)
	}
	slog.Info("template store initialized", "dir", cfg.Templates.Dir)

	renderer := template.NewRenderer()

	// Channel transports
	emailSender, err := email.NewResendSender(
		cfg.Email.APIKey,
		cfg.Email.FromAddress,
		cfg.Email.FromName,
	)
	if err != nil {
		slog.Error("failed to initialize email transport", "error", err)
		os.Exit(1)
	}

	smsSender, err := sms.NewTwilioSender(
		cfg.SMS.AccountSID,
		cfg.SMS.AuthToken,
		cfg.SMS.FromNumber,
	)
	if err != nil {
		slog.Error("failed to initialize sms transport", "error", err)
		os.Exit(1)
	}

	// Delivery ledger
	store := newStore(cfg)

	// Processor and queue worker
	processor := notification.NewProcessor(templateStore, renderer, emailSender, smsSender, store)
	worker := notification.NewWorker(processor)

	// Asynq client (for reaper re-enqueuing)
	asynqClient := queue.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	defer asynqClient.Close()

	enqueuer := &queueEnqueuer{
		client:   asynqClient,
		maxRetry: cfg.Queue.MaxRetry,
	}

	// ==========================================
	// Asynq Server (task processing)
	// ==========================================

	asynqServer := queue.NewServer(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Queue.Concurrency,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(notification.TaskTypeDispatch, worker.HandleTask)

	// Start the asynq worker in a goroutine
	go func() {
		slog.Info("worker starting",
			"concurrency", cfg.Queue.Concurrency,
			"redis", cfg.Redis.Address,
		)
		if err := asynqServer.Run(mux); err != nil {
			slog.Error("worker failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// ==========================================
	// Stale Request Reaper
	// ==========================================

	reaperCtx, reaperCancel := context.WithCancel(context.Background())
	defer reaperCancel()

	reaper := notification.NewReaper(store, enqueuer, notification.ReaperConfig{
		Interval:       time.Duration(cfg.Reaper.IntervalSec) * time.Second,
		StaleThreshold: time.Duration(cfg.Reaper.StaleThresholdSec) * time.Second,
		BatchSize:      cfg.Reaper.BatchSize,
	})

	go reaper.Run(reaperCtx)

	// ==========================================
	// Graceful Shutdown
	// ==========================================

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	reaperCancel() // Stop the reaper first
	asynqServer.Shutdown()
	slog.Info("worker exited gracefully")
}

// newStore picks the ledger backend: Supabase when configured, otherwise
// the in-memory ledger for local development.
func newStore(cfg *config.Config) notification.Store {
	if cfg.Supabase.URL == "" {
		slog.Warn("no supabase url configured, using in-memory ledger")
		return ledger.NewMemoryLedger()
	}

	store, err := ledger.NewSupabaseLedger(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
	if err != nil {
		slog.Error("failed to initialize supabase ledger", "error", err)
		os.Exit(1)
	}
	slog.Info("supabase ledger initialized")
	return store
}
