package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Worker runs the background task server plus an optional cron scheduler.
// Handlers and cron entries are registered before Run.
type Worker struct {
	redis     asynq.RedisClientOpt
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// NewWorker constructs a Worker consuming the default queue.
func NewWorker(redis asynq.RedisClientOpt, logger *slog.Logger, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Worker{
		redis: redis,
		server: asynq.NewServer(redis, asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{QueueDefault: 1},
		}),
		mux:    asynq.NewServeMux(),
		logger: logger,
	}
}

// Handle registers a handler for the given task type.
func (w *Worker) Handle(taskType string, h asynq.HandlerFunc) {
	w.mux.HandleFunc(taskType, h)
}

// Schedule registers a cron entry. The scheduler is created on first use and
// runs in UTC.
func (w *Worker) Schedule(cronspec string, task *asynq.Task, opts ...asynq.Option) error {
	if w.scheduler == nil {
		w.scheduler = asynq.NewScheduler(w.redis, &asynq.SchedulerOpts{Location: time.UTC})
	}
	_, err := w.scheduler.Register(cronspec, task, opts...)
	return err
}

// Run processes jobs until the context is cancelled or the server fails.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
		defer w.scheduler.Shutdown()
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redis asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redis)}
}

// EnqueueReportSnapshot queues snapshot persistence for a closed period.
func (c *Client) EnqueueReportSnapshot(ctx context.Context, periodID uuid.UUID) error {
	task, err := NewReportSnapshotTask(periodID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
