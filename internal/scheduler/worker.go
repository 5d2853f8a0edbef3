package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"concierge_backend/internal/events"
	"concierge_backend/platform/config"
	"concierge_backend/platform/logger"

	"github.com/hibiken/asynq"
)

const defaultWorkerConcurrency = 10

// Worker runs delivery tasks by publishing them on the in-process bus, where
// the notification module settles the outbox row.
type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	bus events.Bus
	log *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, bus events.Bus, log *logger.Logger) (*Worker, error) {
	opt, err := redisOptFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	w := newWorker(bus, log)
	w.srv = asynq.NewServer(opt, asynq.Config{
		Concurrency: positiveOr(cfg.GetAsynqConcurrency(), defaultWorkerConcurrency),
		Queues:      map[string]int{queueOrDefault(cfg.GetAsynqQueueName()): 1},
		Logger:      newAsynqLogger(log),
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Error("delivery task failed", "task", task.Type(), "error", err)
		}),
	})
	return w, nil
}

func newWorker(bus events.Bus, log *logger.Logger) *Worker {
	w := &Worker{mux: asynq.NewServeMux(), bus: bus, log: log}
	w.mux.HandleFunc(TaskVIPAlertDelivery, w.handleVIPAlertDelivery)
	return w
}

// handleVIPAlertDelivery runs delivery synchronously so the task only
// completes once the notification module settled the outbox row.
func (w *Worker) handleVIPAlertDelivery(ctx context.Context, task *asynq.Task) error {
	outboxID, err := parseVIPAlertDeliveryTask(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  outboxID,
	})
}

// Run processes tasks until ctx is done, then waits for in-flight tasks.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.srv == nil {
		return
	}
	if err := w.srv.Start(w.mux); err != nil {
		w.log.Error("scheduler worker failed to start", "error", err)
		return
	}
	<-ctx.Done()
	w.srv.Shutdown()
}

func positiveOr(v, fallback int) int {
	if v < 1 {
		return fallback
	}
	return v
}

func queueOrDefault(queue string) string {
	if queue == "" {
		return defaultQueue
	}
	return queue
}

// asynqLogger routes asynq's internal logging through the service logger.
type asynqLogger struct {
	log *slog.Logger
}

func newAsynqLogger(log *logger.Logger) asynqLogger {
	return asynqLogger{log: log.With("component", "asynq")}
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.log.Error(fmt.Sprint(args...)) }
