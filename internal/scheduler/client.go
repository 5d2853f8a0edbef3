package scheduler

import (
	"context"
	"errors"
	"time"

	"concierge_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	defaultQueue  = "default"
	taskRetention = 24 * time.Hour
)

// Client puts outbox deliveries on the asynq queue.
type Client struct {
	asynq *asynq.Client
	queue string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := redisOptFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return newClientWithOpt(opt, cfg.GetAsynqQueueName()), nil
}

func newClientWithOpt(opt asynq.RedisConnOpt, queue string) *Client {
	return &Client{asynq: asynq.NewClient(opt), queue: queueOrDefault(queue)}
}

func (c *Client) Close() error {
	if c == nil || c.asynq == nil {
		return nil
	}
	return c.asynq.Close()
}

// EnqueueOutboxDue queues one delivery attempt at runAt. Enqueueing the same
// outbox id twice is a no-op.
func (c *Client) EnqueueOutboxDue(ctx context.Context, outboxID uuid.UUID, runAt time.Time) error {
	if c == nil || c.asynq == nil {
		return nil
	}
	task, err := newVIPAlertDeliveryTask(outboxID)
	if err != nil {
		return err
	}

	_, err = c.asynq.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(deliveryTaskID(outboxID)),
		asynq.ProcessAt(runAt),
		asynq.MaxRetry(0),
		asynq.Retention(taskRetention),
	)
	switch {
	case err == nil, errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
		return nil
	default:
		return err
	}
}
