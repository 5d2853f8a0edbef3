package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TaskVIPAlertDelivery delivers one admin alert outbox message.
const TaskVIPAlertDelivery = "vip_alert:deliver"

var errMissingOutboxID = errors.New("outbox id missing")

type vipAlertDeliveryPayload struct {
	OutboxID uuid.UUID `json:"outboxId"`
}

// deliveryTaskID is the asynq task id for an outbox message. Enqueueing the
// same message twice collides on it.
func deliveryTaskID(outboxID uuid.UUID) string {
	return "outbox:" + outboxID.String()
}

func newVIPAlertDeliveryTask(outboxID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(vipAlertDeliveryPayload{OutboxID: outboxID})
	if err != nil {
		return nil, fmt.Errorf("marshal delivery payload: %w", err)
	}
	return asynq.NewTask(TaskVIPAlertDelivery, data), nil
}

func parseVIPAlertDeliveryTask(task *asynq.Task) (uuid.UUID, error) {
	var payload vipAlertDeliveryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return uuid.Nil, fmt.Errorf("decode delivery payload: %w", err)
	}
	if payload.OutboxID == uuid.Nil {
		return uuid.Nil, errMissingOutboxID
	}
	return payload.OutboxID, nil
}
