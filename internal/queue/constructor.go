package queue

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// uniqueWindow collapses repeated manual triggers into one queued tick.
const uniqueWindow = 30 * time.Second

func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeReconcile, taskPayload, asynq.MaxRetry(0), asynq.Unique(uniqueWindow)), nil
}

func EnqueueReconcile(asynqClient *asynq.Client, payload ReconcilePayload) (string, error) {
	task, err := NewReconcileTask(payload)
	if err != nil {
		return "", err
	}

	info, err := asynqClient.Enqueue(task)
	if err != nil {
		return "", err
	}

	slog.Info("reconcile task enqueued", "task_id", info.ID, "manual", payload.Manual)
	return info.ID, nil
}
