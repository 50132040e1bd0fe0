package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

func (q *Queue) HandleReconcileTask(ctx context.Context, task *asynq.Task) error {
	var payload ReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decoding reconcile payload: %v: %w", err, asynq.SkipRetry)
	}

	result, err := q.r.Run(ctx, payload.Manual)
	if err != nil {
		return err
	}

	slog.Info("queued reconcile finished", "summary", result.Summary)
	return nil
}
