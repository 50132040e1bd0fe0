package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/maheshrc27/tweetflow/internal/queue"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

type Reconciler interface {
	Run(ctx context.Context, manual bool) (*transfer.ReconcileResult, error)
}

type ReconcileHandler struct {
	r           Reconciler
	AsynqClient *asynq.Client
}

func NewReconcileHandler(r Reconciler, asynqClient *asynq.Client) *ReconcileHandler {
	return &ReconcileHandler{r: r, AsynqClient: asynqClient}
}

func (h *ReconcileHandler) Reconcile(c *fiber.Ctx) error {
	var trigger transfer.ReconcileTrigger
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&trigger); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	if c.QueryBool("async", false) {
		if h.AsynqClient == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Queue is not configured",
			})
		}
		taskID, err := queue.EnqueueReconcile(h.AsynqClient, queue.ReconcilePayload{Manual: trigger.Manual})
		if err != nil {
			slog.Error(err.Error())
			return c.Status(fiber.StatusInternalServerError).JSON(transfer.ReconcileResult{
				Success:   false,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Error:     "Error enqueueing reconciliation",
			})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "Reconciliation queued",
			"task_id": taskID,
		})
	}

	result, err := h.r.Run(c.UserContext(), trigger.Manual)
	if err != nil {
		if result == nil {
			result = &transfer.ReconcileResult{
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Error:     err.Error(),
			}
		}
		result.Success = false
		return c.Status(fiber.StatusInternalServerError).JSON(result)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}
