package queue

import (
	"context"

	"github.com/maheshrc27/tweetflow/internal/transfer"
)

type Reconciler interface {
	Run(ctx context.Context, manual bool) (*transfer.ReconcileResult, error)
}

type Queue struct {
	r Reconciler
}

func NewQueue(r Reconciler) *Queue {
	return &Queue{r: r}
}

const TaskTypeReconcile = "reconcile:run"

type ReconcilePayload struct {
	Manual bool `json:"manual"`
}
